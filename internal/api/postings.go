package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobscout/internal/model"
)

// listPostings handles GET /api/postings?state=&limit=&offset=.
func (s *Server) listPostings(c *gin.Context) {
	var f model.PostingFilter
	if raw := c.Query("state"); raw != "" {
		state, err := model.ParseJobState(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.State = state
	}
	var err error
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	postings, err := s.store.ListPostings(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"postings": postings, "count": len(postings)})
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// getPosting handles GET /api/postings/:id.
func (s *Server) getPosting(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	view, err := s.store.GetPosting(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := s.store.StateHistory(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posting": view, "history": history})
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
	Notes string `json:"notes"`
}

// setState handles POST /api/postings/:id/state.
func (s *Server) setState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := model.ParseJobState(req.State)
	if err != nil || !state.UserSettable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be one of viewed, saved, applied, rejected"})
		return
	}

	id := c.Param("id")
	if err := s.pipeline.Transition(c.Request.Context(), id, state, req.Notes); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": state})
}

// reanalyze handles POST /api/postings/:id/reanalyze.
func (s *Server) reanalyze(c *gin.Context) {
	result, err := s.pipeline.Reanalyze(c.Request.Context(), c.Param("id"), s.prefs())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// stats handles GET /api/stats.
func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
