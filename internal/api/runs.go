package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
)

// startRun handles POST /api/runs.
func (s *Server) startRun(c *gin.Context) {
	prefs := s.prefs()
	if err := prefs.Validate(); err != nil {
		writeError(c, err)
		return
	}

	runID, err := s.pipeline.Start(context.WithoutCancel(c.Request.Context()), prefs, runs.TriggerManual)
	if errors.Is(err, model.ErrAlreadyRunning) {
		body := gin.H{"error": "AlreadyRunning"}
		if active, ok := s.runs.Active(); ok {
			body["run_id"] = active
		}
		c.JSON(http.StatusConflict, body)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	s.logger.Info("manual run started", "run_id", runID)
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// getRun handles GET /api/runs/:id. Unknown and evicted runs are a normal
// answer for pollers, not an error.
func (s *Server) getRun(c *gin.Context) {
	status, ok := s.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// listRuns handles GET /api/runs.
func (s *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.runs.List()})
}
