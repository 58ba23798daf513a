package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/scheduler"
)

type scheduleResponse struct {
	model.ScheduleConfig
	NextDue *time.Time `json:"next_due,omitempty"`
}

type scheduleRequest struct {
	Type          string `json:"type" binding:"required"`
	ExecutionTime string `json:"execution_time"`
	IntervalHours int    `json:"interval_hours"`
	Enabled       *bool  `json:"enabled"`
}

// getSchedule handles GET /api/schedule.
func (s *Server) getSchedule(c *gin.Context) {
	cfg, err := s.store.GetSchedule(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.describe(cfg))
}

// putSchedule handles PUT /api/schedule. last_run_at is owned by the
// scheduler and carried over from the stored schedule.
func (s *Server) putSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	typ, err := model.ParseScheduleType(req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	cfg := model.ScheduleConfig{
		Type:          typ,
		ExecutionTime: req.ExecutionTime,
		IntervalHours: req.IntervalHours,
		Enabled:       true,
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if err := cfg.Validate(); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.GetSchedule(ctx)
	switch {
	case err == nil:
		cfg.LastRunAt = existing.LastRunAt
	case !errors.Is(err, model.ErrNotFound):
		writeError(c, err)
		return
	}

	if err := s.store.SaveSchedule(ctx, cfg); err != nil {
		writeError(c, err)
		return
	}
	s.logger.Info("schedule updated", "type", cfg.Type, "execution_time", cfg.ExecutionTime, "enabled", cfg.Enabled)
	c.JSON(http.StatusOK, s.describe(cfg))
}

func (s *Server) describe(cfg model.ScheduleConfig) scheduleResponse {
	resp := scheduleResponse{ScheduleConfig: cfg}
	if cfg.Enabled {
		if due, err := scheduler.NextDue(cfg, s.now()); err == nil {
			resp.NextDue = &due
		}
	}
	return resp
}
