// Package api exposes runs, the schedule and stored postings over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/amishk599/jobscout/internal/runs"
)

// Pipeline is the run-starting side of the orchestrator.
type Pipeline interface {
	Start(ctx context.Context, prefs model.Preferences, trigger runs.Trigger) (string, error)
	Reanalyze(ctx context.Context, externalID string, prefs model.Preferences) (model.AnalysisResult, error)
	Transition(ctx context.Context, externalID string, state model.JobState, notes string) error
}

// RunReader is the read side of the run registry.
type RunReader interface {
	Get(runID string) (runs.RunStatus, bool)
	List() []runs.RunStatus
	Active() (string, bool)
}

// Store is the persistence the handlers read from.
type Store interface {
	model.PostingReader
	GetSchedule(ctx context.Context) (model.ScheduleConfig, error)
	SaveSchedule(ctx context.Context, cfg model.ScheduleConfig) error
}

// Server wires the handlers to a gin engine.
type Server struct {
	pipeline Pipeline
	runs     RunReader
	store    Store
	prefs    func() model.Preferences
	metrics  http.Handler
	now      func() time.Time
	logger   *slog.Logger
}

// NewServer creates the API. metrics may be nil to leave /metrics out.
func NewServer(pipeline Pipeline, reader RunReader, store Store, prefs func() model.Preferences, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		runs:     reader,
		store:    store,
		prefs:    prefs,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := router.Group("/api")
	api.POST("/runs", s.startRun)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)

	api.GET("/schedule", s.getSchedule)
	api.PUT("/schedule", s.putSchedule)

	api.GET("/postings", s.listPostings)
	api.GET("/postings/:id", s.getPosting)
	api.POST("/postings/:id/state", s.setState)
	api.POST("/postings/:id/reanalyze", s.reanalyze)
	api.GET("/stats", s.stats)

	return router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", s.now().Sub(start),
		)
	}
}

// writeError maps pipeline errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidPreferences), errors.Is(err, model.ErrInvalidSchedule),
		errors.Is(err, model.ErrInvalidState):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrProviderError), errors.Is(err, model.ErrMalformedResponse):
		status = http.StatusBadGateway
	case errors.Is(err, model.ErrAlreadyRunning):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
