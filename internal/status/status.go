// Package status exposes a single read-only GET /status endpoint
// reporting the scheduler's live counters, for operators watching a
// long-running crawl.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xhtml/crawler/internal/logging"
	"github.com/0xhtml/crawler/internal/scheduler"
)

// Reporter is the subset of *scheduler.Scheduler the status endpoint
// needs, so tests can substitute a fixed snapshot.
type Reporter interface {
	Snapshot() scheduler.Counters
}

// Handler serves GET /status as a gin.HandlerFunc.
type Handler struct {
	reporter  Reporter
	startedAt time.Time
}

// NewHandler builds a Handler reporting counters from r, with uptime
// measured from startedAt.
func NewHandler(r Reporter, startedAt time.Time) *Handler {
	return &Handler{reporter: r, startedAt: startedAt}
}

// ServeStatus handles GET /status.
func (h *Handler) ServeStatus(c *gin.Context) {
	counters := h.reporter.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"documents_indexed": counters.DocumentsIndexed,
		"frontier_size":     counters.FrontierSize,
		"inflight_hosts":    counters.InflightHosts,
		"uptime_seconds":    int(time.Since(h.startedAt).Seconds()),
	})
}

// NewEngine builds the gin engine the status server runs, in release
// mode so routine requests don't add to crawl log noise.
func NewEngine(r Reporter, startedAt time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := NewHandler(r, startedAt)
	engine.GET("/status", h.ServeStatus)
	return engine
}

// Server runs the status endpoint on its own listener, independent of
// the scheduler's run loop: a stalled or slow status client must never
// hold up a fetch.
type Server struct {
	httpServer *http.Server
	logger     logging.Interface
}

// NewServer builds a Server bound to addr. Run starts it in the
// background; Shutdown stops it gracefully.
func NewServer(addr string, r Reporter, startedAt time.Time, logger logging.Interface) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewEngine(r, startedAt),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run starts serving until ctx is cancelled, then shuts down gracefully.
// It blocks and should be called from its own goroutine.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown error", zap.Error(err))
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("status server failed", zap.Error(err))
	}
}
