// Package health serves the bot's operational HTTP surface: liveness,
// collaborator status, a manual poll trigger, metrics, version, and the
// Slack slash-command endpoint.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherjamesbrown/recap-bot/pkg/buildinfo"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
)

const (
	// CheckTimeout bounds each collaborator liveness check.
	CheckTimeout = 5 * time.Second
	// DefaultTriggerTimeout bounds a manual poll cycle.
	DefaultTriggerTimeout = 2 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

// Bot is the scheduler surface the server reads and drives.
type Bot interface {
	Status() scheduler.StatusSnapshot
	Trigger(ctx context.Context) (scheduler.CycleReport, error)
}

// Check is one collaborator liveness check.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Config configures a Server.
type Config struct {
	Bot    Bot
	Checks []Check
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// SigningSecret verifies /slack/commands. Empty disables the route.
	SigningSecret  string
	ServiceName    string
	TriggerTimeout time.Duration
	Logger         logging.Logger
}

// Server is the gin-backed HTTP surface.
type Server struct {
	bot            Bot
	checks         []Check
	signingSecret  string
	serviceName    string
	triggerTimeout time.Duration
	logger         logging.Logger
	router         *gin.Engine
	now            func() time.Time
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "recap-bot"
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = DefaultTriggerTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	router := gin.New()
	s := &Server{
		bot:            cfg.Bot,
		checks:         cfg.Checks,
		signingSecret:  cfg.SigningSecret,
		serviceName:    cfg.ServiceName,
		triggerTimeout: cfg.TriggerTimeout,
		logger:         cfg.Logger.With(logging.F("component", "http")),
		router:         router,
		now:            time.Now,
	}

	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.POST("/trigger", s.handleTrigger)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	router.GET("/version", buildinfo.Handler(cfg.ServiceName))
	if cfg.SigningSecret != "" {
		router.POST("/slack/commands", s.handleSlashCommand)
	}

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.F("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			logging.F("method", c.Request.Method),
			logging.F("path", c.FullPath()),
			logging.F("status", c.Writer.Status()),
			logging.F("duration", time.Since(start)))
	}
}
