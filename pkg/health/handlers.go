package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string     `json:"status"`
	Running         bool       `json:"running"`
	ProcessedEvents int        `json:"processed_events"`
	LastPoll        *time.Time `json:"last_poll"`
	LastError       string     `json:"last_error,omitempty"`
}

// CheckResult is one collaborator's liveness.
type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	HealthResponse
	Cycles        int64         `json:"cycles"`
	FailedCycles  int64         `json:"failed_cycles"`
	Collaborators []CheckResult `json:"collaborators"`
}

func (s *Server) health() HealthResponse {
	snap := s.bot.Status()
	resp := HealthResponse{
		Status:          "healthy",
		Running:         snap.Running,
		ProcessedEvents: snap.ProcessedEvents,
		LastError:       snap.LastError,
	}
	if !snap.LastPoll.IsZero() {
		last := snap.LastPoll
		resp.LastPoll = &last
	}
	if !snap.Running {
		resp.Status = "stopped"
	}
	return resp
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := s.health()
	code := http.StatusOK
	if !resp.Running {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.bot.Status()
	resp := StatusResponse{
		HealthResponse: s.health(),
		Cycles:         snap.Cycles,
		FailedCycles:   snap.FailedCycles,
		Collaborators:  s.runChecks(c.Request.Context()),
	}
	for _, r := range resp.Collaborators {
		if !r.OK {
			resp.Status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, resp)
}

// runChecks pings every collaborator concurrently, each under CheckTimeout.
func (s *Server) runChecks(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(s.checks))
	var g errgroup.Group
	for i, check := range s.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()

			start := time.Now()
			err := check.Ping(checkCtx)
			results[i] = CheckResult{
				Name:      check.Name,
				OK:        err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Server) handleTrigger(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.triggerTimeout)
	defer cancel()

	report, err := s.bot.Trigger(ctx)
	if err != nil {
		s.logger.Warn("Manual trigger failed", logging.Err(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	if report.Events == nil {
		report.Events = []scheduler.EventReport{}
	}
	c.JSON(http.StatusOK, report)
}
