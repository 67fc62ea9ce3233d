package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/recap-bot/pkg/health"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
)

func newFakeBot(t *testing.T) *httptest.Server {
	t.Helper()
	started := time.Date(2025, 10, 20, 14, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(scheduler.CycleReport{
			CycleID:    "cycle-1",
			Trigger:    scheduler.TriggerManual,
			StartedAt:  started,
			FinishedAt: started.Add(250 * time.Millisecond),
			Events: []scheduler.EventReport{
				{ID: "e1", Title: "Platform Team Sync", Start: started.Add(time.Hour), Outcome: "sent", Tier: "key"},
				{ID: "e2", Title: "Design Review", Start: started.Add(time.Hour), Skipped: true},
			},
			Skipped:  1,
			Outcomes: map[string]int{"sent": 1},
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(health.StatusResponse{
			HealthResponse: health.HealthResponse{Status: "degraded", Running: true, ProcessedEvents: 4, LastPoll: &started},
			Cycles:         12,
			FailedCycles:   1,
			Collaborators: []health.CheckResult{
				{Name: "fireflies", OK: true, LatencyMs: 40},
				{Name: "slack", OK: false, Error: "invalid_auth", LatencyMs: 12},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTrigger(t *testing.T) {
	bot := newFakeBot(t)
	deps := newTestDeps(t, "")

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, NewTriggerCommand(deps), "trigger", "--addr", bot.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "Cycle cycle-1 (manual) in 250ms")
		assert.Contains(t, out, "Skipped: 1  Purged: 0")
		assert.Contains(t, out, "already processed")
		assert.Contains(t, out, "sent")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, NewTriggerCommand(deps), "trigger", "--addr", bot.URL+"/", "-o", "json")
		require.NoError(t, err)
		var report scheduler.CycleReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "cycle-1", report.CycleID)
		assert.Len(t, report.Events, 2)
	})
}

func TestTrigger_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = w.Write([]byte(`{"error":"context deadline exceeded"}`))
	}))
	defer srv.Close()

	_, err := execute(t, NewTriggerCommand(newTestDeps(t, "")), "trigger", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 504")
}

func TestTrigger_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := execute(t, NewTriggerCommand(newTestDeps(t, "")), "trigger", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response (404)")
}

func TestHealth(t *testing.T) {
	bot := newFakeBot(t)
	deps := newTestDeps(t, "")

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, NewHealthCommand(deps), "health", "--addr", bot.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "Status:           degraded")
		assert.Contains(t, out, "Processed events: 4")
		assert.Contains(t, out, "Cycles:           12 (1 failed)")
		assert.Contains(t, out, "invalid_auth")
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, NewHealthCommand(deps), "health", "--addr", bot.URL, "-o", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "cycles: 12")
	})
}

func TestResolveRemote_DefaultsToConfigPort(t *testing.T) {
	remoteAddr = ""
	deps := newTestDeps(t, "")
	base, err := resolveRemote(deps)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", base)
}
