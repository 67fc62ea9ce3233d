package scheduler

import (
	"sync/atomic"
	"time"
)

// Status holds counters the health endpoints read while the poll loop runs.
type Status struct {
	running   atomic.Bool
	cycles    atomic.Int64
	failures  atomic.Int64
	lastPoll  atomic.Int64 // unix nanoseconds, 0 before the first cycle
	lastError atomic.Value // string
}

// StatusSnapshot is a point-in-time copy of Status.
type StatusSnapshot struct {
	Running         bool      `json:"running"`
	ProcessedEvents int       `json:"processed_events"`
	LastPoll        time.Time `json:"last_poll,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Cycles          int64     `json:"cycles"`
	FailedCycles    int64     `json:"failed_cycles"`
}

func (s *Status) recordCycle(finished time.Time, err string) {
	s.cycles.Add(1)
	s.lastPoll.Store(finished.UnixNano())
	if err != "" {
		s.failures.Add(1)
	}
	s.lastError.Store(err)
}

func (s *Status) snapshot(processed int) StatusSnapshot {
	snap := StatusSnapshot{
		Running:         s.running.Load(),
		ProcessedEvents: processed,
		Cycles:          s.cycles.Load(),
		FailedCycles:    s.failures.Load(),
	}
	if ns := s.lastPoll.Load(); ns > 0 {
		snap.LastPoll = time.Unix(0, ns).UTC()
	}
	if msg, ok := s.lastError.Load().(string); ok {
		snap.LastError = msg
	}
	return snap
}
