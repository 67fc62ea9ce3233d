// Package scheduler runs the poll loop that feeds upcoming meetings through
// the recap pipeline exactly once per occurrence.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/recap-bot/pkg/events"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/observability"
	"github.com/otherjamesbrown/recap-bot/pkg/pipeline"
)

// Defaults applied by New.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultErrorBackoff = 60 * time.Second
	DefaultLookahead    = 60
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// outcomeCrashed marks an event whose processing panicked. It is recorded so
// the same occurrence does not panic on every cycle.
const outcomeCrashed pipeline.Outcome = "crashed"

// EventSource yields the events starting within the next minutesAhead minutes.
type EventSource interface {
	StartingSoon(ctx context.Context, minutesAhead int) ([]meeting.Event, error)
}

// Processor handles one event. *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, event meeting.Event) pipeline.Result
}

// Config configures a Scheduler.
type Config struct {
	Events    EventSource
	Processor Processor
	// Processed defaults to a fresh set.
	Processed *ProcessedSet

	// Interval is the sleep between cycles.
	Interval time.Duration
	// ErrorBackoff replaces Interval after a failed cycle.
	ErrorBackoff time.Duration
	// LookaheadMinutes is passed to EventSource.StartingSoon.
	LookaheadMinutes int
	// Retention is how long processed keys are kept.
	Retention time.Duration

	Publisher events.Publisher
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Logger    logging.Logger
}

// EventReport is the per-event line of a CycleReport.
type EventReport struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	Outcome string    `json:"outcome"`
	Tier    string    `json:"tier,omitempty"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	Trigger    Trigger        `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Events     []EventReport  `json:"events"`
	Skipped    int            `json:"skipped"`
	Outcomes   map[string]int `json:"outcomes"`
	Purged     int            `json:"purged"`
	Error      string         `json:"error,omitempty"`
}

type triggerRequest struct {
	ctx   context.Context
	reply chan CycleReport
}

// Scheduler polls for upcoming meetings and hands each new occurrence to the
// processor. Run owns the poll goroutine; everything else only reads Status.
type Scheduler struct {
	events    EventSource
	processor Processor
	processed *ProcessedSet

	interval     time.Duration
	errorBackoff time.Duration
	lookahead    int
	retention    time.Duration

	publisher events.Publisher
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    logging.Logger

	status   Status
	triggers chan triggerRequest
	stopped  chan struct{}
	now      func() time.Time
}

// New creates a Scheduler. Events and Processor are required.
func New(cfg Config) *Scheduler {
	if cfg.Events == nil || cfg.Processor == nil {
		panic("scheduler: Events and Processor are required")
	}
	if cfg.Processed == nil {
		cfg.Processed = NewProcessedSet()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.LookaheadMinutes <= 0 {
		cfg.LookaheadMinutes = DefaultLookahead
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	return &Scheduler{
		events:       cfg.Events,
		processor:    cfg.Processor,
		processed:    cfg.Processed,
		interval:     cfg.Interval,
		errorBackoff: cfg.ErrorBackoff,
		lookahead:    cfg.LookaheadMinutes,
		retention:    cfg.Retention,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		logger:       cfg.Logger.With(logging.F("component", "scheduler")),
		triggers:     make(chan triggerRequest),
		stopped:      make(chan struct{}),
		now:          time.Now,
	}
}

// Status returns a snapshot of the loop state.
func (s *Scheduler) Status() StatusSnapshot {
	return s.status.snapshot(s.processed.Len())
}

// Processed exposes the processed-event set.
func (s *Scheduler) Processed() *ProcessedSet {
	return s.processed
}

// Run polls until ctx is cancelled. It must be called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	s.status.running.Store(true)
	defer func() {
		s.status.running.Store(false)
		close(s.stopped)
	}()

	s.logger.Info("Scheduler started",
		logging.F("interval", s.interval),
		logging.F("lookahead_minutes", s.lookahead))

	for {
		report := s.RunCycle(ctx, TriggerTimer)
		if ctx.Err() != nil {
			s.logger.Info("Scheduler stopped")
			return nil
		}

		wait := s.interval
		if report.Error != "" {
			wait = s.errorBackoff
			s.logger.Warn("Poll cycle failed, backing off",
				logging.F("backoff", wait),
				logging.F("error", report.Error))
		}

		if !s.wait(ctx, wait) {
			s.logger.Info("Scheduler stopped")
			return nil
		}
	}
}

// wait sleeps for d while serving manual triggers. It returns false when ctx ends.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case req := <-s.triggers:
			req.reply <- s.RunCycle(req.ctx, TriggerManual)
		case <-timer.C:
			return true
		}
	}
}

// Trigger runs one cycle on the poll goroutine, or inline when Run is not
// active, and returns its report.
func (s *Scheduler) Trigger(ctx context.Context) (CycleReport, error) {
	if !s.status.running.Load() {
		return s.RunCycle(ctx, TriggerManual), nil
	}

	req := triggerRequest{ctx: ctx, reply: make(chan CycleReport, 1)}
	select {
	case s.triggers <- req:
	case <-s.stopped:
		return s.RunCycle(ctx, TriggerManual), nil
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}

	select {
	case report := <-req.reply:
		return report, nil
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}
}

// RunCycle performs a single poll cycle on the calling goroutine. Callers
// other than Run must not overlap it with a running loop; use Trigger.
func (s *Scheduler) RunCycle(ctx context.Context, trigger Trigger) CycleReport {
	started := s.now()
	report := CycleReport{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
		Outcomes:  make(map[string]int),
	}

	ctx = logging.ContextWithCycleID(ctx, report.CycleID)
	ctx, span := s.tracer.StartCycleSpan(ctx, report.CycleID, string(trigger))
	defer span.End()
	logger := s.logger.WithContext(ctx)

	upcoming, err := s.events.StartingSoon(ctx, s.lookahead)
	if err != nil {
		report.Error = err.Error()
		observability.SetError(span, err, "")
		logger.Error("Failed to fetch upcoming events", logging.Err(err))
	} else {
		logger.Debug("Fetched upcoming events", logging.F("count", len(upcoming)))
		for _, event := range upcoming {
			if ctx.Err() != nil {
				break
			}
			report.Events = append(report.Events, s.handle(ctx, logger, event, &report))
		}
	}

	report.Purged = s.processed.Purge(s.retention, s.now())
	if report.Purged > 0 {
		logger.Debug("Purged processed events", logging.F("purged", report.Purged))
	}

	report.FinishedAt = s.now()
	s.finish(ctx, logger, report)
	return report
}

func (s *Scheduler) handle(ctx context.Context, logger logging.Logger, event meeting.Event, report *CycleReport) EventReport {
	key := event.Key()
	line := EventReport{ID: event.ID, Title: event.Title, Start: event.Start}

	if s.processed.Contains(key) {
		line.Skipped = true
		report.Skipped++
		return line
	}

	res := s.process(ctx, logger, event)
	line.Outcome = string(res.Outcome)
	line.Tier = res.Tier
	if res.Err != nil {
		line.Error = res.Err.Error()
	}
	report.Outcomes[line.Outcome]++

	if shouldRecord(ctx, res) {
		s.processed.Add(key, s.now())
	}
	return line
}

// process calls the processor inside a recover boundary.
func (s *Scheduler) process(ctx context.Context, logger logging.Logger, event meeting.Event) (res pipeline.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing event",
				logging.F("event_id", event.ID),
				logging.F("title", event.Title),
				logging.F("panic", fmt.Sprint(r)),
				logging.F("stack", string(debug.Stack())))
			res = pipeline.Result{
				Outcome: outcomeCrashed,
				Tier:    pipeline.TierNone,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return s.processor.Process(ctx, event)
}

// shouldRecord decides whether an event is done. Lookup failures are retried
// next cycle, as is anything interrupted by shutdown before a send completed.
func shouldRecord(ctx context.Context, res pipeline.Result) bool {
	if res.Outcome == pipeline.OutcomeLookupFailed {
		return false
	}
	if ctx.Err() != nil && res.Outcome != pipeline.OutcomeSent {
		return false
	}
	return true
}

func (s *Scheduler) finish(ctx context.Context, logger logging.Logger, report CycleReport) {
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	s.status.recordCycle(report.FinishedAt, report.Error)

	result := "ok"
	if report.Error != "" {
		result = "error"
	}
	s.metrics.RecordCycle(result, string(report.Trigger), elapsed.Seconds(), float64(report.FinishedAt.Unix()))
	s.metrics.SetProcessedEvents(s.processed.Len())

	logger.Info("Poll cycle complete",
		logging.F("trigger", string(report.Trigger)),
		logging.F("events", len(report.Events)),
		logging.F("skipped", report.Skipped),
		logging.F("purged", report.Purged),
		logging.F("duration", elapsed))

	event := events.CycleEvent{
		BaseEvent: events.NewBaseEvent(events.ChannelCycleCompleted),
		CycleID:   report.CycleID,
		Trigger:   string(report.Trigger),
		Events:    len(report.Events),
		Skipped:   report.Skipped,
		Outcomes:  report.Outcomes,
		Purged:    report.Purged,
		Error:     report.Error,
		ElapsedMs: elapsed.Milliseconds(),
	}
	event.TraceID = report.CycleID

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishCycle(pubCtx, event); err != nil {
		s.metrics.RecordPublishFailure()
		logger.Warn("Failed to publish cycle event", logging.Err(err))
	}
}
