package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/recap-bot/pkg/events"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/pipeline"
)

type fakeEvents struct {
	mu     sync.Mutex
	events []meeting.Event
	err    error
	calls  int
}

func (f *fakeEvents) StartingSoon(_ context.Context, _ int) ([]meeting.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]meeting.Event(nil), f.events...), nil
}

func (f *fakeEvents) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProcessor struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string]pipeline.Outcome
	panicOn  string
	onCall   func()
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{calls: map[string]int{}, outcomes: map[string]pipeline.Outcome{}}
}

func (f *fakeProcessor) Process(_ context.Context, event meeting.Event) pipeline.Result {
	f.mu.Lock()
	f.calls[event.ID]++
	outcome, ok := f.outcomes[event.ID]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if event.ID == f.panicOn {
		panic("boom")
	}
	if !ok {
		outcome = pipeline.OutcomeSent
	}
	return pipeline.Result{Outcome: outcome, Tier: "key"}
}

func (f *fakeProcessor) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type recordingPublisher struct {
	events.NopPublisher
	mu     sync.Mutex
	cycles []events.CycleEvent
}

func (r *recordingPublisher) PublishCycle(_ context.Context, e events.CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, e)
	return nil
}

var baseTime = time.Date(2025, 10, 20, 14, 30, 0, 0, time.UTC)

func event(id string, offset time.Duration) meeting.Event {
	return meeting.Event{ID: id, Title: "Meeting " + id, Start: baseTime.Add(offset), Recurring: true}
}

func newTestScheduler(src EventSource, proc Processor) *Scheduler {
	s := New(Config{Events: src, Processor: proc, Interval: time.Hour})
	s.now = func() time.Time { return baseTime }
	return s
}

func TestRunCycle_ProcessesEachOccurrenceOnce(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute), event("b", 45*time.Minute)}}
	proc := newFakeProcessor()
	s := newTestScheduler(src, proc)

	first := s.RunCycle(context.Background(), TriggerTimer)
	second := s.RunCycle(context.Background(), TriggerTimer)

	assert.Equal(t, 1, proc.count("a"))
	assert.Equal(t, 1, proc.count("b"))
	assert.Equal(t, map[string]int{"sent": 2}, first.Outcomes)
	assert.Zero(t, first.Skipped)
	assert.Equal(t, 2, second.Skipped)
	assert.Empty(t, second.Outcomes)
	assert.Equal(t, 2, s.Processed().Len())
}

func TestRunCycle_NextOccurrenceIsNew(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("weekly", 30*time.Minute)}}
	proc := newFakeProcessor()
	s := newTestScheduler(src, proc)

	s.RunCycle(context.Background(), TriggerTimer)
	src.events = []meeting.Event{event("weekly", 7*24*time.Hour)}
	s.RunCycle(context.Background(), TriggerTimer)

	assert.Equal(t, 2, proc.count("weekly"))
}

func TestRunCycle_RecordingRules(t *testing.T) {
	tests := []struct {
		outcome  pipeline.Outcome
		recorded bool
	}{
		{pipeline.OutcomeSent, true},
		{pipeline.OutcomeSendFailed, true},
		{pipeline.OutcomeNoChannel, true},
		{pipeline.OutcomeNoAction, true},
		{pipeline.OutcomeLookupFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute)}}
			proc := newFakeProcessor()
			proc.outcomes["a"] = tt.outcome
			s := newTestScheduler(src, proc)

			s.RunCycle(context.Background(), TriggerTimer)
			s.RunCycle(context.Background(), TriggerTimer)

			assert.Equal(t, tt.recorded, s.Processed().Contains(event("a", 30*time.Minute).Key()))
			if tt.recorded {
				assert.Equal(t, 1, proc.count("a"))
			} else {
				assert.Equal(t, 2, proc.count("a"))
			}
		})
	}
}

func TestRunCycle_CancelledBeforeSendIsRetried(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute), event("b", 40*time.Minute)}}
	proc := newFakeProcessor()
	proc.outcomes["a"] = pipeline.OutcomeSendFailed
	s := newTestScheduler(src, proc)

	ctx, cancel := context.WithCancel(context.Background())
	proc.onCall = cancel

	report := s.RunCycle(ctx, TriggerTimer)

	assert.Equal(t, 1, proc.count("a"))
	assert.Zero(t, proc.count("b"), "no further events after cancellation")
	assert.Len(t, report.Events, 1)
	assert.Zero(t, s.Processed().Len())
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("bad", 20*time.Minute), event("good", 30*time.Minute)}}
	proc := newFakeProcessor()
	proc.panicOn = "bad"
	s := newTestScheduler(src, proc)

	var report CycleReport
	require.NotPanics(t, func() {
		report = s.RunCycle(context.Background(), TriggerTimer)
	})

	require.Len(t, report.Events, 2)
	assert.Equal(t, string(outcomeCrashed), report.Events[0].Outcome)
	assert.Contains(t, report.Events[0].Error, "boom")
	assert.Equal(t, "sent", report.Events[1].Outcome)
	assert.Equal(t, 1, proc.count("good"))
	assert.Empty(t, report.Error)
}

func TestRunCycle_SourceError(t *testing.T) {
	src := &fakeEvents{err: errors.New("calendar down")}
	s := newTestScheduler(src, newFakeProcessor())

	report := s.RunCycle(context.Background(), TriggerTimer)

	assert.Equal(t, "calendar down", report.Error)
	status := s.Status()
	assert.EqualValues(t, 1, status.Cycles)
	assert.EqualValues(t, 1, status.FailedCycles)
	assert.Equal(t, "calendar down", status.LastError)
}

func TestRunCycle_PurgesExpiredKeys(t *testing.T) {
	src := &fakeEvents{}
	s := newTestScheduler(src, newFakeProcessor())
	stale := meeting.EventKey{ID: "stale", Start: baseTime.Add(-30 * time.Hour)}
	s.Processed().Add(stale, baseTime.Add(-25*time.Hour))

	report := s.RunCycle(context.Background(), TriggerTimer)

	assert.Equal(t, 1, report.Purged)
	assert.False(t, s.Processed().Contains(stale))
}

func TestRunCycle_PublishesCycleEvent(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute)}}
	pub := &recordingPublisher{}
	s := New(Config{Events: src, Processor: newFakeProcessor(), Publisher: pub})

	report := s.RunCycle(context.Background(), TriggerManual)

	require.Len(t, pub.cycles, 1)
	got := pub.cycles[0]
	assert.Equal(t, report.CycleID, got.CycleID)
	assert.Equal(t, report.CycleID, got.TraceID)
	assert.Equal(t, "manual", got.Trigger)
	assert.Equal(t, 1, got.Events)
	assert.Equal(t, map[string]int{"sent": 1}, got.Outcomes)
	assert.Equal(t, events.ChannelCycleCompleted, got.EventType)
}

func TestStatus_TracksProgress(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute)}}
	s := newTestScheduler(src, newFakeProcessor())

	before := s.Status()
	assert.False(t, before.Running)
	assert.True(t, before.LastPoll.IsZero())

	s.RunCycle(context.Background(), TriggerTimer)

	after := s.Status()
	assert.Equal(t, 1, after.ProcessedEvents)
	assert.True(t, after.LastPoll.Equal(baseTime))
	assert.Empty(t, after.LastError)
}

func TestTrigger_InlineWhenNotRunning(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute)}}
	proc := newFakeProcessor()
	s := newTestScheduler(src, proc)

	report, err := s.Trigger(context.Background())

	require.NoError(t, err)
	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 1, proc.count("a"))
}

func TestRun_ServesTriggersAndStops(t *testing.T) {
	src := &fakeEvents{events: []meeting.Event{event("a", 30*time.Minute)}}
	proc := newFakeProcessor()
	s := New(Config{Events: src, Processor: proc, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.Status().Running && src.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	report, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, 1, proc.count("a"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, s.Status().Running)

	// After the loop exits, triggers run inline.
	report, err = s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	src := &fakeEvents{err: errors.New("down")}
	s := New(Config{
		Events:       src,
		Processor:    newFakeProcessor(),
		Interval:     time.Millisecond,
		ErrorBackoff: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, src.callCount(), "second poll waits for the backoff")
}
