package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

type fakeSource struct {
	name      string
	events    []meeting.Event
	err       error
	calls     int
	lastFrom  time.Time
	lastTo    time.Time
	lookupHit int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Events(_ context.Context, from, to time.Time, limit int) ([]meeting.Event, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	var out []meeting.Event
	for _, e := range f.events {
		if inWindow(e.Start, from, to) {
			out = append(out, e)
		}
	}
	return capEvents(out, limit), nil
}

func (f *fakeSource) Event(_ context.Context, id string) (meeting.Event, error) {
	f.lookupHit++
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return meeting.Event{}, rerrors.ErrNotFound
}

func (f *fakeSource) Ping(context.Context) error { return f.err }

var managerNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func ev(id, title string, minutes int) meeting.Event {
	start := managerNow.Add(time.Duration(minutes) * time.Minute)
	return meeting.Event{ID: id, Title: title, Start: start, End: start.Add(30 * time.Minute)}
}

func newTestManager(mode WindowMode, sources ...Source) *Manager {
	m := NewManager(ManagerConfig{Mode: mode}, sources...)
	m.now = func() time.Time { return managerNow }
	return m
}

func TestManager_UpcomingMergesAndDedups(t *testing.T) {
	primary := &fakeSource{name: "primary", events: []meeting.Event{
		ev("a", "Team Sync", 30),
		ev("b", "Design Review", 10),
	}}
	secondary := &fakeSource{name: "secondary", events: []meeting.Event{
		ev("a", "Team Sync", 30),       // same id and start
		ev("x-b", "design review", 10), // same title and start
		ev("c", "Retro", 20),
	}}
	m := newTestManager(WindowLead, primary, secondary)

	events, err := m.Upcoming(context.Background(), managerNow, managerNow.Add(time.Hour), 0)
	require.NoError(t, err)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestManager_UpcomingPartialFailure(t *testing.T) {
	broken := &fakeSource{name: "broken", err: errors.New("boom")}
	ok := &fakeSource{name: "ok", events: []meeting.Event{ev("a", "Team Sync", 30)}}
	m := newTestManager(WindowLead, broken, ok)

	events, err := m.Upcoming(context.Background(), managerNow, managerNow.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestManager_UpcomingAllFail(t *testing.T) {
	m := newTestManager(WindowLead,
		&fakeSource{name: "one", err: errors.New("boom")},
		&fakeSource{name: "two", err: errors.New("bang")},
	)
	_, err := m.Upcoming(context.Background(), managerNow, managerNow.Add(time.Hour), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one: boom")
	assert.Contains(t, err.Error(), "two: bang")
}

func TestManager_NoSources(t *testing.T) {
	m := newTestManager(WindowLead)
	_, err := m.Upcoming(context.Background(), managerNow, managerNow.Add(time.Hour), 0)
	assert.True(t, rerrors.IsConfig(err))
}

func TestManager_StartingSoonLead(t *testing.T) {
	src := &fakeSource{name: "cal", events: []meeting.Event{
		ev("past", "Already started", -5),
		ev("now", "Starting now", 0),
		ev("soon", "Soon", 3),
		ev("edge", "Edge", 10),
		ev("later", "Later", 11),
	}}
	m := newTestManager(WindowLead, src)

	events, err := m.StartingSoon(context.Background(), 10)
	require.NoError(t, err)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"soon", "edge"}, ids)
	assert.Equal(t, managerNow.Add(defaultFetchWindow), src.lastTo)
}

func TestManager_StartingSoonPrecise(t *testing.T) {
	src := &fakeSource{name: "cal", events: []meeting.Event{
		ev("early", "Early", 4),
		ev("lo", "Low edge", 5),
		ev("mid", "Middle", 12),
		ev("hi", "High edge", 15),
		ev("late", "Late", 16),
	}}
	m := newTestManager(WindowPrecise, src)

	events, err := m.StartingSoon(context.Background(), 10)
	require.NoError(t, err)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"lo", "mid", "hi"}, ids)
}

func TestManager_EventCache(t *testing.T) {
	src := &fakeSource{name: "cal", events: []meeting.Event{ev("a", "Team Sync", 30)}}
	m := newTestManager(WindowLead, src)

	_, err := m.Upcoming(context.Background(), managerNow, managerNow.Add(time.Hour), 0)
	require.NoError(t, err)

	e, err := m.Event(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Team Sync", e.Title)
	assert.Equal(t, 0, src.lookupHit)

	m.now = func() time.Time { return managerNow.Add(6 * time.Minute) }
	_, err = m.Event(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, src.lookupHit)

	_, err = m.Event(context.Background(), "zzz")
	assert.True(t, rerrors.IsNotFound(err))
}

func TestParseWindowMode(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowMode
		wantErr bool
	}{
		{"", WindowLead, false},
		{"lead", WindowLead, false},
		{" Precise ", WindowPrecise, false},
		{"exact", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
