package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//recap//test//EN
BEGIN:VEVENT
UID:weekly-sync@example.com
DTSTAMP:20261001T000000Z
DTSTART:20261005T150000Z
DTEND:20261005T153000Z
SUMMARY:Engineering Weekly Sync
RRULE:FREQ=WEEKLY;COUNT=10
EXDATE:20261019T150000Z
END:VEVENT
BEGIN:VEVENT
UID:weekly-sync@example.com
DTSTAMP:20261001T000000Z
RECURRENCE-ID:20261026T150000Z
DTSTART:20261026T170000Z
DTEND:20261026T173000Z
SUMMARY:Engineering Weekly Sync (moved)
END:VEVENT
BEGIN:VEVENT
UID:kickoff@example.com
DTSTAMP:20261001T000000Z
DTSTART:20261020T100000Z
DTEND:20261020T110000Z
SUMMARY:Project Kickoff
DESCRIPTION:Join at https://example.com/agenda or https://zoom.us/j/123
ATTENDEE;CN=Alice:mailto:alice@example.com
ATTENDEE:mailto:bob@example.com
END:VEVENT
BEGIN:VEVENT
UID:cancelled@example.com
DTSTAMP:20261001T000000Z
DTSTART:20261021T100000Z
DTEND:20261021T110000Z
SUMMARY:Budget review
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:holiday@example.com
DTSTAMP:20261001T000000Z
DTSTART;VALUE=DATE:20261022
SUMMARY:Company holiday
END:VEVENT
END:VCALENDAR
`

func newFeedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestICSSource_Events(t *testing.T) {
	srv := newFeedServer(t, testFeed)
	src := NewICSSource(ICSConfig{URL: srv.URL})

	from := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	events, err := src.Events(context.Background(), from, to, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "Engineering Weekly Sync", events[0].Title)
	assert.True(t, events[0].Start.Equal(time.Date(2026, 10, 12, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30*time.Minute, events[0].End.Sub(events[0].Start))
	assert.True(t, events[0].Recurring)
	assert.Equal(t, "weekly-sync@example.com", events[0].SeriesID)

	kickoff := events[1]
	assert.Equal(t, "Project Kickoff", kickoff.Title)
	assert.False(t, kickoff.Recurring)
	assert.Equal(t, []string{"Alice", "bob@example.com"}, kickoff.Attendees)
	assert.Equal(t, "https://zoom.us/j/123", kickoff.MeetingURL)
	assert.Equal(t, "ics", kickoff.Source)

	moved := events[2]
	assert.Equal(t, "Engineering Weekly Sync (moved)", moved.Title)
	assert.True(t, moved.Start.Equal(time.Date(2026, 10, 26, 17, 0, 0, 0, time.UTC)))
	assert.True(t, moved.Recurring)

	assert.True(t, events[3].Start.Equal(time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)))
}

func TestICSSource_EventsLimit(t *testing.T) {
	srv := newFeedServer(t, testFeed)
	src := NewICSSource(ICSConfig{URL: srv.URL})

	from := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	events, err := src.Events(context.Background(), from, to, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestICSSource_Event(t *testing.T) {
	srv := newFeedServer(t, testFeed)
	src := NewICSSource(ICSConfig{URL: srv.URL})
	src.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	e, err := src.Event(context.Background(), "kickoff@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Project Kickoff", e.Title)

	_, err = src.Event(context.Background(), "missing")
	assert.True(t, rerrors.IsNotFound(err))
}

func TestICSSource_RejectsHTML(t *testing.T) {
	srv := newFeedServer(t, "<!DOCTYPE html><html><body>Sign in</body></html>")
	src := NewICSSource(ICSConfig{URL: srv.URL})

	err := src.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, rerrors.IsMalformed(err))
	assert.Contains(t, err.Error(), "HTML")
}

func TestICSSource_ServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	src := NewICSSource(ICSConfig{
		URL:   srv.URL,
		Retry: retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 2},
	})
	require.NoError(t, src.Ping(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestWindowsTimezoneNormalized(t *testing.T) {
	feed := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//recap//test//EN
BEGIN:VEVENT
UID:tz@example.com
DTSTAMP:20261001T000000Z
DTSTART;TZID=Eastern Standard Time:20261020T090000
DTEND;TZID=Eastern Standard Time:20261020T100000
SUMMARY:Design Review
END:VEVENT
END:VCALENDAR
`
	srv := newFeedServer(t, feed)
	src := NewICSSource(ICSConfig{URL: srv.URL})

	from := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	events, err := src.Events(context.Background(), from, to, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Start.Equal(time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)))
}

func TestExtractMeetingLink(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"prefers conferencing host", "Agenda https://docs.example.com/a then https://meet.google.com/abc-defg-hij", "https://meet.google.com/abc-defg-hij"},
		{"falls back to first url", "See https://example.com/notes", "https://example.com/notes"},
		{"no url", "Room 4B", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMeetingLink(tt.text))
		})
	}
}
