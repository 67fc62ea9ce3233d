// Package meeting holds the calendar event and transcript record types shared
// by the calendar, transcript, series and pipeline packages.
package meeting

import (
	"fmt"
	"time"
)

// Record is anything that can be placed in a meeting series: it has a title
// and the time it happened (or will happen).
type Record interface {
	SeriesTitle() string
	OccurredAt() time.Time
}

// Event is one occurrence of a calendar meeting.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	MeetingURL  string    `json:"meeting_url,omitempty"`
	Recurring   bool      `json:"recurring"`
	SeriesID    string    `json:"series_id,omitempty"` // calendar-provided, may be unreliable
	Source      string    `json:"source,omitempty"`    // calendar backend name
}

func (e Event) SeriesTitle() string   { return e.Title }
func (e Event) OccurredAt() time.Time { return e.Start }

// Key returns the dedup key for this occurrence: id plus start instant.
// Two occurrences of one recurring event share an ID but not a start.
func (e Event) Key() EventKey {
	return EventKey{ID: e.ID, Start: e.Start}
}

// MinutesUntil returns whole minutes from now until the event starts.
func (e Event) MinutesUntil(now time.Time) int {
	return int(e.Start.Sub(now) / time.Minute)
}

// EventKey identifies a single occurrence for deduplication.
type EventKey struct {
	ID    string
	Start time.Time
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s_%s", k.ID, k.Start.UTC().Format(time.RFC3339))
}

// Transcript is a recorded past meeting with its generated summary.
type Transcript struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	Summary         string    `json:"summary,omitempty"`
	ActionItems     []string  `json:"action_items,omitempty"`
	Participants    []string  `json:"participants,omitempty"`
	Keywords        []string  `json:"keywords,omitempty"`
	MeetingURL      string    `json:"meeting_url,omitempty"`
}

func (t Transcript) SeriesTitle() string   { return t.Title }
func (t Transcript) OccurredAt() time.Time { return t.Date }
