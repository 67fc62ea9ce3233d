package fireflies

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

type rawTranscript struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Date          json.RawMessage `json:"date"`
	Duration      float64         `json:"duration"`
	TranscriptURL string          `json:"transcript_url"`
	Participants  []string        `json:"participants"`
	Attendees     []struct {
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
	} `json:"meeting_attendees"`
	Summary *struct {
		Overview    string          `json:"overview"`
		ActionItems json.RawMessage `json:"action_items"`
		Keywords    json.RawMessage `json:"keywords"`
	} `json:"summary"`
}

func parseTranscript(raw json.RawMessage) (meeting.Transcript, error) {
	var in rawTranscript
	if err := json.Unmarshal(raw, &in); err != nil {
		return meeting.Transcript{}, fmt.Errorf("decode transcript: %w", rerrors.ErrMalformed)
	}
	if in.ID == "" {
		return meeting.Transcript{}, fmt.Errorf("transcript %q has no id: %w", in.Title, rerrors.ErrMalformed)
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return meeting.Transcript{}, fmt.Errorf("transcript %s: %w", in.ID, err)
	}

	t := meeting.Transcript{
		ID:              in.ID,
		Title:           strings.TrimSpace(in.Title),
		Date:            date,
		DurationMinutes: int(in.Duration) / 60,
		MeetingURL:      in.TranscriptURL,
	}
	if t.Title == "" {
		t.Title = "Untitled Meeting"
	}

	for _, a := range in.Attendees {
		switch {
		case a.DisplayName != "":
			t.Participants = append(t.Participants, a.DisplayName)
		case a.Email != "":
			t.Participants = append(t.Participants, a.Email)
		}
	}
	if len(t.Participants) == 0 {
		for _, p := range in.Participants {
			if p = strings.TrimSpace(p); p != "" {
				t.Participants = append(t.Participants, p)
			}
		}
	}

	if in.Summary != nil {
		t.Summary = strings.TrimSpace(in.Summary.Overview)
		t.ActionItems = stringOrList(in.Summary.ActionItems, "\n")
		t.Keywords = stringOrList(in.Summary.Keywords, ",")
	}
	return t, nil
}

// parseDate accepts epoch milliseconds (number or numeric string) and RFC 3339.
func parseDate(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("missing date: %w", rerrors.ErrMalformed)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("date %s: %w", raw, rerrors.ErrMalformed)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(n).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: %w", s, rerrors.ErrMalformed)
}

// stringOrList decodes either a JSON list of strings or a single string
// split on sep. Bullet prefixes and blank entries are dropped.
func stringOrList(raw json.RawMessage, sep string) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		items = strings.Split(s, sep)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		item = strings.TrimLeft(item, "-•* ")
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
