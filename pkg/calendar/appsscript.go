package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
)

// AppsScriptName is the Source name of the web-app backend.
const AppsScriptName = "apps_script"

// minFetchHours is the smallest look-ahead requested from the endpoint.
const minFetchHours = 2

// AppsScriptConfig configures an AppsScriptSource.
type AppsScriptConfig struct {
	// URL is the deployed web-app endpoint. It is queried as URL?hours=N.
	URL    string
	Client *http.Client
	Retry  retry.Policy
	Logger logging.Logger
}

// AppsScriptSource reads events from a lightweight JSON endpoint that
// proxies a hosted calendar (typically a Google Apps Script web app).
type AppsScriptSource struct {
	url    string
	client *http.Client
	retry  retry.Policy
	logger logging.Logger
	now    func() time.Time
}

// NewAppsScriptSource creates the source. A nil client gets a 30s timeout.
func NewAppsScriptSource(cfg AppsScriptConfig) *AppsScriptSource {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AppsScriptSource{
		url:    cfg.URL,
		client: client,
		retry:  cfg.Retry,
		logger: logger.With(logging.F("source", AppsScriptName)),
		now:    time.Now,
	}
}

func (s *AppsScriptSource) Name() string { return AppsScriptName }

type appsScriptResponse struct {
	Success *bool             `json:"success"`
	Error   string            `json:"error"`
	Events  []json.RawMessage `json:"events"`
}

type appsScriptEvent struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	Attendees   []string `json:"attendees"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	MeetingURL  string   `json:"meetingUrl"`
	HangoutLink string   `json:"hangoutLink"`
	IsRecurring bool     `json:"isRecurring"`
	SeriesID    string   `json:"seriesId"`
}

// Events fetches enough hours ahead to cover to and filters to the window.
func (s *AppsScriptSource) Events(ctx context.Context, from, to time.Time, limit int) ([]meeting.Event, error) {
	hours := int(math.Ceil(to.Sub(s.now()).Hours()))
	if hours < minFetchHours {
		hours = minFetchHours
	}

	all, err := s.fetch(ctx, hours)
	if err != nil {
		return nil, err
	}

	var out []meeting.Event
	for _, e := range all {
		if inWindow(e.Start, from, to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return capEvents(out, limit), nil
}

// Event scans the next day of events for id.
func (s *AppsScriptSource) Event(ctx context.Context, id string) (meeting.Event, error) {
	all, err := s.fetch(ctx, 24)
	if err != nil {
		return meeting.Event{}, err
	}
	for _, e := range all {
		if e.ID == id {
			return e, nil
		}
	}
	return meeting.Event{}, fmt.Errorf("apps script event %q: %w", id, rerrors.ErrNotFound)
}

// Ping requests the smallest window and checks the endpoint reports success.
func (s *AppsScriptSource) Ping(ctx context.Context) error {
	_, err := s.fetch(ctx, 1)
	return err
}

func (s *AppsScriptSource) fetch(ctx context.Context, hours int) ([]meeting.Event, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse apps script url: %w", err)
	}
	q := u.Query()
	q.Set("hours", strconv.Itoa(hours))
	u.RawQuery = q.Encode()

	var body []byte
	err = retry.Do(ctx, s.retry, s.onRetry, func(ctx context.Context) error {
		var gerr error
		body, gerr = get(ctx, s.client, u.String(), AppsScriptName, "events")
		return gerr
	})
	if err != nil {
		return nil, err
	}

	var resp appsScriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: AppsScriptName, Op: "events", Message: err.Error(), Cause: err}
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &rerrors.CallError{Code: rerrors.ErrRequest, Collaborator: AppsScriptName, Op: "events", Message: resp.Error}
	}

	events := make([]meeting.Event, 0, len(resp.Events))
	for _, raw := range resp.Events {
		e, err := parseAppsScriptEvent(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed calendar event", logging.Err(err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *AppsScriptSource) onRetry(attempt int, err error, wait time.Duration) {
	s.logger.Warn("Calendar request failed, retrying",
		logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
}

func parseAppsScriptEvent(raw json.RawMessage) (meeting.Event, error) {
	var in appsScriptEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return meeting.Event{}, fmt.Errorf("decode event: %w", rerrors.ErrMalformed)
	}
	if in.StartTime == "" {
		return meeting.Event{}, fmt.Errorf("event %q has no startTime: %w", in.Title, rerrors.ErrMalformed)
	}
	start, err := parseTimestamp(in.StartTime)
	if err != nil {
		return meeting.Event{}, fmt.Errorf("event %q startTime %q: %w", in.Title, in.StartTime, rerrors.ErrMalformed)
	}
	end := start.Add(time.Hour)
	if in.EndTime != "" {
		if t, err := parseTimestamp(in.EndTime); err == nil {
			end = t
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled Meeting"
	}
	id := in.ID
	if id == "" {
		id = "apps_script_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(title+"|"+start.UTC().Format(time.RFC3339))).String()
	}
	link := in.MeetingURL
	if link == "" {
		link = in.HangoutLink
	}

	return meeting.Event{
		ID:          id,
		Title:       title,
		Start:       start,
		End:         end,
		Attendees:   in.Attendees,
		Description: in.Description,
		Location:    in.Location,
		MeetingURL:  link,
		Recurring:   in.IsRecurring,
		SeriesID:    in.SeriesID,
		Source:      AppsScriptName,
	}, nil
}

// parseTimestamp accepts RFC 3339, and zone-less ISO 8601 read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
