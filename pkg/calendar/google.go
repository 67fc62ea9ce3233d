package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
)

// GoogleName is the default Source name of the Calendar API backend.
const GoogleName = "google"

// DefaultGoogleCalendarID reads the authenticated account's own calendar.
const DefaultGoogleCalendarID = "primary"

// GoogleConfig configures a GoogleSource.
//
// Credentials are taken from the first of CredentialsFile (a service account
// or authorized-user JSON file), APIKey (public calendars only) or Client
// (already authorized).
type GoogleConfig struct {
	Name            string
	CalendarID      string
	CredentialsFile string
	APIKey          string
	// Endpoint overrides the API base URL.
	Endpoint string
	Client   *http.Client
	Retry    retry.Policy
	Logger   logging.Logger
}

// GoogleSource reads events through the Google Calendar API. Recurring
// events are expanded server-side into single occurrences.
type GoogleSource struct {
	name       string
	calendarID string
	svc        *gcal.Service
	retry      retry.Policy
	logger     logging.Logger
	now        func() time.Time
}

var errEnoughEvents = errors.New("enough events")

// NewGoogleSource creates the API service for cfg.
func NewGoogleSource(ctx context.Context, cfg GoogleConfig) (*GoogleSource, error) {
	name := cfg.Name
	if name == "" {
		name = GoogleName
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = DefaultGoogleCalendarID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(gcal.CalendarReadonlyScope))
	case cfg.APIKey != "":
		base := cfg.Client
		if base == nil {
			base = &http.Client{Timeout: 30 * time.Second}
		}
		keyed := *base
		keyed.Transport = &transport.APIKey{Key: cfg.APIKey, Transport: base.Transport}
		opts = append(opts, option.WithHTTPClient(&keyed))
	case cfg.Client != nil:
		opts = append(opts, option.WithHTTPClient(cfg.Client))
	default:
		return nil, fmt.Errorf("%w: google calendar %s needs credentials_file or api_key", rerrors.ErrConfig, name)
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google calendar service: %w", err)
	}
	return &GoogleSource{
		name:       name,
		calendarID: calendarID,
		svc:        svc,
		retry:      cfg.Retry,
		logger:     logger.With(logging.F("source", name), logging.F("calendar_id", calendarID)),
		now:        time.Now,
	}, nil
}

func (s *GoogleSource) Name() string { return s.name }

// Events lists single occurrences starting in [from, to] in start order.
func (s *GoogleSource) Events(ctx context.Context, from, to time.Time, limit int) ([]meeting.Event, error) {
	var out []meeting.Event
	err := retry.Do(ctx, s.retry, s.onRetry, func(ctx context.Context) error {
		out = out[:0]
		// timeMin is an exclusive bound on end time, so an event already
		// underway at from is returned and then dropped by inWindow.
		call := s.svc.Events.List(s.calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			ShowDeleted(false).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Add(time.Second).Format(time.RFC3339))
		if limit > 0 && limit < 250 {
			call = call.MaxResults(int64(limit))
		}
		err := call.Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				ev, err := s.convert(item)
				if err != nil {
					s.logger.Debug("Skipping calendar event", logging.Err(err))
					continue
				}
				if inWindow(ev.Start, from, to) {
					out = append(out, ev)
				}
				if limit > 0 && len(out) >= limit {
					return errEnoughEvents
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errEnoughEvents) {
			return s.classify(err, "events.list")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return capEvents(out, limit), nil
}

// Event fetches one occurrence by its instance id.
func (s *GoogleSource) Event(ctx context.Context, id string) (meeting.Event, error) {
	var item *gcal.Event
	err := retry.Do(ctx, s.retry, s.onRetry, func(ctx context.Context) error {
		var gerr error
		item, gerr = s.svc.Events.Get(s.calendarID, id).Context(ctx).Do()
		if gerr != nil {
			return s.classify(gerr, "events.get")
		}
		return nil
	})
	if err != nil {
		return meeting.Event{}, err
	}
	if item.Status == "cancelled" {
		return meeting.Event{}, fmt.Errorf("google event %q is cancelled: %w", id, rerrors.ErrNotFound)
	}
	return s.convert(item)
}

// Ping lists at most one upcoming event.
func (s *GoogleSource) Ping(ctx context.Context) error {
	_, err := s.svc.Events.List(s.calendarID).
		SingleEvents(true).
		MaxResults(1).
		TimeMin(s.now().Format(time.RFC3339)).
		Context(ctx).
		Do()
	if err != nil {
		return s.classify(err, "ping")
	}
	return nil
}

func (s *GoogleSource) onRetry(attempt int, err error, wait time.Duration) {
	s.logger.Warn("Calendar request failed, retrying",
		logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
}

func (s *GoogleSource) classify(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return rerrors.FromStatus(s.name, op, gerr.Code, msg)
	}
	return rerrors.Classify(err, s.name, op)
}

func (s *GoogleSource) convert(item *gcal.Event) (meeting.Event, error) {
	title := strings.TrimSpace(item.Summary)
	if title == "" {
		title = "Untitled Meeting"
	}
	if item.Status == "cancelled" {
		return meeting.Event{}, fmt.Errorf("event %q is cancelled: %w", title, rerrors.ErrMalformed)
	}
	if item.Start == nil || item.Start.DateTime == "" {
		return meeting.Event{}, fmt.Errorf("event %q is all-day: %w", title, rerrors.ErrMalformed)
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return meeting.Event{}, fmt.Errorf("event %q start %q: %w", title, item.Start.DateTime, rerrors.ErrMalformed)
	}
	end := start.Add(time.Hour)
	if item.End != nil && item.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil && t.After(start) {
			end = t
		}
	}

	ev := meeting.Event{
		ID:          item.Id,
		Title:       title,
		Start:       start,
		End:         end,
		Description: item.Description,
		Location:    item.Location,
		MeetingURL:  googleMeetingURL(item),
		Recurring:   item.RecurringEventId != "",
		SeriesID:    item.RecurringEventId,
		Source:      s.name,
	}
	for _, a := range item.Attendees {
		if a == nil || a.Resource {
			continue
		}
		name := a.DisplayName
		if name == "" {
			name = a.Email
		}
		if name != "" {
			ev.Attendees = append(ev.Attendees, name)
		}
	}
	if ev.MeetingURL == "" {
		ev.MeetingURL = extractMeetingLink(item.Description)
	}
	if ev.MeetingURL == "" {
		ev.MeetingURL = extractMeetingLink(item.Location)
	}
	return ev, nil
}

// googleMeetingURL prefers the Meet link, then any video conference entry point.
func googleMeetingURL(item *gcal.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData == nil {
		return ""
	}
	for _, ep := range item.ConferenceData.EntryPoints {
		if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}
