package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
)

// ICSConfig configures an ICSSource.
type ICSConfig struct {
	// Name distinguishes several feeds; defaults to "ics".
	Name string
	// URL is the feed address (http, https or webcal).
	URL string
	// Location is used for floating times. Defaults to UTC.
	Location *time.Location
	Client   *http.Client
	Retry    retry.Policy
	Logger   logging.Logger
}

// ICSSource reads a published iCalendar feed and expands recurring events.
type ICSSource struct {
	name   string
	url    string
	loc    *time.Location
	client *http.Client
	retry  retry.Policy
	logger logging.Logger
	now    func() time.Time
}

// NewICSSource creates a feed source.
func NewICSSource(cfg ICSConfig) *ICSSource {
	name := cfg.Name
	if name == "" {
		name = "ics"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ICSSource{
		name:   name,
		url:    strings.Replace(cfg.URL, "webcal://", "https://", 1),
		loc:    loc,
		client: client,
		retry:  cfg.Retry,
		logger: logger.With(logging.F("source", name)),
		now:    time.Now,
	}
}

func (s *ICSSource) Name() string { return s.name }

// Events downloads the feed and returns occurrences starting in [from, to].
func (s *ICSSource) Events(ctx context.Context, from, to time.Time, limit int) ([]meeting.Event, error) {
	body, err := s.download(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.parse(body, from, to)
	if err != nil {
		return nil, err
	}
	return capEvents(events, limit), nil
}

// Event looks for id among occurrences in the next week.
func (s *ICSSource) Event(ctx context.Context, id string) (meeting.Event, error) {
	now := s.now()
	events, err := s.Events(ctx, now.Add(-24*time.Hour), now.Add(7*24*time.Hour), 0)
	if err != nil {
		return meeting.Event{}, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return meeting.Event{}, fmt.Errorf("ics event %q: %w", id, rerrors.ErrNotFound)
}

// Ping downloads and validates the feed header.
func (s *ICSSource) Ping(ctx context.Context) error {
	_, err := s.download(ctx)
	return err
}

func (s *ICSSource) download(ctx context.Context) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, s.retry, func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("Feed download failed, retrying", logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
	}, func(ctx context.Context) error {
		var gerr error
		body, gerr = get(ctx, s.client, s.url, s.name, "feed")
		return gerr
	})
	if err != nil {
		return nil, err
	}
	if err := validateICalFormat(body); err != nil {
		return nil, &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: s.name, Op: "feed", Message: err.Error(), Cause: err}
	}
	return body, nil
}

func validateICalFormat(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	upper := strings.ToUpper(string(trimmed[:min(len(trimmed), 15)]))
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data; the feed URL may require authentication")
	}
	if !bytes.HasPrefix(trimmed, []byte("BEGIN:VCALENDAR")) {
		return fmt.Errorf("invalid iCalendar data: expected BEGIN:VCALENDAR")
	}
	return nil
}

// override is a RECURRENCE-ID instance replacing one generated occurrence.
type override struct {
	recurrenceID time.Time
	event        meeting.Event
	cancelled    bool
}

func (s *ICSSource) parse(body []byte, from, to time.Time) ([]meeting.Event, error) {
	dec := ical.NewDecoder(bytes.NewReader(body))

	var masters []*ical.Component
	overrides := make(map[string][]override)
	var singles []meeting.Event

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: s.name, Op: "decode", Message: err.Error(), Cause: err}
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			normalizeTimezones(comp)

			if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil {
				ev, err := s.parseEvent(comp)
				if err != nil {
					s.logger.Warn("Skipping malformed recurrence override", logging.Err(err))
					continue
				}
				when, err := rid.DateTime(s.loc)
				if err != nil {
					continue
				}
				ev.Recurring = true
				overrides[ev.ID] = append(overrides[ev.ID], override{recurrenceID: when, event: ev, cancelled: isCancelled(comp, ev.Title)})
				continue
			}

			if comp.Props.Get(ical.PropRecurrenceRule) != nil {
				masters = append(masters, comp)
				continue
			}

			ev, err := s.parseEvent(comp)
			if err != nil {
				s.logger.Warn("Skipping malformed calendar event", logging.Err(err))
				continue
			}
			if isCancelled(comp, ev.Title) {
				continue
			}
			singles = append(singles, ev)
		}
	}

	var out []meeting.Event
	for _, ev := range singles {
		if inWindow(ev.Start, from, to) {
			out = append(out, ev)
		}
	}
	for _, comp := range masters {
		occurrences, err := s.expand(comp, from, to, overrides)
		if err != nil {
			s.logger.Warn("Skipping unexpandable recurring event", logging.Err(err))
			continue
		}
		out = append(out, occurrences...)
	}
	// Overrides moved into the window from an occurrence outside it.
	for _, list := range overrides {
		for _, o := range list {
			if !o.cancelled && inWindow(o.event.Start, from, to) && !inWindow(o.recurrenceID, from, to) {
				out = append(out, o.event)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *ICSSource) expand(comp *ical.Component, from, to time.Time, overrides map[string][]override) ([]meeting.Event, error) {
	base, err := s.parseEvent(comp)
	if err != nil {
		return nil, err
	}
	if isCancelled(comp, base.Title) {
		return nil, nil
	}
	base.Recurring = true
	base.SeriesID = base.ID
	duration := base.End.Sub(base.Start)

	ruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	opt, err := rrule.StrToROption(ruleProp.Value)
	if err != nil {
		return nil, fmt.Errorf("event %q RRULE %q: %w", base.Title, ruleProp.Value, err)
	}
	opt.Dtstart = base.Start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("event %q RRULE: %w", base.Title, err)
	}

	excluded := make(map[int64]bool)
	for _, ex := range comp.Props.Values(ical.PropExceptionDates) {
		for _, t := range s.parseDateList(ex) {
			excluded[t.Unix()] = true
		}
	}
	replaced := make(map[int64]override)
	for _, o := range overrides[base.ID] {
		replaced[o.recurrenceID.Unix()] = o
	}

	var out []meeting.Event
	for _, start := range rule.Between(from, to, true) {
		if excluded[start.Unix()] {
			continue
		}
		if o, ok := replaced[start.Unix()]; ok {
			if !o.cancelled && inWindow(o.event.Start, from, to) {
				ev := o.event
				ev.SeriesID = base.ID
				out = append(out, ev)
			}
			continue
		}
		ev := base
		ev.Start = start
		ev.End = start.Add(duration)
		out = append(out, ev)
	}
	return out, nil
}

func (s *ICSSource) parseEvent(comp *ical.Component) (meeting.Event, error) {
	ev := meeting.Event{Source: s.name}

	if p := comp.Props.Get(ical.PropSummary); p != nil {
		ev.Title = strings.TrimSpace(p.Value)
	}
	if ev.Title == "" {
		ev.Title = "Untitled Meeting"
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return ev, fmt.Errorf("event %q has no DTSTART: %w", ev.Title, rerrors.ErrMalformed)
	}
	if isDateOnly(startProp) {
		return ev, fmt.Errorf("event %q is all-day: %w", ev.Title, rerrors.ErrMalformed)
	}
	start, err := startProp.DateTime(s.loc)
	if err != nil {
		return ev, fmt.Errorf("event %q DTSTART: %w", ev.Title, rerrors.ErrMalformed)
	}
	ev.Start = start
	ev.End = start.Add(time.Hour)
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		if end, err := p.DateTime(s.loc); err == nil && end.After(start) {
			ev.End = end
		}
	}

	if p := comp.Props.Get(ical.PropUID); p != nil {
		ev.ID = p.Value
	}
	if ev.ID == "" {
		ev.ID = s.name + "_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(ev.Title+"|"+start.UTC().Format(time.RFC3339))).String()
	}

	if p := comp.Props.Get(ical.PropDescription); p != nil {
		ev.Description = p.Value
		ev.MeetingURL = extractMeetingLink(p.Value)
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		ev.Location = p.Value
		if ev.MeetingURL == "" {
			ev.MeetingURL = extractMeetingLink(p.Value)
		}
	}

	for _, a := range comp.Props.Values(ical.PropAttendee) {
		name := a.Params.Get(ical.ParamCommonName)
		if name == "" {
			name = strings.TrimPrefix(strings.TrimPrefix(a.Value, "mailto:"), "MAILTO:")
		}
		if name != "" {
			ev.Attendees = append(ev.Attendees, name)
		}
	}
	return ev, nil
}

// parseDateList reads a possibly comma-separated EXDATE value.
func (s *ICSSource) parseDateList(p ical.Prop) []time.Time {
	loc := s.loc
	if tzid := p.Params.Get(ical.ParamTimezoneID); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	var out []time.Time
	for _, v := range strings.Split(p.Value, ",") {
		v = strings.TrimSpace(v)
		switch {
		case strings.HasSuffix(v, "Z"):
			if t, err := time.Parse("20060102T150405Z", v); err == nil {
				out = append(out, t)
			}
		case len(v) == len("20060102"):
			if t, err := time.ParseInLocation("20060102", v, loc); err == nil {
				out = append(out, t)
			}
		default:
			if t, err := time.ParseInLocation("20060102T150405", v, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func isDateOnly(p *ical.Prop) bool {
	return strings.EqualFold(p.Params.Get(ical.ParamValue), "DATE") || len(strings.TrimSpace(p.Value)) == len("20060102")
}

var cancelledTitle = regexp.MustCompile(`^[^a-z0-9]*cancel+ed`)

func isCancelled(comp *ical.Component, title string) bool {
	if p := comp.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return true
	}
	return cancelledTitle.MatchString(strings.ToLower(title))
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^\[\]` + "`" + `]+`)

var meetingHosts = []string{"zoom", "meet.google", "teams.microsoft", "webex", "gotomeeting"}

func extractMeetingLink(text string) string {
	matches := urlPattern.FindAllString(text, -1)
	for _, m := range matches {
		lower := strings.ToLower(m)
		for _, host := range meetingHosts {
			if strings.Contains(lower, host) {
				return m
			}
		}
	}
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
