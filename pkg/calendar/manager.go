package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// WindowMode selects how StartingSoon picks events.
type WindowMode string

const (
	// WindowPrecise keeps events starting within ±PreciseSlack of now+N.
	WindowPrecise WindowMode = "precise"
	// WindowLead keeps every event starting in (now, now+N].
	WindowLead WindowMode = "lead"
)

// PreciseSlack is the half-width of the precise window.
const PreciseSlack = 5 * time.Minute

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultFetchWindow = 2 * time.Hour
	defaultEventLimit  = 50
)

// ParseWindowMode converts a config value, defaulting to lead.
func ParseWindowMode(s string) (WindowMode, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowLead:
		return WindowLead, nil
	case WindowPrecise:
		return WindowPrecise, nil
	default:
		return "", fmt.Errorf("unknown window mode %q: %w", s, rerrors.ErrConfig)
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Mode WindowMode
	// FetchWindow is how far ahead lead mode asks sources for events.
	FetchWindow time.Duration
	CacheTTL    time.Duration
	Logger      logging.Logger
}

type cachedEvent struct {
	event  meeting.Event
	stored time.Time
}

// Manager merges several sources in priority order.
type Manager struct {
	sources     []Source
	mode        WindowMode
	fetchWindow time.Duration
	cacheTTL    time.Duration
	logger      logging.Logger
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cachedEvent
}

// NewManager creates a Manager. Earlier sources win when two report the same event.
func NewManager(cfg ManagerConfig, sources ...Source) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = WindowLead
	}
	if cfg.FetchWindow <= 0 {
		cfg.FetchWindow = defaultFetchWindow
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Manager{
		sources:     sources,
		mode:        cfg.Mode,
		fetchWindow: cfg.FetchWindow,
		cacheTTL:    cfg.CacheTTL,
		logger:      cfg.Logger,
		now:         time.Now,
		cache:       make(map[string]cachedEvent),
	}
}

// Sources returns the configured backends in priority order.
func (m *Manager) Sources() []Source {
	return m.sources
}

// Upcoming returns merged events starting in [from, to], sorted by start.
// A failing source is logged and skipped; an error is returned only when
// every source failed.
func (m *Manager) Upcoming(ctx context.Context, from, to time.Time, limit int) ([]meeting.Event, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no calendar sources configured: %w", rerrors.ErrConfig)
	}

	var (
		merged []meeting.Event
		errs   []error
		byID   = make(map[string]bool)
		byName = make(map[string]bool)
	)
	for _, src := range m.sources {
		events, err := src.Events(ctx, from, to, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.WithContext(ctx).Error("Calendar source failed",
				logging.F("source", src.Name()), logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		for _, e := range events {
			idKey := e.Key().String()
			nameKey := strings.ToLower(strings.TrimSpace(e.Title)) + "|" + e.Start.UTC().Format(time.RFC3339)
			if byID[idKey] || byName[nameKey] {
				continue
			}
			byID[idKey] = true
			byName[nameKey] = true
			merged = append(merged, e)
		}
	}
	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Start.Before(merged[j].Start) })
	merged = capEvents(merged, limit)
	m.remember(merged)
	return merged, nil
}

// StartingSoon returns events the bot should act on now, given a lead of minutesAhead.
func (m *Manager) StartingSoon(ctx context.Context, minutesAhead int) ([]meeting.Event, error) {
	now := m.now()
	lead := time.Duration(minutesAhead) * time.Minute

	if m.mode == WindowPrecise {
		target := now.Add(lead)
		return m.Upcoming(ctx, target.Add(-PreciseSlack), target.Add(PreciseSlack), defaultEventLimit)
	}

	window := m.fetchWindow
	if window < lead {
		window = lead
	}
	events, err := m.Upcoming(ctx, now, now.Add(window), defaultEventLimit)
	if err != nil {
		return nil, err
	}
	var out []meeting.Event
	for _, e := range events {
		until := e.Start.Sub(now)
		if until > 0 && until <= lead {
			out = append(out, e)
		}
	}
	return out, nil
}

// Event returns one event, from cache when fresh.
func (m *Manager) Event(ctx context.Context, id string) (meeting.Event, error) {
	m.mu.Lock()
	c, ok := m.cache[id]
	m.mu.Unlock()
	if ok && m.now().Sub(c.stored) < m.cacheTTL {
		return c.event, nil
	}

	var lastErr error
	for _, src := range m.sources {
		e, err := src.Event(ctx, id)
		if err == nil {
			m.remember([]meeting.Event{e})
			return e, nil
		}
		if !rerrors.IsNotFound(err) {
			m.logger.WithContext(ctx).Warn("Calendar source lookup failed",
				logging.F("source", src.Name()), logging.F("event_id", id), logging.Err(err))
			lastErr = err
		}
	}
	if lastErr != nil {
		return meeting.Event{}, lastErr
	}
	return meeting.Event{}, fmt.Errorf("event %q: %w", id, rerrors.ErrNotFound)
}

func (m *Manager) remember(events []meeting.Event) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.cache {
		if now.Sub(c.stored) >= m.cacheTTL {
			delete(m.cache, id)
		}
	}
	for _, e := range events {
		m.cache[e.ID] = cachedEvent{event: e, stored: now}
	}
}
