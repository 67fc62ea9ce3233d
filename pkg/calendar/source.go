// Package calendar fetches upcoming meetings from one or more calendar
// backends. Every backend implements Source; the Manager merges them.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// Source is one calendar backend.
type Source interface {
	// Name identifies the backend in logs, metrics and status output.
	Name() string
	// Events returns occurrences starting in [from, to], at most limit when limit > 0.
	Events(ctx context.Context, from, to time.Time, limit int) ([]meeting.Event, error)
	// Event returns a single event by id, or an error matching errors.ErrNotFound.
	Event(ctx context.Context, id string) (meeting.Event, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

const maxBodyBytes = 10 << 20

// get performs a GET and classifies transport and status failures.
func get(ctx context.Context, client *http.Client, url, collaborator, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, rerrors.Classify(err, collaborator, op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, rerrors.Classify(err, collaborator, op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rerrors.FromStatus(collaborator, op, resp.StatusCode, string(body))
	}
	return body, nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func capEvents(events []meeting.Event, limit int) []meeting.Event {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}
