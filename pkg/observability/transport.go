package observability

import (
	"net/http"
	"strconv"
	"time"
)

// Transport is an http.RoundTripper that records a metric and a span for every
// request made to one collaborator.
type Transport struct {
	Base         http.RoundTripper
	Collaborator string
	Metrics      *Metrics
	Tracer       *Tracer
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx, span := t.Tracer.StartCallSpan(req.Context(), t.Collaborator, req.Method+" "+req.URL.Path)
	defer span.End()

	start := time.Now()
	resp, err := base.RoundTrip(req.WithContext(ctx))
	elapsed := time.Since(start).Seconds()

	if err != nil {
		t.Metrics.RecordRequest(t.Collaborator, "error", elapsed)
		SetError(span, err, "transport")
		return nil, err
	}
	t.Metrics.RecordRequest(t.Collaborator, strconv.Itoa(resp.StatusCode), elapsed)
	if resp.StatusCode >= 500 {
		SetError(span, &statusError{code: resp.StatusCode}, strconv.Itoa(resp.StatusCode))
	}
	return resp, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "http status " + strconv.Itoa(e.code) }

// NewHTTPClient returns a client whose requests to collaborator are
// instrumented and bounded by timeout.
func NewHTTPClient(collaborator string, timeout time.Duration, m *Metrics, t *Tracer) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &Transport{
			Base:         http.DefaultTransport,
			Collaborator: collaborator,
			Metrics:      m,
			Tracer:       t,
		},
	}
}
