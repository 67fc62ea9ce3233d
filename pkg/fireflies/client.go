// Package fireflies reads meeting transcripts and summaries from the
// Fireflies.ai GraphQL API.
package fireflies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
	"github.com/otherjamesbrown/recap-bot/pkg/series"
)

// Collaborator is the name used in errors, logs and metrics.
const Collaborator = "fireflies"

// DefaultURL is the public GraphQL endpoint.
const DefaultURL = "https://api.fireflies.ai/graphql"

const (
	defaultLookbackDays = 30
	defaultSearchLimit  = 10
	fallbackLimit       = 50
	maxResponseBytes    = 20 << 20
)

// Config configures a Client.
type Config struct {
	URL    string
	APIKey string
	// LookbackDays bounds how far back FindPrevious searches.
	LookbackDays int
	// SearchLimit caps each title search.
	SearchLimit int
	Matcher     *series.Matcher
	Client      *http.Client
	Retry       retry.Policy
	Logger      logging.Logger
}

// Client is a Fireflies GraphQL client.
type Client struct {
	url         string
	apiKey      string
	lookback    time.Duration
	searchLimit int
	matcher     *series.Matcher
	http        *http.Client
	retry       retry.Policy
	logger      logging.Logger
}

// NewClient creates a client. A nil Matcher uses series.DefaultMatcher.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.Matcher == nil {
		cfg.Matcher = series.DefaultMatcher()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Client{
		url:         cfg.URL,
		apiKey:      cfg.APIKey,
		lookback:    time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		searchLimit: cfg.SearchLimit,
		matcher:     cfg.Matcher,
		http:        cfg.Client,
		retry:       cfg.Retry,
		logger:      cfg.Logger.With(logging.F("collaborator", Collaborator)),
	}
}

// SearchQuery filters a transcript search. Zero fields are omitted.
type SearchQuery struct {
	Title string
	From  time.Time
	To    time.Time
	Limit int
	// Mine restricts results to transcripts owned by the API key's user
	// when true, and to everything visible to it when false.
	Mine *bool
}

func (q SearchQuery) variables() map[string]any {
	vars := map[string]any{}
	if q.Title != "" {
		vars["title"] = q.Title
	}
	if !q.From.IsZero() {
		vars["fromDate"] = q.From.UTC().Format(time.RFC3339)
	}
	if !q.To.IsZero() {
		vars["toDate"] = q.To.UTC().Format(time.RFC3339)
	}
	if q.Limit > 0 {
		vars["limit"] = q.Limit
	}
	if q.Mine != nil {
		vars["mine"] = *q.Mine
	}
	return vars
}

const transcriptFields = `
    id
    title
    date
    duration
    transcript_url
    participants
    meeting_attendees { displayName email }
    summary { overview action_items keywords }
`

const searchQuery = `query Transcripts($title: String, $fromDate: DateTime, $toDate: DateTime, $limit: Int, $mine: Boolean) {
  transcripts(title: $title, fromDate: $fromDate, toDate: $toDate, limit: $limit, mine: $mine) {` + transcriptFields + `  }
}`

const transcriptQuery = `query Transcript($id: String!) {
  transcript(id: $id) {` + transcriptFields + `  }
}`

const pingQuery = `query Ping { user { user_id } }`

// Search returns transcripts matching q, skipping malformed records.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]meeting.Transcript, error) {
	var data struct {
		Transcripts []json.RawMessage `json:"transcripts"`
	}
	if err := c.do(ctx, "search", searchQuery, q.variables(), &data); err != nil {
		return nil, err
	}

	out := make([]meeting.Transcript, 0, len(data.Transcripts))
	for _, raw := range data.Transcripts {
		t, err := parseTranscript(raw)
		if err != nil {
			c.logger.WithContext(ctx).Warn("Skipping malformed transcript", logging.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Transcript fetches one transcript by id.
func (c *Client) Transcript(ctx context.Context, id string) (meeting.Transcript, error) {
	var data struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := c.do(ctx, "transcript", transcriptQuery, map[string]any{"id": id}, &data); err != nil {
		return meeting.Transcript{}, err
	}
	if len(data.Transcript) == 0 || string(data.Transcript) == "null" {
		return meeting.Transcript{}, fmt.Errorf("transcript %q: %w", id, rerrors.ErrNotFound)
	}
	return parseTranscript(data.Transcript)
}

// FetchUnion runs q for owned transcripts and then for shared ones, and
// returns the union keyed by id with owned records first. One failing half
// is logged; an error is returned only when both fail.
func (c *Client) FetchUnion(ctx context.Context, q SearchQuery) ([]meeting.Transcript, error) {
	mine, notMine := true, false

	owned := q
	owned.Mine = &mine
	shared := q
	shared.Mine = &notMine

	var (
		out  []meeting.Transcript
		seen = make(map[string]bool)
		errs []error
	)
	for _, part := range []SearchQuery{owned, shared} {
		records, err := c.Search(ctx, part)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WithContext(ctx).Warn("Transcript search failed",
				logging.F("mine", *part.Mine), logging.Err(err))
			errs = append(errs, err)
			continue
		}
		for _, t := range records {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	if len(errs) == 2 {
		return nil, errs[0]
	}
	return out, nil
}

// Recent returns the union of transcripts from the last days days.
func (c *Client) Recent(ctx context.Context, days, limit int) ([]meeting.Transcript, error) {
	now := time.Now()
	return c.FetchUnion(ctx, SearchQuery{
		From:  now.Add(-time.Duration(days) * 24 * time.Hour),
		To:    now,
		Limit: limit,
	})
}

// FindPrevious returns the latest transcript of the series title belongs to
// that happened before at. It searches by series name first, then falls back
// to every transcript in the look-back window when that finds no match. A false result with a nil
// error means there is no previous occurrence.
func (c *Client) FindPrevious(ctx context.Context, title string, at time.Time) (series.Match[meeting.Transcript], bool, error) {
	var none series.Match[meeting.Transcript]

	searchTitle := title
	if name, ok := series.ExtractSeriesName(title); ok {
		searchTitle = name
	}
	window := SearchQuery{From: at.Add(-c.lookback), To: at}

	q := window
	q.Title = searchTitle
	q.Limit = c.searchLimit
	candidates, err := c.FetchUnion(ctx, q)
	if err != nil {
		return none, false, fmt.Errorf("search transcripts for %q: %w", searchTitle, err)
	}

	if m, ok := series.FindPrevious(c.matcher, title, at, candidates); ok {
		return m, true, nil
	}

	// Title search is substring based; renamed meetings only show up unfiltered.
	q = window
	q.Limit = fallbackLimit
	candidates, err = c.FetchUnion(ctx, q)
	if err != nil {
		return none, false, fmt.Errorf("list transcripts: %w", err)
	}
	if m, ok := series.FindPrevious(c.matcher, title, at, candidates); ok {
		return m, true, nil
	}

	c.logger.WithContext(ctx).Debug("No previous transcript",
		logging.F("title", title), logging.F("candidates", len(candidates)))
	return none, false, nil
}

// Ping checks the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	var data json.RawMessage
	return c.do(ctx, "ping", pingQuery, nil, &data)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	var body []byte
	err = retry.Do(ctx, c.retry, func(attempt int, err error, wait time.Duration) {
		c.logger.WithContext(ctx).Warn("Fireflies request failed, retrying",
			logging.F("op", op), logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
	}, func(ctx context.Context) error {
		var perr error
		body, perr = c.post(ctx, op, payload)
		return perr
	})
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: Collaborator, Op: op, Message: err.Error(), Cause: err}
	}
	if len(resp.Errors) > 0 {
		return graphQLFailure(op, resp.Errors)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: Collaborator, Op: op, Message: err.Error(), Cause: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rerrors.Classify(err, Collaborator, op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, rerrors.Classify(err, Collaborator, op)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rerrors.FromStatus(Collaborator, op, resp.StatusCode, string(body))
	}
	return body, nil
}

func graphQLFailure(op string, errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	code := rerrors.ErrRequest
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		switch strings.ToLower(e.Extensions.Code) {
		case "unauthenticated", "forbidden", "invalid_api_key":
			code = rerrors.ErrAuth
		case "too_many_requests":
			code = rerrors.ErrRateLimit
		case "object_not_found", "not_found":
			code = rerrors.ErrMissing
		}
	}
	return &rerrors.CallError{Code: code, Collaborator: Collaborator, Op: op, Message: strings.Join(msgs, "; ")}
}
