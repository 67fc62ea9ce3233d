package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

// CallError is a classified failure from one collaborator operation.
type CallError struct {
	Code         ErrorCode
	Collaborator string
	Op           string
	Status       int
	Message      string
	Cause        error
}

func (e *CallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", e.Code, e.Collaborator, e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the domain sentinels a code implies.
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == ErrMissing
	case ErrUnauthorized:
		return e.Code == ErrAuth
	case ErrMalformed:
		return e.Code == ErrParse
	}
	return false
}

// Retryable reports whether the call may succeed if repeated.
func (e *CallError) Retryable() bool {
	return IsRetryable(e.Code)
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(collaborator, op string, status int, body string) *CallError {
	ce := &CallError{Collaborator: collaborator, Op: op, Status: status, Message: truncate(body, 200)}
	switch {
	case status == http.StatusTooManyRequests:
		ce.Code = ErrRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ce.Code = ErrAuth
	case status == http.StatusNotFound:
		ce.Code = ErrMissing
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		ce.Code = ErrTimeout
	case status >= 500:
		ce.Code = ErrUnavailable
	default:
		ce.Code = ErrRequest
	}
	return ce
}

// Classify wraps err in a *CallError. An err that is already a *CallError is
// returned unchanged.
func Classify(err error, collaborator, op string) *CallError {
	if err == nil {
		return nil
	}

	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}

	ce = &CallError{Collaborator: collaborator, Op: op, Cause: err, Message: err.Error()}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ce.Code = ErrTimeout
		return ce
	case errors.Is(err, context.Canceled):
		ce.Code = ErrContextCancelled
		return ce
	case errors.As(err, &netErr) && netErr.Timeout():
		ce.Code = ErrTimeout
		return ce
	case errors.Is(err, ErrNotFound):
		ce.Code = ErrMissing
		return ce
	case errors.Is(err, ErrUnauthorized):
		ce.Code = ErrAuth
		return ce
	case errors.Is(err, ErrMalformed):
		ce.Code = ErrParse
		return ce
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "ratelimited") || strings.Contains(lower, "too many requests"):
		ce.Code = ErrRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		ce.Code = ErrTimeout
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof"):
		ce.Code = ErrUnavailable
	case strings.Contains(lower, "invalid_auth") || strings.Contains(lower, "not_authed") || strings.Contains(lower, "unauthorized"):
		ce.Code = ErrAuth
	case strings.Contains(lower, "cannot unmarshal") || strings.Contains(lower, "invalid character"):
		ce.Code = ErrParse
	default:
		ce.Code = ErrRequest
	}
	return ce
}

// IsRetryableError reports whether err, once classified, is transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err, "", "").Retryable()
}

// CodeOf returns the classified code for err, or "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Classify(err, "", "").Code
}

// truncate keeps at most n runes so multi-byte bodies stay valid UTF-8.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
