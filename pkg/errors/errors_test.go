package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinels_WrappedChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrNotFound, IsNotFound},
		{"validation", ErrValidation, IsValidation},
		{"unauthorized", ErrUnauthorized, IsUnauthorized},
		{"malformed", ErrMalformed, IsMalformed},
		{"no channel", ErrNoChannel, IsNoChannel},
		{"config", ErrConfig, IsConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("unrelated")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrRateLimit, true},
		{http.StatusUnauthorized, ErrAuth, false},
		{http.StatusForbidden, ErrAuth, false},
		{http.StatusNotFound, ErrMissing, false},
		{http.StatusGatewayTimeout, ErrTimeout, true},
		{http.StatusBadGateway, ErrUnavailable, true},
		{http.StatusInternalServerError, ErrUnavailable, true},
		{http.StatusBadRequest, ErrRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ce := FromStatus("fireflies", "search", tt.status, "body")
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.retryable, ce.Retryable())
			assert.Contains(t, ce.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestFromStatus_NotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("get transcript: %w", FromStatus("fireflies", "transcript", 404, ""))
	assert.True(t, IsNotFound(err))
}

func TestFromStatus_TruncatesMultiByteBody(t *testing.T) {
	body := strings.Repeat("é", 150) + strings.Repeat("日本", 100)
	ce := FromStatus("slack", "chat.postMessage", 500, body)

	assert.True(t, utf8.ValidString(ce.Message))
	assert.Equal(t, 203, utf8.RuneCountInString(ce.Message))
	assert.Equal(t, strings.Repeat("é", 150)+strings.Repeat("日本", 25)+"...", ce.Message)

	short := FromStatus("slack", "chat.postMessage", 500, "  ошибка  ")
	assert.Equal(t, "ошибка", short.Message)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"cancelled", fmt.Errorf("wrap: %w", context.Canceled), ErrContextCancelled},
		{"net timeout", timeoutErr{}, ErrTimeout},
		{"not found sentinel", fmt.Errorf("x: %w", ErrNotFound), ErrMissing},
		{"malformed sentinel", ErrMalformed, ErrParse},
		{"slack ratelimited", errors.New("slack rate limit exceeded, retry after 3s"), ErrRateLimit},
		{"refused", errors.New("dial tcp: connection refused"), ErrUnavailable},
		{"slack auth", errors.New("invalid_auth"), ErrAuth},
		{"json", errors.New("invalid character '<' looking for beginning of value"), ErrParse},
		{"other", errors.New("channel_not_found"), ErrRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(tt.err, "slack", "post")
			require.NotNil(t, ce)
			assert.Equal(t, tt.code, ce.Code)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestClassify_KeepsExistingCallError(t *testing.T) {
	orig := FromStatus("calendar", "events", 503, "")
	got := Classify(fmt.Errorf("fetch: %w", orig), "other", "op")
	assert.Same(t, orig, got)
	assert.Nil(t, Classify(nil, "x", "y"))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(nil))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrUnavailable, CodeOf(FromStatus("x", "y", 500, "")))
}

func TestRegistry_CoversAllCodes(t *testing.T) {
	for _, code := range []ErrorCode{ErrTimeout, ErrRateLimit, ErrUnavailable, ErrAuth, ErrMissing, ErrParse, ErrContextCancelled, ErrRequest} {
		info, ok := ErrorCodeRegistry[code]
		require.True(t, ok, code)
		assert.NotEmpty(t, info.Description)
		assert.NotEmpty(t, GetSuggestedAction(code))
	}
	assert.Equal(t, "Unknown error", GetDescription("bogus"))
	assert.False(t, IsRetryable("bogus"))
}
