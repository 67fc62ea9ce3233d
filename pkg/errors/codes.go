package errors

// ErrorCode classifies a failed collaborator call.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrUnavailable      ErrorCode = "unavailable"
	ErrAuth             ErrorCode = "unauthorized"
	ErrMissing          ErrorCode = "not_found"
	ErrParse            ErrorCode = "malformed"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrRequest          ErrorCode = "request_error"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Call exceeded its time limit",
		SuggestedAction: "Check collaborator latency or raise request_timeout",
	},
	ErrRateLimit: {
		Code:            ErrRateLimit,
		Retryable:       true,
		Description:     "Collaborator rate limit exceeded",
		SuggestedAction: "Lengthen check_interval or reduce search_limit",
	},
	ErrUnavailable: {
		Code:            ErrUnavailable,
		Retryable:       true,
		Description:     "Collaborator unreachable or returned a server error",
		SuggestedAction: "Check the collaborator status page: recap health",
	},
	ErrAuth: {
		Code:            ErrAuth,
		Retryable:       false,
		Description:     "Credentials rejected",
		SuggestedAction: "Update the token: recap auth set <name>",
	},
	ErrMissing: {
		Code:            ErrMissing,
		Retryable:       false,
		Description:     "Requested record does not exist",
		SuggestedAction: "No action needed; treated as no data",
	},
	ErrParse: {
		Code:            ErrParse,
		Retryable:       false,
		Description:     "Response could not be decoded",
		SuggestedAction: "Inspect the raw response at debug log level",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Call cancelled by shutdown",
		SuggestedAction: "None; the bot is stopping",
	},
	ErrRequest: {
		Code:            ErrRequest,
		Retryable:       false,
		Description:     "Collaborator rejected the request",
		SuggestedAction: "Check configuration for the collaborator named in the log line",
	},
}

// IsRetryable reports whether code represents a transient failure.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the operator hint for code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check logs for more details"
}

// GetDescription returns the human-readable description for code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
