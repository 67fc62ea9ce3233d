// Package errors defines the bot's sentinel errors and the classification of
// failures from external collaborators (calendar, transcripts, messaging).
//
// Usage:
//
//	import rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
//
//	if rerrors.IsNotFound(err) {
//	    // treat as "no data"
//	}
//	if rerrors.IsRetryableError(err) {
//	    // back off and try again
//	}
package errors

import "errors"

// Domain errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates a collaborator rejected our credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformed indicates a collaborator returned data we could not use.
	ErrMalformed = errors.New("malformed record")

	// ErrNoChannel indicates neither the routed nor the default channel resolved.
	ErrNoChannel = errors.New("no destination channel")

	// ErrConfig indicates required configuration is missing or invalid.
	ErrConfig = errors.New("configuration error")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsMalformed reports whether any error in err's chain is ErrMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsNoChannel reports whether any error in err's chain is ErrNoChannel.
func IsNoChannel(err error) bool {
	return errors.Is(err, ErrNoChannel)
}

// IsConfig reports whether any error in err's chain is ErrConfig.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}
