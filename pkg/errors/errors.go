// Package errors provides common domain error types for the vexa client.
//
// This package defines sentinel errors for the conditions the fetch client,
// the reconciliation engine and the polling scheduler can surface. Using typed
// errors enables consistent error handling patterns with errors.Is() checks,
// and lets renderers translate any failure into a Display without inspecting
// message strings.
//
// Usage:
//
//	import pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
//
//	// Return a domain error
//	return nil, fmt.Errorf("fetching transcript: %w", pferrors.ErrTransient)
//
//	// Check for domain errors
//	if pferrors.IsExistingBot(err) {
//	    // offer to stop the existing bot
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing remote state.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates the request lacks a valid API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the API key lacks permission.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")
)

// Transcription errors. Each one maps to a Kind through Classify.
var (
	// ErrMissingCredential is returned before any I/O when no API key is available.
	ErrMissingCredential = errors.New("no API key configured")

	// ErrExistingBot is returned when a bot is already attached to the meeting.
	ErrExistingBot = &wrapped{msg: "a bot is already running for this meeting", cause: ErrAlreadyExists}

	// ErrTransient marks a fetch failure that the scheduler may retry.
	ErrTransient = errors.New("transient failure")

	// ErrMissingSegments is returned when a transcript response carries neither
	// segments nor transcript.segments. An empty list is not this error.
	ErrMissingSegments = errors.New("API response missing segments data")

	// ErrTerminalStatus indicates the remote service reported an error status.
	ErrTerminalStatus = errors.New("transcription service reported an error")

	// ErrInvalidMeetingID is returned for ids with fewer than two parts.
	ErrInvalidMeetingID = &wrapped{msg: "invalid meeting ID format", cause: ErrValidation}

	// ErrInvalidMeetingURL is returned for URLs that cannot be parsed.
	ErrInvalidMeetingURL = &wrapped{msg: "invalid meeting URL", cause: ErrValidation}

	// ErrUnsupportedPlatform is returned for meeting URLs on unsupported hosts.
	ErrUnsupportedPlatform = &wrapped{msg: "unsupported meeting platform", cause: ErrValidation}

	// ErrInvalidLanguage is returned for language codes that fail to parse.
	ErrInvalidLanguage = &wrapped{msg: "invalid language code", cause: ErrValidation}
)

// wrapped is a sentinel that also matches a more general sentinel.
type wrapped struct {
	msg   string
	cause error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.cause }

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden reports whether any error in err's chain is ErrForbidden.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsAlreadyExists reports whether any error in err's chain is ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsExistingBot reports whether any error in err's chain is ErrExistingBot.
func IsExistingBot(err error) bool {
	return errors.Is(err, ErrExistingBot)
}

// IsTransient reports whether any error in err's chain is ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsMissingCredential reports whether any error in err's chain is ErrMissingCredential.
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}
