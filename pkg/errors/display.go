package errors

import (
	"context"
	"errors"
	"fmt"
)

// Display is the only error shape renderers see.
type Display struct {
	// Status is the HTTP status of the failing call, 0 when no response was received.
	Status      int    `json:"status"`
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
	Retryable   bool   `json:"retryable"`
}

func (d Display) Error() string {
	return d.Message
}

// statusCoder is implemented by errors that carry an HTTP status code.
type statusCoder interface {
	HTTPStatus() int
}

// Classify inspects an error and returns its Kind.
// Errors that match no known sentinel are KindUnknown.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrMissingCredential):
		return KindConfiguration
	case errors.Is(err, ErrExistingBot), errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrMissingSegments):
		return KindMalformed
	case errors.Is(err, ErrTerminalStatus):
		return KindTerminal
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// ToDisplay converts err into a Display. A nil error yields the zero Display.
func ToDisplay(err error) Display {
	if err == nil {
		return Display{}
	}
	var d Display
	if errors.As(err, &d) {
		return d
	}
	kind := Classify(err)
	d = Display{
		Kind:        kind,
		Message:     err.Error(),
		Remediation: GetSuggestedAction(kind),
		Retryable:   IsRetryable(kind),
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		d.Status = sc.HTTPStatus()
	}
	return d
}

// Retrying is shown while the scheduler still has attempts left.
func Retrying(cause error, attempt, max int) Display {
	d := ToDisplay(cause)
	d.Message = fmt.Sprintf("Failed to update transcription. Retrying... (%d/%d)", attempt, max)
	d.Retryable = true
	return d
}

// Exhausted is shown once the retry budget is spent.
func Exhausted(cause error) Display {
	d := ToDisplay(cause)
	d.Message = "Failed to update transcription after multiple attempts"
	d.Retryable = false
	return d
}

// TerminalError is shown when the remote session ends with status error.
func TerminalError() Display {
	return Display{
		Kind:        KindTerminal,
		Message:     "Transcription service reported an error. Please try again.",
		Remediation: GetSuggestedAction(KindTerminal),
	}
}
