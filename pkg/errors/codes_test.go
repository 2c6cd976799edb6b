package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRegistry_Completeness(t *testing.T) {
	allKinds := []Kind{
		KindConfiguration,
		KindConflict,
		KindTransient,
		KindMalformed,
		KindTerminal,
		KindUnauthorized,
		KindValidation,
		KindNotFound,
		KindCancelled,
		KindUnknown,
	}

	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			info, ok := KindRegistry[kind]
			assert.True(t, ok, "Kind %s should be in registry", kind)
			assert.Equal(t, kind, info.Kind, "Registry entry should have matching kind")
			assert.NotEmpty(t, info.Description, "Description should not be empty")
			assert.NotEmpty(t, info.SuggestedAction, "SuggestedAction should not be empty")
		})
	}
}

func TestIsRetryable_Kind(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected bool
	}{
		{KindTransient, true},
		{KindMalformed, true},
		{KindConfiguration, false},
		{KindConflict, false},
		{KindTerminal, false},
		{KindUnauthorized, false},
		{Kind("made_up"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.kind))
		})
	}
}

func TestGetSuggestedAction_Unknown(t *testing.T) {
	assert.Equal(t, KindRegistry[KindUnknown].SuggestedAction, GetSuggestedAction(Kind("made_up")))
	assert.Equal(t, "Unknown error", GetDescription(Kind("made_up")))
}

type statusErr struct{ code int }

func (s statusErr) Error() string   { return fmt.Sprintf("API error: %d", s.code) }
func (s statusErr) HTTPStatus() int { return s.code }
func (s statusErr) Unwrap() error   { return ErrTransient }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"missing credential", fmt.Errorf("request: %w", ErrMissingCredential), KindConfiguration},
		{"existing bot", fmt.Errorf("start: %w", ErrExistingBot), KindConflict},
		{"missing segments", ErrMissingSegments, KindMalformed},
		{"terminal", ErrTerminalStatus, KindTerminal},
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"forbidden", ErrForbidden, KindUnauthorized},
		{"validation", ErrInvalidMeetingID, KindValidation},
		{"transient", statusErr{code: 503}, KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"cancelled", context.Canceled, KindCancelled},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestToDisplay(t *testing.T) {
	t.Run("nil yields zero value", func(t *testing.T) {
		assert.Equal(t, Display{}, ToDisplay(nil))
	})

	t.Run("carries http status", func(t *testing.T) {
		d := ToDisplay(fmt.Errorf("fetch: %w", statusErr{code: 502}))
		assert.Equal(t, 502, d.Status)
		assert.Equal(t, KindTransient, d.Kind)
		assert.True(t, d.Retryable)
		assert.NotEmpty(t, d.Remediation)
	})

	t.Run("existing display passes through", func(t *testing.T) {
		in := TerminalError()
		d := ToDisplay(fmt.Errorf("wrap: %w", in))
		assert.Equal(t, in, d)
	})
}

func TestRetryingAndExhausted(t *testing.T) {
	cause := fmt.Errorf("GET: %w", ErrTransient)

	d := Retrying(cause, 2, 3)
	assert.Equal(t, "Failed to update transcription. Retrying... (2/3)", d.Message)
	assert.True(t, d.Retryable)
	assert.Equal(t, KindTransient, d.Kind)

	d = Exhausted(cause)
	assert.Equal(t, "Failed to update transcription after multiple attempts", d.Message)
	assert.False(t, d.Retryable)

	term := TerminalError()
	require.Equal(t, KindTerminal, term.Kind)
	assert.Equal(t, "Transcription service reported an error. Please try again.", term.Message)
}
