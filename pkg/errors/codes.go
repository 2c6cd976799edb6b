package errors

// Kind is the classified category of a failure as seen by the user.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindConflict      Kind = "conflict"
	KindTransient     Kind = "transient"
	KindMalformed     Kind = "malformed_response"
	KindTerminal      Kind = "terminal_status"
	KindUnauthorized  Kind = "unauthorized"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindCancelled     Kind = "cancelled"
	KindUnknown       Kind = "unknown"
)

// KindInfo contains metadata about an error kind.
type KindInfo struct {
	Kind            Kind
	Retryable       bool
	Description     string
	SuggestedAction string
}

// KindRegistry maps error kinds to their metadata.
var KindRegistry = map[Kind]KindInfo{
	KindConfiguration: {
		Kind:            KindConfiguration,
		Retryable:       false,
		Description:     "No API key is configured",
		SuggestedAction: "Store a key with: vexa auth login, or set VEXA_API_KEY",
	},
	KindConflict: {
		Kind:            KindConflict,
		Retryable:       false,
		Description:     "A bot is already attached to this meeting",
		SuggestedAction: "Stop the existing bot first: vexa bot stop <meeting-id>",
	},
	KindTransient: {
		Kind:            KindTransient,
		Retryable:       true,
		Description:     "The transcription service could not be reached",
		SuggestedAction: "Polling retries automatically; check connectivity with: vexa auth test",
	},
	KindMalformed: {
		Kind:            KindMalformed,
		Retryable:       true,
		Description:     "The transcription service returned a response without segments",
		SuggestedAction: "Retry shortly; if it persists inspect the raw response with --debug",
	},
	KindTerminal: {
		Kind:            KindTerminal,
		Retryable:       false,
		Description:     "The transcription service reported an error for this meeting",
		SuggestedAction: "Start a new bot: vexa bot start <meeting-url>",
	},
	KindUnauthorized: {
		Kind:            KindUnauthorized,
		Retryable:       false,
		Description:     "The API key was rejected",
		SuggestedAction: "Verify the key with: vexa auth test, then vexa auth login",
	},
	KindValidation: {
		Kind:            KindValidation,
		Retryable:       false,
		Description:     "The input could not be parsed",
		SuggestedAction: "Check the meeting URL, meeting ID or language code",
	},
	KindNotFound: {
		Kind:            KindNotFound,
		Retryable:       false,
		Description:     "The meeting or transcript does not exist",
		SuggestedAction: "List known meetings with: vexa meeting list",
	},
	KindCancelled: {
		Kind:            KindCancelled,
		Retryable:       false,
		Description:     "Operation cancelled",
		SuggestedAction: "No action needed",
	},
	KindUnknown: {
		Kind:            KindUnknown,
		Retryable:       false,
		Description:     "Unclassified error",
		SuggestedAction: "Re-run with --debug for details",
	},
}

// IsRetryable returns true if the given kind represents a transient, retryable error.
func IsRetryable(kind Kind) bool {
	if info, ok := KindRegistry[kind]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given kind.
func GetSuggestedAction(kind Kind) string {
	if info, ok := KindRegistry[kind]; ok {
		return info.SuggestedAction
	}
	return KindRegistry[KindUnknown].SuggestedAction
}

// GetDescription returns the human-readable description for the given kind.
func GetDescription(kind Kind) string {
	if info, ok := KindRegistry[kind]; ok {
		return info.Description
	}
	return "Unknown error"
}
