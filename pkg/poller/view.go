package poller

import (
	"sort"
	"time"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/reconcile"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Mode selects between live polling and a single historical fetch.
type Mode int

const (
	ModeLive Mode = iota
	ModeHistorical
)

func (m Mode) String() string {
	if m == ModeHistorical {
		return "historical"
	}
	return "live"
}

// State is the scheduler's lifecycle state.
type State int

const (
	// StateIdle means no session is attached.
	StateIdle State = iota
	// StatePolling means the ticker is armed and the last fetch succeeded.
	StatePolling
	// StateDegraded means the last fetch failed and retries remain.
	StateDegraded
	// StateFetchedOnce means a historical transcript was loaded.
	StateFetchedOnce
	// StateTerminated means the remote session ended.
	StateTerminated
	// StateFailed means the retry budget is spent. Only an explicit restart leaves it.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StatePolling:     "polling",
	StateDegraded:    "degraded",
	StateFetchedOnce: "fetched_once",
	StateTerminated:  "terminated",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Armed reports whether the state keeps a ticker running.
func (s State) Armed() bool {
	return s == StatePolling || s == StateDegraded
}

// View is an immutable snapshot of everything a renderer needs.
// Segments and Highlighted always come from the same reconciliation pass.
type View struct {
	MeetingID   transcript.MeetingID `json:"meeting_id"`
	Mode        string               `json:"mode"`
	State       State                `json:"state"`
	Status      transcript.Status    `json:"status"`
	Language    string               `json:"language"`
	Segments    []transcript.Segment `json:"segments"`
	Highlighted []string             `json:"highlighted"`
	// Changed holds the ids changed by the pass that produced this view. It is
	// empty for views published by expiry or control operations.
	Changed     []string            `json:"changed,omitempty"`
	Retry       int                 `json:"retry"`
	MaxRetries  int                 `json:"max_retries"`
	Error       *pferrors.Display   `json:"error,omitempty"`
	ViewState   reconcile.ViewState `json:"view_state"`
	LastUpdated time.Time           `json:"last_updated"`
	// Generation changes whenever polling is disarmed, including around
	// control calls that leave the transcript in place.
	Generation uint64 `json:"generation"`
	// Session changes only when the transcript is reset: a new meeting, a
	// restart or a language change.
	Session uint64 `json:"session"`
}

// IsHighlighted reports whether id is in the highlight set.
func (v View) IsHighlighted(id string) bool {
	i := sort.SearchStrings(v.Highlighted, id)
	return i < len(v.Highlighted) && v.Highlighted[i] == id
}

// ChangedSegments returns the segments listed in Changed, in display order.
func (v View) ChangedSegments() []transcript.Segment {
	if len(v.Changed) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(v.Changed))
	for _, id := range v.Changed {
		want[id] = struct{}{}
	}
	out := make([]transcript.Segment, 0, len(v.Changed))
	for _, s := range v.Segments {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}
