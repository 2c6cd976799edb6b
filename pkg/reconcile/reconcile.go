// Package reconcile merges fetched transcript snapshots into displayed state.
//
// Every poll returns the full set of segments the server knows. Reconcile
// adopts that snapshot wholesale, deduplicated by content-derived id and
// sorted by timestamp, and reports which segments are new or carry new text
// so that the view can highlight them for a short while.
package reconcile

import (
	"sort"
	"time"

	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Segments is the adopted snapshot, deduplicated and sorted ascending by timestamp.
	Segments []transcript.Segment
	// Changed lists ids that are new or whose text differs from the previous pass.
	Changed []string
	Added   int
	Updated int
}

// Reconcile classifies snapshot against prev and returns the new state.
// Neither input is modified.
func Reconcile(prev, snapshot []transcript.Segment) Result {
	previous := make(map[string]string, len(prev))
	for _, s := range prev {
		previous[s.ID] = s.Text
	}

	adopted := dedupe(snapshot)

	var res Result
	for _, s := range adopted {
		text, seen := previous[s.ID]
		switch {
		case !seen:
			res.Added++
			res.Changed = append(res.Changed, s.ID)
		case text != s.Text:
			res.Updated++
			res.Changed = append(res.Changed, s.ID)
		}
	}

	sort.SliceStable(adopted, func(i, j int) bool {
		return adopted[i].Timestamp.Before(adopted[j].Timestamp)
	})
	res.Segments = adopted
	return res
}

// dedupe collapses segments sharing an id. The last occurrence wins and takes
// the slot of the first.
func dedupe(snapshot []transcript.Segment) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(snapshot))
	slot := make(map[string]int, len(snapshot))
	for _, s := range snapshot {
		if i, ok := slot[s.ID]; ok {
			out[i] = s
			continue
		}
		slot[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// PromoteLanguage returns the language to display after a pass. A resolved
// language replaces the current one unless it is an auto sentinel.
func PromoteLanguage(current, resolved string) string {
	if resolved == current || transcript.IsAutoLanguage(resolved) {
		return current
	}
	return resolved
}

// ViewState distinguishes the empty renderings of a transcript.
type ViewState string

const (
	// ViewLoading means no fetch has succeeded yet.
	ViewLoading ViewState = "loading"
	// ViewEmpty means the session is active but nobody has spoken.
	ViewEmpty ViewState = "empty"
	// ViewEndedEmpty means the session ended without any segments.
	ViewEndedEmpty ViewState = "ended_empty"
	// ViewReady means there are segments to show.
	ViewReady ViewState = "ready"
)

// Engine holds the displayed state for a single session.
// It is not safe for concurrent use; the scheduler loop owns it.
type Engine struct {
	segments   []transcript.Segment
	highlights *HighlightSet
	language   string
	status     transcript.Status
	fetched    bool
	updated    time.Time
}

// Update describes the state after Apply.
type Update struct {
	Segments    []transcript.Segment
	Changed     []string
	Highlighted []string
	Language    string
	Status      transcript.Status
	Added       int
	Updated     int
}

// NewEngine returns an engine whose highlights last highlightFor.
func NewEngine(highlightFor time.Duration, language string) *Engine {
	return &Engine{
		highlights: NewHighlightSet(highlightFor),
		language:   language,
		status:     transcript.StatusActive,
	}
}

// Apply reconciles a fetched session into the engine. The segment list and
// the highlight set change together.
func (e *Engine) Apply(s *transcript.Session, now time.Time) Update {
	res := Reconcile(e.segments, s.Segments)

	e.segments = res.Segments
	e.highlights.Mark(res.Changed, now)
	e.language = PromoteLanguage(e.language, s.Language)
	e.status = s.Status
	e.fetched = true
	e.updated = now

	return Update{
		Segments:    e.Segments(),
		Changed:     res.Changed,
		Highlighted: e.highlights.Active(now),
		Language:    e.language,
		Status:      e.status,
		Added:       res.Added,
		Updated:     res.Updated,
	}
}

// Reset discards all segments and highlights.
func (e *Engine) Reset(language string) {
	e.segments = nil
	e.highlights.Clear()
	e.language = language
	e.status = transcript.StatusActive
	e.fetched = false
	e.updated = time.Time{}
}

// Expire drops elapsed highlights and reports whether any were dropped.
func (e *Engine) Expire(now time.Time) bool {
	return e.highlights.Expire(now)
}

// NextExpiry returns when the next highlight lapses.
func (e *Engine) NextExpiry() (time.Time, bool) {
	return e.highlights.NextExpiry()
}

// Segments returns a copy of the displayed segments.
func (e *Engine) Segments() []transcript.Segment {
	out := make([]transcript.Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// Highlighted returns the ids currently highlighted.
func (e *Engine) Highlighted(now time.Time) []string {
	return e.highlights.Active(now)
}

// Language returns the displayed language.
func (e *Engine) Language() string { return e.language }

// Status returns the last reported session status.
func (e *Engine) Status() transcript.Status { return e.status }

// LastUpdated returns the time of the last successful Apply.
func (e *Engine) LastUpdated() time.Time { return e.updated }

// ViewState reports which rendering applies to the current state.
func (e *Engine) ViewState() ViewState {
	switch {
	case !e.fetched:
		return ViewLoading
	case len(e.segments) > 0:
		return ViewReady
	case e.status.IsTerminal():
		return ViewEndedEmpty
	default:
		return ViewEmpty
	}
}
