package reconcile

import (
	"sort"
	"time"
)

// DefaultHighlightDuration is how long a changed segment stays highlighted.
const DefaultHighlightDuration = 3 * time.Second

// HighlightSet is a time-boxed set of segment ids. Entries lapse on their own
// schedule, independent of later polls; callers pass the current time in.
type HighlightSet struct {
	ttl     time.Duration
	expires map[string]time.Time
}

// NewHighlightSet returns an empty set with the given lifetime per entry.
func NewHighlightSet(ttl time.Duration) *HighlightSet {
	if ttl <= 0 {
		ttl = DefaultHighlightDuration
	}
	return &HighlightSet{ttl: ttl, expires: make(map[string]time.Time)}
}

// Mark highlights ids from now until now+ttl.
func (h *HighlightSet) Mark(ids []string, now time.Time) {
	until := now.Add(h.ttl)
	for _, id := range ids {
		h.expires[id] = until
	}
}

// Contains reports whether id is highlighted at now.
func (h *HighlightSet) Contains(id string, now time.Time) bool {
	until, ok := h.expires[id]
	return ok && now.Before(until)
}

// Active returns the ids highlighted at now, sorted.
func (h *HighlightSet) Active(now time.Time) []string {
	ids := make([]string, 0, len(h.expires))
	for id, until := range h.expires {
		if now.Before(until) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Expire removes lapsed entries and reports whether anything was removed.
func (h *HighlightSet) Expire(now time.Time) bool {
	removed := false
	for id, until := range h.expires {
		if !now.Before(until) {
			delete(h.expires, id)
			removed = true
		}
	}
	return removed
}

// NextExpiry returns the earliest pending expiry.
func (h *HighlightSet) NextExpiry() (time.Time, bool) {
	var next time.Time
	for _, until := range h.expires {
		if next.IsZero() || until.Before(next) {
			next = until
		}
	}
	return next, !next.IsZero()
}

// Len returns the number of tracked entries, lapsed or not.
func (h *HighlightSet) Len() int { return len(h.expires) }

// Clear drops every entry.
func (h *HighlightSet) Clear() {
	h.expires = make(map[string]time.Time)
}
