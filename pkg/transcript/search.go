package transcript

import "strings"

// SearchResult points at a matching segment.
type SearchResult struct {
	SegmentID string `json:"segment_id"`
	Index     int    `json:"index"`
}

// Search is a case-insensitive substring search over a segment list with a
// wrapping cursor. The zero value is an empty search.
type Search struct {
	term    string
	results []SearchResult
	cursor  int
}

// NewSearch runs term against segments. The cursor starts on the first hit.
func NewSearch(term string, segments []Segment) *Search {
	s := &Search{term: term}
	s.Update(segments)
	return s
}

// Term returns the search term.
func (s *Search) Term() string { return s.term }

// Results returns all hits in segment order.
func (s *Search) Results() []SearchResult { return s.results }

// Update re-runs the search against a new segment list. The cursor stays on
// the same segment when it still matches, otherwise it resets to the first hit.
func (s *Search) Update(segments []Segment) {
	var previous string
	if cur, ok := s.Current(); ok {
		previous = cur.SegmentID
	}

	s.results = nil
	s.cursor = -1
	term := strings.ToLower(strings.TrimSpace(s.term))
	if term == "" {
		return
	}
	for i, seg := range segments {
		if strings.Contains(strings.ToLower(seg.Text), term) {
			s.results = append(s.results, SearchResult{SegmentID: seg.ID, Index: i})
			if seg.ID == previous {
				s.cursor = len(s.results) - 1
			}
		}
	}
	if s.cursor < 0 && len(s.results) > 0 {
		s.cursor = 0
	}
}

// Current returns the hit under the cursor.
func (s *Search) Current() (SearchResult, bool) {
	if s == nil || s.cursor < 0 || s.cursor >= len(s.results) {
		return SearchResult{}, false
	}
	return s.results[s.cursor], true
}

// Position returns the 1-based cursor position and the hit count.
func (s *Search) Position() (int, int) {
	return s.cursor + 1, len(s.results)
}

// Next advances the cursor, wrapping past the last hit.
func (s *Search) Next() (SearchResult, bool) {
	if len(s.results) == 0 {
		return SearchResult{}, false
	}
	s.cursor = (s.cursor + 1) % len(s.results)
	return s.results[s.cursor], true
}

// Prev moves the cursor back, wrapping before the first hit.
func (s *Search) Prev() (SearchResult, bool) {
	if len(s.results) == 0 {
		return SearchResult{}, false
	}
	s.cursor = (s.cursor - 1 + len(s.results)) % len(s.results)
	return s.results[s.cursor], true
}
