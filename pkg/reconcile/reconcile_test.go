package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seg(id, text string, offset time.Duration) transcript.Segment {
	return transcript.Segment{ID: id, Text: text, Timestamp: t0.Add(offset), Speaker: "John"}
}

func ids(segments []transcript.Segment) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, s.ID)
	}
	return out
}

func TestReconcile_Idempotent(t *testing.T) {
	snapshot := []transcript.Segment{
		seg("b", "second", 2*time.Second),
		seg("a", "first", time.Second),
	}

	first := Reconcile(nil, snapshot)
	assert.ElementsMatch(t, []string{"a", "b"}, first.Changed)
	assert.Equal(t, 2, first.Added)

	second := Reconcile(first.Segments, snapshot)
	assert.Empty(t, second.Changed)
	assert.Zero(t, second.Added)
	assert.Zero(t, second.Updated)
	assert.Equal(t, first.Segments, second.Segments)
}

func TestReconcile_StableOrdering(t *testing.T) {
	snapshot := []transcript.Segment{
		seg("c", "three", 3*time.Second),
		seg("a", "one", time.Second),
		seg("d", "four", 4*time.Second),
		seg("b", "two", 2*time.Second),
	}

	res := Reconcile(nil, snapshot)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(res.Segments))
}

func TestReconcile_EqualTimestampsKeepSnapshotOrder(t *testing.T) {
	snapshot := []transcript.Segment{
		seg("y", "later in list", time.Second),
		seg("x", "earlier in list", time.Second),
	}

	res := Reconcile(nil, snapshot)
	assert.Equal(t, []string{"y", "x"}, ids(res.Segments))
}

func TestReconcile_ChangeClassification(t *testing.T) {
	prev := []transcript.Segment{seg("A", "hello", 0)}

	tests := []struct {
		name        string
		snapshot    []transcript.Segment
		wantChanged []string
		wantAdded   int
		wantUpdated int
	}{
		{
			name:        "text extended",
			snapshot:    []transcript.Segment{seg("A", "hello world", 0)},
			wantChanged: []string{"A"},
			wantUpdated: 1,
		},
		{
			name:     "identical",
			snapshot: []transcript.Segment{seg("A", "hello", 0)},
		},
		{
			name:        "new segment",
			snapshot:    []transcript.Segment{seg("A", "hello", 0), seg("B", "next", time.Second)},
			wantChanged: []string{"B"},
			wantAdded:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(prev, tt.snapshot)
			assert.Equal(t, tt.wantChanged, res.Changed)
			assert.Equal(t, tt.wantAdded, res.Added)
			assert.Equal(t, tt.wantUpdated, res.Updated)
		})
	}
}

func TestReconcile_AdoptsFullSnapshot(t *testing.T) {
	prev := []transcript.Segment{seg("a", "one", time.Second), seg("b", "two", 2*time.Second)}
	snapshot := []transcript.Segment{seg("b", "two", 2*time.Second)}

	res := Reconcile(prev, snapshot)
	assert.Equal(t, []string{"b"}, ids(res.Segments), "segments dropped upstream are dropped locally")
	assert.Empty(t, res.Changed)
}

func TestReconcile_DedupByID(t *testing.T) {
	text := "Hello everyone, thanks for joining"
	id := transcript.DeriveID("2026-03-01T10:00:00Z", text)
	snapshot := []transcript.Segment{
		{ID: id, Text: text, Timestamp: t0},
		seg("other", "x", time.Second),
		{ID: id, Text: text + " today", Timestamp: t0},
	}

	res := Reconcile(nil, snapshot)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, id, res.Segments[0].ID)
	assert.Equal(t, text+" today", res.Segments[0].Text, "last occurrence wins")
	assert.Equal(t, []string{id, "other"}, res.Changed)
}

func TestReconcile_EmptySnapshot(t *testing.T) {
	res := Reconcile([]transcript.Segment{seg("a", "one", 0)}, []transcript.Segment{})
	assert.Empty(t, res.Segments)
	assert.Empty(t, res.Changed)
	assert.NotNil(t, res.Segments)
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	snapshot := []transcript.Segment{seg("b", "two", 2*time.Second), seg("a", "one", time.Second)}
	Reconcile(nil, snapshot)
	assert.Equal(t, []string{"b", "a"}, ids(snapshot))
}

func TestPromoteLanguage(t *testing.T) {
	tests := []struct {
		current, resolved, want string
	}{
		{"auto", "en", "en"},
		{"en", "es", "es"},
		{"en", "auto-detected", "en"},
		{"en", "auto", "en"},
		{"en", "", "en"},
		{"en", "en", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.current+"->"+tt.resolved, func(t *testing.T) {
			assert.Equal(t, tt.want, PromoteLanguage(tt.current, tt.resolved))
		})
	}
}

func TestEngine_ApplyHighlightsAndExpires(t *testing.T) {
	e := NewEngine(3*time.Second, transcript.LanguageAuto)
	assert.Equal(t, ViewLoading, e.ViewState())

	up := e.Apply(&transcript.Session{
		Status:   transcript.StatusActive,
		Language: "en",
		Segments: []transcript.Segment{seg("a", "one", 0)},
	}, t0)
	assert.Equal(t, []string{"a"}, up.Highlighted)
	assert.Equal(t, "en", up.Language)
	assert.Equal(t, ViewReady, e.ViewState())

	// a poll at +1s with new text on a highlighted segment refreshes its window
	up = e.Apply(&transcript.Session{
		Status:   transcript.StatusActive,
		Language: "auto-detected",
		Segments: []transcript.Segment{seg("a", "one two", 0), seg("b", "three", time.Second)},
	}, t0.Add(time.Second))
	assert.Equal(t, []string{"a", "b"}, up.Highlighted)
	assert.Equal(t, "en", up.Language, "auto sentinel does not demote a concrete language")

	// an unrelated identical poll does not re-trigger highlights
	e.Apply(&transcript.Session{
		Status:   transcript.StatusActive,
		Segments: []transcript.Segment{seg("a", "one two", 0), seg("b", "three", time.Second)},
	}, t0.Add(2*time.Second))

	next, ok := e.NextExpiry()
	require.True(t, ok)
	assert.Equal(t, t0.Add(4*time.Second), next)

	assert.False(t, e.Expire(t0.Add(3*time.Second)))
	assert.True(t, e.Expire(t0.Add(4*time.Second)))
	assert.Empty(t, e.Highlighted(t0.Add(4*time.Second)))
	_, ok = e.NextExpiry()
	assert.False(t, ok)
}

func TestEngine_ViewStates(t *testing.T) {
	e := NewEngine(time.Second, "en")

	e.Apply(&transcript.Session{Status: transcript.StatusActive, Segments: []transcript.Segment{}}, t0)
	assert.Equal(t, ViewEmpty, e.ViewState())

	e.Apply(&transcript.Session{Status: transcript.StatusStopped, Segments: []transcript.Segment{}}, t0)
	assert.Equal(t, ViewEndedEmpty, e.ViewState())

	e.Reset("fr")
	assert.Equal(t, ViewLoading, e.ViewState())
	assert.Empty(t, e.Segments())
	assert.Equal(t, "fr", e.Language())
	assert.True(t, e.LastUpdated().IsZero())
}

func TestEngine_SegmentsReturnsCopy(t *testing.T) {
	e := NewEngine(time.Second, "en")
	e.Apply(&transcript.Session{Status: transcript.StatusActive, Segments: []transcript.Segment{seg("a", "one", 0)}}, t0)

	got := e.Segments()
	got[0].Text = "mutated"
	assert.Equal(t, "one", e.Segments()[0].Text)
}

func TestHighlightSet(t *testing.T) {
	h := NewHighlightSet(0)
	h.Mark([]string{"x"}, t0)
	assert.True(t, h.Contains("x", t0.Add(DefaultHighlightDuration-time.Millisecond)))
	assert.False(t, h.Contains("x", t0.Add(DefaultHighlightDuration)))
	assert.Equal(t, 1, h.Len())

	h.Clear()
	assert.Zero(t, h.Len())
}
