package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
)

// viewRenderer prints poller views to a terminal as an append-only log:
// each segment is printed once when it appears and again when its text
// changes. Not safe for concurrent use.
type viewRenderer struct {
	w       io.Writer
	color   bool
	export  transcript.ExportOptions
	palette *transcript.Palette
	search  *transcript.Search

	printed   map[string]string
	meeting   transcript.MeetingID
	session   uint64
	state     poller.State
	language  string
	lastError string
	started   bool
}

func newViewRenderer(w io.Writer, color bool, searchTerm string, loc *time.Location) *viewRenderer {
	r := &viewRenderer{
		w:       w,
		color:   color,
		export:  transcript.ExportOptions{Timestamps: true, Speakers: true, Location: loc},
		palette: transcript.NewPalette(),
		printed: make(map[string]string),
	}
	if searchTerm != "" {
		r.search = transcript.NewSearch(searchTerm, nil)
	}
	return r
}

// Render prints whatever changed since the previous view.
func (r *viewRenderer) Render(v poller.View) {
	if v.MeetingID.IsZero() {
		return
	}
	if !r.started || v.MeetingID != r.meeting || v.Session != r.session {
		r.started = true
		r.meeting = v.MeetingID
		r.session = v.Session
		r.printed = make(map[string]string)
		r.lastError = ""
		r.state = -1
	}

	if v.State != r.state || v.Language != r.language {
		r.state = v.State
		r.language = v.Language
		r.status(v)
	}

	r.palette.Observe(v.Segments)
	var matches map[string]bool
	if r.search != nil {
		r.search.Update(v.Segments)
		matches = make(map[string]bool, len(r.search.Results()))
		for _, hit := range r.search.Results() {
			matches[hit.SegmentID] = true
		}
	}

	for _, seg := range v.Segments {
		prev, seen := r.printed[seg.ID]
		if seen && prev == seg.Text {
			continue
		}
		r.printed[seg.ID] = seg.Text
		r.segment(seg, seen, v.IsHighlighted(seg.ID), matches[seg.ID])
	}

	msg := ""
	if v.Error != nil {
		msg = v.Error.Message
	}
	if msg != r.lastError {
		r.lastError = msg
		if msg != "" {
			r.line("! "+msg, ansiBold)
			if v.Error.Remediation != "" && !v.Error.Retryable {
				r.line("  "+v.Error.Remediation, ansiDim)
			}
		}
	}
}

// Summary prints the search position, if a search is active.
func (r *viewRenderer) Summary() {
	if r.search == nil {
		return
	}
	pos, total := r.search.Position()
	if total == 0 {
		fmt.Fprintf(r.w, "search %q: no matches\n", r.search.Term())
		return
	}
	fmt.Fprintf(r.w, "search %q: %d/%d\n", r.search.Term(), pos, total)
}

func (r *viewRenderer) status(v poller.View) {
	lang := v.Language
	if transcript.IsAutoLanguage(lang) {
		lang = "auto"
	}
	r.line(fmt.Sprintf("-- %s %s [%s, %s] --", v.Mode, v.MeetingID, v.State, lang), ansiDim)
}

func (r *viewRenderer) segment(seg transcript.Segment, updated, highlighted, match bool) {
	text := transcript.RenderText([]transcript.Segment{seg}, r.export)
	prefix := "  "
	switch {
	case match:
		prefix = "> "
	case updated:
		prefix = "~ "
	case highlighted:
		prefix = "+ "
	}
	if !r.color {
		fmt.Fprintln(r.w, prefix+text)
		return
	}
	style := r.palette.Color(seg.Speaker)
	if highlighted {
		style += ansiBold
	}
	if style == "" {
		fmt.Fprintln(r.w, prefix+text)
		return
	}
	fmt.Fprintln(r.w, prefix+style+text+ansiReset)
}

func (r *viewRenderer) line(s, style string) {
	if r.color {
		fmt.Fprintln(r.w, style+s+ansiReset)
		return
	}
	fmt.Fprintln(r.w, s)
}
