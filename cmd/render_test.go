package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

var renderID = transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}

func renderView(state poller.State, segs ...transcript.Segment) poller.View {
	return poller.View{
		MeetingID:  renderID,
		Mode:       poller.ModeLive.String(),
		State:      state,
		Language:   "en",
		Segments:   segs,
		Generation: 1,
		Session:    1,
	}
}

func seg(id, speaker, text string, offset time.Duration) transcript.Segment {
	return transcript.Segment{ID: id, Speaker: speaker, Text: text, Timestamp: testNow.Add(offset)}
}

func TestViewRenderer_AppendOnly(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)

	first := renderView(poller.StatePolling, seg("a", "Ana", "hello there", 0))
	first.Highlighted = []string{"a"}
	r.Render(first)

	got := buf.String()
	if !strings.Contains(got, "-- live google_meet/abc-defg-hij [polling, en] --") {
		t.Errorf("missing status line:\n%s", got)
	}
	if !strings.Contains(got, "+ [15:04:05] Ana: hello there") {
		t.Errorf("missing highlighted segment:\n%s", got)
	}

	buf.Reset()
	r.Render(renderView(poller.StatePolling, seg("a", "Ana", "hello there", 0)))
	if buf.Len() != 0 {
		t.Errorf("unchanged view printed %q", buf.String())
	}

	r.Render(renderView(poller.StatePolling,
		seg("a", "Ana", "hello there, everyone", 0),
		seg("b", "Ben", "hi", 2*time.Second),
	))
	got = buf.String()
	if !strings.Contains(got, "~ [15:04:05] Ana: hello there, everyone") {
		t.Errorf("corrected segment not reprinted:\n%s", got)
	}
	if !strings.Contains(got, "[15:04:07] Ben: hi") {
		t.Errorf("new segment not printed:\n%s", got)
	}
	if strings.Contains(got, "--") {
		t.Errorf("status line repeated without a state change:\n%s", got)
	}
}

func TestViewRenderer_StateAndErrors(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)

	r.Render(renderView(poller.StatePolling))
	degraded := renderView(poller.StateDegraded)
	d := pferrors.Retrying(pferrors.ErrTransient, 1, 3)
	degraded.Error = &d
	r.Render(degraded)
	r.Render(degraded)

	got := buf.String()
	if strings.Count(got, "! Failed to update transcription. Retrying... (1/3)") != 1 {
		t.Errorf("error should be printed once:\n%s", got)
	}
	if !strings.Contains(got, "[degraded, en]") {
		t.Errorf("missing degraded status:\n%s", got)
	}
}

func TestViewRenderer_NewSessionResets(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)

	r.Render(renderView(poller.StatePolling, seg("a", "Ana", "same text", 0)))
	next := renderView(poller.StatePolling, seg("a", "Ana", "same text", 0))
	next.Session = 2
	buf.Reset()
	r.Render(next)

	if !strings.Contains(buf.String(), "Ana: same text") {
		t.Errorf("a new session should reprint its transcript:\n%s", buf.String())
	}
}

func TestViewRenderer_DisarmKeepsTranscript(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)

	r.Render(renderView(poller.StatePolling, seg("a", "Ana", "same text", 0)))

	// A failed stop pauses polling and resumes it under a new generation
	// without resetting the session.
	paused := renderView(poller.StateIdle, seg("a", "Ana", "same text", 0))
	paused.Generation = 2
	resumed := renderView(poller.StatePolling, seg("a", "Ana", "same text", 0))
	resumed.Generation = 3
	buf.Reset()
	r.Render(paused)
	r.Render(resumed)

	if strings.Contains(buf.String(), "Ana: same text") {
		t.Errorf("transcript reprinted after a paused control call:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "[polling, en]") {
		t.Errorf("status line missing after resume:\n%s", buf.String())
	}
}

func TestViewRenderer_NewMeetingResets(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)

	r.Render(renderView(poller.StatePolling, seg("a", "Ana", "same text", 0)))
	other := renderView(poller.StatePolling, seg("a", "Ana", "same text", 0))
	other.MeetingID = transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "xyz-uvwt-rst"}
	buf.Reset()
	r.Render(other)

	if !strings.Contains(buf.String(), "Ana: same text") {
		t.Errorf("switching meetings should reprint:\n%s", buf.String())
	}
}

func TestViewRenderer_IgnoresIdle(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "", time.UTC)
	r.Render(poller.View{})
	if buf.Len() != 0 {
		t.Errorf("idle view printed %q", buf.String())
	}
}

func TestViewRenderer_Search(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, false, "Budget", time.UTC)

	r.Render(renderView(poller.StatePolling,
		seg("a", "Ana", "the budget is final", 0),
		seg("b", "Ben", "agreed", time.Second),
	))
	r.Summary()

	got := buf.String()
	if !strings.Contains(got, "> [15:04:05] Ana: the budget is final") {
		t.Errorf("match not marked:\n%s", got)
	}
	if !strings.Contains(got, `search "Budget": 1/1`) {
		t.Errorf("missing summary:\n%s", got)
	}
}

func TestViewRenderer_Color(t *testing.T) {
	var buf bytes.Buffer
	r := newViewRenderer(&buf, true, "", time.UTC)

	r.Render(renderView(poller.StatePolling, seg("a", "Ana", "hi", 0), seg("b", transcript.UnknownSpeaker, "who", 0)))
	got := buf.String()
	if !strings.Contains(got, transcript.SpeakerColors[0]+"[15:04:05] Ana: hi"+ansiReset) {
		t.Errorf("first speaker should get the first color:\n%q", got)
	}
	if !strings.Contains(got, "  [15:04:05] "+transcript.UnknownSpeaker+": who\n") {
		t.Errorf("unattributed speech should be uncolored:\n%q", got)
	}
}
