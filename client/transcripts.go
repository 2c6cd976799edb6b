package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Language fallbacks when neither the segments nor the response carry one.
const (
	liveLanguageFallback       = transcript.LanguageAuto
	historicalLanguageFallback = "en"
)

// rawString accepts a JSON string or number and keeps its text form.
type rawString string

func (r *rawString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = rawString(s)
		return nil
	}
	*r = rawString(data)
	return nil
}

type wireSegment struct {
	Text              string    `json:"text"`
	Speaker           string    `json:"speaker"`
	Language          string    `json:"language"`
	AbsoluteStartTime rawString `json:"absolute_start_time"`
	Timestamp         rawString `json:"timestamp"`
}

// wireTranscript is GET /transcripts/{platform}/{native}. Segments appear
// either at the top level or nested under transcript; the pointers tell an
// absent key from an empty list.
type wireTranscript struct {
	Segments   *[]wireSegment `json:"segments"`
	Transcript *struct {
		Segments *[]wireSegment `json:"segments"`
	} `json:"transcript"`
	Language string `json:"language"`
	Status   string `json:"status"`
}

func (w *wireTranscript) segments() ([]wireSegment, bool) {
	if w.Segments != nil {
		return *w.Segments, true
	}
	if w.Transcript != nil && w.Transcript.Segments != nil {
		return *w.Transcript.Segments, true
	}
	return nil, false
}

// parseTranscript normalizes a transcript response into a Session.
func parseTranscript(id transcript.MeetingID, w *wireTranscript, languageFallback string, now time.Time) (*transcript.Session, error) {
	raw, ok := w.segments()
	if !ok {
		return nil, pferrors.ErrMissingSegments
	}

	segments := make([]transcript.Segment, 0, len(raw))
	for _, s := range raw {
		ts := string(s.AbsoluteStartTime)
		if ts == "" {
			ts = string(s.Timestamp)
		}
		segments = append(segments, transcript.NewSegment(ts, s.Text, s.Speaker, s.Language, now))
	}

	return &transcript.Session{
		MeetingID:   id,
		Status:      transcript.ParseStatus(w.Status),
		Language:    transcript.ResolveLanguage(segments, w.Language, languageFallback),
		Segments:    segments,
		LastUpdated: now,
	}, nil
}

func (c *Client) fetchTranscript(ctx context.Context, op string, id transcript.MeetingID, languageFallback string) (*transcript.Session, error) {
	if err := requireID(op, id); err != nil {
		return nil, err
	}
	var w wireTranscript
	if _, err := c.do(ctx, op, http.MethodGet, "/transcripts/"+id.Path(), nil, &w); err != nil {
		return nil, err
	}
	sess, err := parseTranscript(id, &w, languageFallback, c.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// GetTranscript fetches the current snapshot of a live meeting.
func (c *Client) GetTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	return c.fetchTranscript(ctx, OpGetTranscript, id, liveLanguageFallback)
}

// GetMeetingTranscript fetches a finished meeting once. The result is always
// reported as stopped so that viewers never poll it.
func (c *Client) GetMeetingTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	sess, err := c.fetchTranscript(ctx, OpGetMeetingTranscript, id, historicalLanguageFallback)
	if err != nil {
		return nil, err
	}
	sess.Status = transcript.StatusStopped
	return sess, nil
}
