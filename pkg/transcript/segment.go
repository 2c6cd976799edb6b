// Package transcript defines the meeting transcription data model: segments,
// sessions, meeting identifiers and historical meeting records, together with
// the pure helpers that operate on them (id derivation, export, search).
package transcript

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

// idTextPrefix is the number of runes of segment text folded into its id.
const idTextPrefix = 20

// UnknownSpeaker labels segments the server did not attribute.
const UnknownSpeaker = "Unknown"

// Language sentinels.
const (
	// LanguageAuto requests auto-detection; it is sent to the server as null.
	LanguageAuto = "auto"
	// LanguageAutoDetected is reported while detection has not resolved yet.
	LanguageAutoDetected = "auto-detected"
)

// Status is the lifecycle state of a remote transcription session.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// ParseStatus maps a raw server value to a Status. Missing values are active.
func ParseStatus(s string) Status {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return StatusActive
	}
	return Status(s)
}

// IsTerminal reports whether polling should stop for this status.
// Anything other than active is terminal.
func (s Status) IsTerminal() bool {
	return s != StatusActive
}

func (s Status) String() string {
	return string(s)
}

// Segment is a unit of transcribed speech.
type Segment struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Speaker   string    `json:"speaker" yaml:"speaker"`
	Language  string    `json:"language,omitempty" yaml:"language,omitempty"`
}

// DeriveID builds the content-derived segment id from the segment's raw
// timestamp string and its text. The result is a composite key, not a hash:
// the timestamp followed by the first 20 runes of text with every whitespace
// run replaced by a single '-'.
func DeriveID(timestamp, text string) string {
	runes := []rune(text)
	if len(runes) > idTextPrefix {
		runes = runes[:idTextPrefix]
	}

	var b strings.Builder
	b.Grow(len(timestamp) + 1 + len(runes))
	b.WriteString(timestamp)
	b.WriteByte('-')

	inSpace := false
	for _, r := range runes {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// NewSegment normalizes raw segment fields. An empty raw timestamp falls back
// to now, which is best-effort only: such segments get a fresh id every poll.
func NewSegment(rawTimestamp, text, speaker, lang string, now time.Time) Segment {
	if rawTimestamp == "" {
		rawTimestamp = now.UTC().Format(time.RFC3339Nano)
	}
	ts, err := ParseTimestamp(rawTimestamp)
	if err != nil {
		ts = now.UTC()
	}
	if strings.TrimSpace(speaker) == "" {
		speaker = UnknownSpeaker
	}
	return Segment{
		ID:        DeriveID(rawTimestamp, text),
		Text:      text,
		Timestamp: ts,
		Speaker:   speaker,
		Language:  lang,
	}
}

// timestampLayouts are tried in order. The service emits absolute times
// without a zone designator; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a server timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Session is the current full snapshot of one meeting's transcript.
type Session struct {
	MeetingID   MeetingID `json:"meeting_id" yaml:"meeting_id"`
	Status      Status    `json:"status" yaml:"status"`
	Language    string    `json:"language" yaml:"language"`
	Segments    []Segment `json:"segments" yaml:"segments"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
}

// ResolveLanguage picks the session language: the newest segment carrying
// an explicit language wins over the top-level value, which wins over fallback.
func ResolveLanguage(segments []Segment, topLevel, fallback string) string {
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].Language != "" {
			return segments[i].Language
		}
	}
	if topLevel != "" {
		return topLevel
	}
	return fallback
}

// IsAutoLanguage reports whether lang means auto-detection.
func IsAutoLanguage(lang string) bool {
	return lang == "" || lang == LanguageAuto || lang == LanguageAutoDetected
}

// NormalizeLanguage validates a language code and returns its canonical base
// form ("EN-us" becomes "en"). Auto sentinels normalize to LanguageAuto.
func NormalizeLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if IsAutoLanguage(strings.ToLower(lang)) {
		return LanguageAuto, nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("%w: %q", pferrors.ErrInvalidLanguage, lang)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("%w: %q", pferrors.ErrInvalidLanguage, lang)
	}
	return base.String(), nil
}

// RequestLanguage converts a language into the wire value: nil for auto.
func RequestLanguage(lang string) *string {
	if IsAutoLanguage(lang) {
		return nil
	}
	return &lang
}
