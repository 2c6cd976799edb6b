package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Format is a transcript download format.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "txt", "text" or "csv".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format %q (must be txt or csv)", s)
	}
}

// ExportOptions control text rendering.
type ExportOptions struct {
	Timestamps bool
	Speakers   bool
	// Location renders clock times; nil means time.Local.
	Location *time.Location
}

// DefaultExportOptions includes timestamps and speakers.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Timestamps: true, Speakers: true}
}

func (o ExportOptions) clock(t time.Time) string {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("15:04:05")
}

// RenderText renders "[hh:mm:ss] Speaker: text" lines separated by a blank line.
func RenderText(segments []Segment, opts ExportOptions) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		var b strings.Builder
		if opts.Timestamps {
			b.WriteString("[" + opts.clock(s.Timestamp) + "] ")
		}
		if opts.Speakers && s.Speaker != "" {
			b.WriteString(s.Speaker + ": ")
		}
		b.WriteString(s.Text)
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n\n")
}

// RenderCSV renders a Timestamp,Speaker,Text table with every field quoted.
func RenderCSV(segments []Segment, opts ExportOptions) string {
	rows := make([]string, 0, len(segments)+1)
	rows = append(rows, "Timestamp,Speaker,Text")
	for _, s := range segments {
		speaker := s.Speaker
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		rows = append(rows, quoteCSV(opts.clock(s.Timestamp))+","+quoteCSV(speaker)+","+quoteCSV(s.Text))
	}
	return strings.Join(rows, "\n")
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Render dispatches on format.
func Render(segments []Segment, format Format, opts ExportOptions) string {
	if format == FormatCSV {
		return RenderCSV(segments, opts)
	}
	return RenderText(segments, opts)
}

// Filename returns transcript-<meeting>-<YYYY-MM-DD>.<ext>. Slashes in the
// meeting id are replaced so the name stays a single path element.
func Filename(id MeetingID, format Format, day time.Time) string {
	safe := strings.ReplaceAll(id.String(), "/", "_")
	return fmt.Sprintf("transcript-%s-%s.%s", safe, day.Format("2006-01-02"), format)
}

// FullText joins segment texts with single spaces.
func FullText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
