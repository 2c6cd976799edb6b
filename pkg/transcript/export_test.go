package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []Segment {
	base := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	return []Segment{
		{ID: "1", Text: "Hello everyone.", Timestamp: base, Speaker: "John"},
		{ID: "2", Text: `She said "ship it".`, Timestamp: base.Add(5 * time.Second), Speaker: ""},
	}
}

func TestRenderText(t *testing.T) {
	opts := ExportOptions{Timestamps: true, Speakers: true, Location: time.UTC}
	got := RenderText(exportFixture(), opts)
	assert.Equal(t, "[09:15:00] John: Hello everyone.\n\n[09:15:05] She said \"ship it\".", got)

	got = RenderText(exportFixture(), ExportOptions{Location: time.UTC})
	assert.Equal(t, "Hello everyone.\n\nShe said \"ship it\".", got)
}

func TestRenderCSV(t *testing.T) {
	got := RenderCSV(exportFixture(), ExportOptions{Location: time.UTC})
	want := "Timestamp,Speaker,Text\n" +
		`"09:15:00","John","Hello everyone."` + "\n" +
		`"09:15:05","Unknown","She said ""ship it""."`
	assert.Equal(t, want, got)
}

func TestRenderCSV_Empty(t *testing.T) {
	assert.Equal(t, "Timestamp,Speaker,Text", RenderCSV(nil, DefaultExportOptions()))
}

func TestFilename(t *testing.T) {
	id := MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}
	day := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "transcript-google_meet_abc-defg-hij-2026-10-14.txt", Filename(id, FormatText, day))
	assert.Equal(t, "transcript-google_meet_abc-defg-hij-2026-10-14.csv", Filename(id, FormatCSV, day))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("TEXT")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestFullText(t *testing.T) {
	assert.Equal(t, `Hello everyone. She said "ship it".`, FullText(exportFixture()))
	assert.Equal(t, "", FullText(nil))
}
