package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

func TestParseMeetingID(t *testing.T) {
	tests := []struct {
		in      string
		want    MeetingID
		wantErr bool
	}{
		{"google_meet/abc-defg-hij", MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}, false},
		{"google_meet/abc-defg-hij/42", MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij", RecordID: "42"}, false},
		{" google_meet/abc/ ", MeetingID{Platform: "google_meet", NativeMeetingID: "abc"}, false},
		{"google_meet", MeetingID{}, true},
		{"", MeetingID{}, true},
		{"/abc", MeetingID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMeetingID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, pferrors.ErrInvalidMeetingID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeetingID_RoundTrip(t *testing.T) {
	for _, s := range []string{"google_meet/abc-defg-hij", "google_meet/abc-defg-hij/17"} {
		id, err := ParseMeetingID(s)
		require.NoError(t, err)
		assert.Equal(t, s, id.String())
	}
}

func TestMeetingID_PathAndSession(t *testing.T) {
	id := MeetingID{Platform: "google_meet", NativeMeetingID: "abc def", RecordID: "9"}
	assert.Equal(t, "google_meet/abc%20def", id.Path())
	assert.Equal(t, MeetingID{Platform: "google_meet", NativeMeetingID: "abc def"}, id.Session())
	assert.False(t, id.IsZero())
	assert.True(t, MeetingID{}.IsZero())
}

func TestParseMeetingURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    MeetingID
		wantErr error
	}{
		{
			name: "google meet",
			in:   "https://meet.google.com/abc-defg-hij",
			want: MeetingID{Platform: PlatformGoogleMeet, NativeMeetingID: "abc-defg-hij"},
		},
		{
			name: "query string ignored",
			in:   "https://meet.google.com/abc-defg-hij?authuser=1",
			want: MeetingID{Platform: PlatformGoogleMeet, NativeMeetingID: "abc-defg-hij"},
		},
		{name: "unsupported host", in: "https://zoom.us/j/123", wantErr: pferrors.ErrUnsupportedPlatform},
		{name: "no code", in: "https://meet.google.com/", wantErr: pferrors.ErrInvalidMeetingURL},
		{name: "not a url", in: "abc-defg-hij", wantErr: pferrors.ErrInvalidMeetingURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMeetingURL(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMeetingRef(t *testing.T) {
	id, err := ParseMeetingRef("https://meet.google.com/abc-defg-hij")
	require.NoError(t, err)
	assert.Equal(t, "google_meet/abc-defg-hij", id.String())

	id, err = ParseMeetingRef("google_meet/xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", id.NativeMeetingID)
}

func TestSortMeetingsAndRefresh(t *testing.T) {
	now := time.Now()
	meetings := []Meeting{
		{Title: "old", StartTime: now.Add(-48 * time.Hour), Status: StatusStopped},
		{Title: "new", StartTime: now, Status: StatusStopped},
		{Title: "mid", StartTime: now.Add(-24 * time.Hour), Status: StatusStopped},
	}

	SortMeetings(meetings)
	assert.Equal(t, "new", meetings[0].Title)
	assert.Equal(t, "mid", meetings[1].Title)
	assert.Equal(t, "old", meetings[2].Title)

	assert.False(t, HasActive(meetings))
	assert.Equal(t, HistoryRefreshIdle, HistoryRefreshInterval(meetings))

	meetings[2].Status = StatusActive
	assert.True(t, HasActive(meetings))
	assert.Equal(t, HistoryRefreshActive, HistoryRefreshInterval(meetings))
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Meeting abc-defg-hij", DefaultTitle("abc-defg-hij"))
}
