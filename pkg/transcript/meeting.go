package transcript

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

// PlatformGoogleMeet is the only platform the service currently joins.
const PlatformGoogleMeet = "google_meet"

// platformHosts maps meeting URL hosts to platform names.
var platformHosts = map[string]string{
	"meet.google.com": PlatformGoogleMeet,
}

// MeetingID is the composite key platform/nativeMeetingId with an optional
// third historical record id.
type MeetingID struct {
	Platform        string `json:"platform" yaml:"platform"`
	NativeMeetingID string `json:"native_meeting_id" yaml:"native_meeting_id"`
	RecordID        string `json:"record_id,omitempty" yaml:"record_id,omitempty"`
}

// ParseMeetingID parses "platform/native[/record]".
func ParseMeetingID(s string) (MeetingID, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return MeetingID{}, fmt.Errorf("%w: %q", pferrors.ErrInvalidMeetingID, s)
	}
	id := MeetingID{Platform: parts[0], NativeMeetingID: parts[1]}
	if len(parts) > 2 {
		id.RecordID = strings.Join(parts[2:], "/")
	}
	return id, nil
}

// ParseMeetingURL extracts the meeting id from a meeting link.
func ParseMeetingURL(raw string) (MeetingID, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return MeetingID{}, fmt.Errorf("%w: %q", pferrors.ErrInvalidMeetingURL, raw)
	}
	platform, ok := platformHosts[strings.ToLower(u.Hostname())]
	if !ok {
		return MeetingID{}, fmt.Errorf("%w: %s (only Google Meet is supported)", pferrors.ErrUnsupportedPlatform, u.Hostname())
	}
	native := strings.Trim(u.Path, "/")
	if native == "" || strings.Contains(native, "/") {
		return MeetingID{}, fmt.Errorf("%w: %q", pferrors.ErrInvalidMeetingURL, raw)
	}
	return MeetingID{Platform: platform, NativeMeetingID: native}, nil
}

// ParseMeetingRef accepts either a meeting URL or a meeting id.
func ParseMeetingRef(s string) (MeetingID, error) {
	if strings.Contains(s, "://") {
		return ParseMeetingURL(s)
	}
	return ParseMeetingID(s)
}

// String returns the full composite key.
func (m MeetingID) String() string {
	if m.RecordID != "" {
		return m.Platform + "/" + m.NativeMeetingID + "/" + m.RecordID
	}
	return m.Platform + "/" + m.NativeMeetingID
}

// Path returns the escaped platform/native pair used in request URLs.
func (m MeetingID) Path() string {
	return url.PathEscape(m.Platform) + "/" + url.PathEscape(m.NativeMeetingID)
}

// Session returns the id without its record component. Two ids that share a
// session refer to the same remote bot.
func (m MeetingID) Session() MeetingID {
	return MeetingID{Platform: m.Platform, NativeMeetingID: m.NativeMeetingID}
}

// IsZero reports whether the id is unset.
func (m MeetingID) IsZero() bool {
	return m.Platform == "" && m.NativeMeetingID == ""
}

// Meeting is a historical meeting record.
type Meeting struct {
	ID              MeetingID  `json:"id" yaml:"id"`
	Platform        string     `json:"platform" yaml:"platform"`
	NativeMeetingID string     `json:"native_meeting_id" yaml:"native_meeting_id"`
	Status          Status     `json:"status" yaml:"status"`
	StartTime       time.Time  `json:"start_time" yaml:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Title           string     `json:"title" yaml:"title"`
}

// DefaultTitle is used when the service returns no title.
func DefaultTitle(nativeMeetingID string) string {
	return "Meeting " + nativeMeetingID
}

// SortMeetings orders meetings most recent first.
func SortMeetings(meetings []Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].StartTime.After(meetings[j].StartTime)
	})
}

// HasActive reports whether any meeting is still active.
func HasActive(meetings []Meeting) bool {
	for _, m := range meetings {
		if m.Status == StatusActive {
			return true
		}
	}
	return false
}

// History refresh cadence.
const (
	HistoryRefreshActive = 10 * time.Second
	HistoryRefreshIdle   = 30 * time.Second
)

// HistoryRefreshInterval returns how often the meeting list should refresh.
func HistoryRefreshInterval(meetings []Meeting) time.Duration {
	if HasActive(meetings) {
		return HistoryRefreshActive
	}
	return HistoryRefreshIdle
}
