package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// MockOptions configures a Mock.
type MockOptions struct {
	// Now is the mock's clock. Defaults to time.Now.
	Now func() time.Time
	// Rand drives segment generation. Defaults to a time-seeded source.
	Rand *rand.Rand
	// Latency is slept before every call to mimic a remote round trip.
	Latency time.Duration
}

type mockSession struct {
	session transcript.Session
	meeting transcript.Meeting
}

// Mock is an in-memory Service with seeded meetings. Live fetches of an
// active meeting append a generated segment about half the time.
type Mock struct {
	mu       sync.Mutex
	now      func() time.Time
	rnd      *rand.Rand
	latency  time.Duration
	sessions map[string]*mockSession
	meetings []transcript.Meeting
}

var mockSpeakers = []string{"John", "Sarah", "Michael"}

var mockSeedSegments = []struct {
	ago     time.Duration
	speaker string
	text    string
}{
	{60 * time.Second, "John", "Hello everyone, thanks for joining today's meeting."},
	{50 * time.Second, "John", "I wanted to discuss our progress on the new feature."},
	{40 * time.Second, "Sarah", "The development team has completed the backend work."},
	{30 * time.Second, "Sarah", "We're still working on the frontend components."},
	{20 * time.Second, "Michael", "When do you think we'll be ready for testing?"},
}

// NewMock creates a Mock seeded with three meetings, one of them active.
func NewMock(opts *MockOptions) *Mock {
	if opts == nil {
		opts = &MockOptions{}
	}
	m := &Mock{
		now:      opts.Now,
		rnd:      opts.Rand,
		latency:  opts.Latency,
		sessions: make(map[string]*mockSession),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rnd == nil {
		m.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m.meetings = m.seedMeetings()
	return m
}

func (m *Mock) seedMeetings() []transcript.Meeting {
	now := m.now().UTC()
	ended := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}
	seed := []struct {
		native, record, title string
		status                transcript.Status
		start                 time.Duration
		end                   *time.Time
	}{
		{"abc-defg-hij", "mock-meeting-1", "Product Team Standup", transcript.StatusStopped, 24 * time.Hour, ended(83000 * time.Second)},
		{"xyz-uvwt-rst", "mock-meeting-2", "Design Review", transcript.StatusStopped, 48 * time.Hour, ended(169200 * time.Second)},
		{"123-456-789", "mock-meeting-3", "Client Presentation", transcript.StatusActive, 0, nil},
	}
	meetings := make([]transcript.Meeting, 0, len(seed))
	for _, s := range seed {
		meetings = append(meetings, transcript.Meeting{
			ID:              transcript.MeetingID{Platform: transcript.PlatformGoogleMeet, NativeMeetingID: s.native, RecordID: s.record},
			Platform:        transcript.PlatformGoogleMeet,
			NativeMeetingID: s.native,
			Status:          s.status,
			StartTime:       now.Add(-s.start),
			EndTime:         s.end,
			Title:           s.title,
		})
	}
	return meetings
}

func (m *Mock) seedSegments(now time.Time) []transcript.Segment {
	segments := make([]transcript.Segment, 0, len(mockSeedSegments))
	for _, s := range mockSeedSegments {
		raw := now.Add(-s.ago).UTC().Format(time.RFC3339Nano)
		segments = append(segments, transcript.NewSegment(raw, s.text, s.speaker, "", now))
	}
	return segments
}

func (m *Mock) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// session returns the state for id, creating it on first use. Caller holds mu.
func (m *Mock) session(id transcript.MeetingID) *mockSession {
	key := id.Session().String()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	now := m.now()
	status := transcript.StatusActive
	meeting := transcript.Meeting{
		ID:              id.Session(),
		Platform:        id.Platform,
		NativeMeetingID: id.NativeMeetingID,
		StartTime:       now.UTC(),
		Title:           transcript.DefaultTitle(id.NativeMeetingID),
	}
	for _, known := range m.meetings {
		if known.ID.Session() == id.Session() {
			status = known.Status
			meeting = known
			break
		}
	}
	meeting.Status = status
	s := &mockSession{
		session: transcript.Session{
			MeetingID:   id.Session(),
			Status:      status,
			Language:    "en",
			Segments:    m.seedSegments(now),
			LastUpdated: now,
		},
		meeting: meeting,
	}
	m.sessions[key] = s
	return s
}

func (m *Mock) snapshot(s *mockSession) *transcript.Session {
	out := s.session
	out.Segments = append([]transcript.Segment(nil), s.session.Segments...)
	return &out
}

func (m *Mock) generateSegment(now time.Time) transcript.Segment {
	speaker := mockSpeakers[2]
	switch {
	case m.rnd.Float64() > 0.5:
		speaker = mockSpeakers[0]
	case m.rnd.Float64() > 0.5:
		speaker = mockSpeakers[1]
	}
	text := fmt.Sprintf("This is a new transcription segment generated at %s.", now.Format("3:04:05 PM"))
	return transcript.NewSegment(now.UTC().Format(time.RFC3339Nano), text, speaker, "", now)
}

// GetTranscript returns the live snapshot, sometimes with a new segment.
func (m *Mock) GetTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	if err := requireID(OpGetTranscript, id); err != nil {
		return nil, err
	}
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(id)
	if s.session.Status == transcript.StatusActive && m.rnd.Float64() > 0.5 {
		now := m.now()
		s.session.Segments = append(s.session.Segments, m.generateSegment(now))
		s.session.LastUpdated = now
	}
	return m.snapshot(s), nil
}

// GetMeetingTranscript returns the stored transcript without generating.
func (m *Mock) GetMeetingTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	if err := requireID(OpGetMeetingTranscript, id); err != nil {
		return nil, err
	}
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshot(m.session(id))
	out.Status = transcript.StatusStopped
	return out, nil
}

// StartBot begins a mock session. Starting a meeting that already has an
// active bot fails with a 409 APIError.
func (m *Mock) StartBot(ctx context.Context, req StartRequest) (transcript.MeetingID, error) {
	id := transcript.MeetingID{Platform: req.Platform, NativeMeetingID: req.NativeMeetingID}
	if err := requireID(OpStartBot, id); err != nil {
		return transcript.MeetingID{}, err
	}
	if err := m.wait(ctx); err != nil {
		return transcript.MeetingID{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id.String()]; ok && s.session.Status == transcript.StatusActive {
		return transcript.MeetingID{}, fmt.Errorf("%s: %w", OpStartBot, &APIError{StatusCode: http.StatusConflict})
	}

	lang := req.Language
	if transcript.IsAutoLanguage(lang) {
		lang = transcript.LanguageAutoDetected
	}
	now := m.now()
	meeting := transcript.Meeting{
		ID:              id,
		Platform:        id.Platform,
		NativeMeetingID: id.NativeMeetingID,
		Status:          transcript.StatusActive,
		StartTime:       now.UTC(),
		Title:           transcript.DefaultTitle(id.NativeMeetingID),
	}
	m.sessions[id.String()] = &mockSession{
		session: transcript.Session{
			MeetingID:   id,
			Status:      transcript.StatusActive,
			Language:    lang,
			Segments:    m.seedSegments(now),
			LastUpdated: now,
		},
		meeting: meeting,
	}
	return id, nil
}

// StopBot marks the session stopped.
func (m *Mock) StopBot(ctx context.Context, id transcript.MeetingID) error {
	if err := requireID(OpStopBot, id); err != nil {
		return err
	}
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id.Session().String()]; ok {
		s.session.Status = transcript.StatusStopped
		s.meeting.Status = transcript.StatusStopped
		end := m.now().UTC()
		s.meeting.EndTime = &end
	}
	return nil
}

// UpdateLanguage records the new language on the session.
func (m *Mock) UpdateLanguage(ctx context.Context, id transcript.MeetingID, language string) error {
	if err := requireID(OpUpdateLanguage, id); err != nil {
		return err
	}
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id.Session().String()]; ok {
		s.session.Language = language
	}
	return nil
}

// ListMeetings returns seeded and started meetings, most recent first.
func (m *Mock) ListMeetings(ctx context.Context) ([]transcript.Meeting, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[transcript.MeetingID]bool)
	var out []transcript.Meeting
	for _, known := range m.meetings {
		if s, ok := m.sessions[known.ID.Session().String()]; ok {
			known.Status = s.meeting.Status
			known.EndTime = s.meeting.EndTime
		}
		seen[known.ID.Session()] = true
		out = append(out, known)
	}
	for _, s := range m.sessions {
		if !seen[s.meeting.ID.Session()] {
			out = append(out, s.meeting)
		}
	}
	transcript.SortMeetings(out)
	return out, nil
}

// BotStatus reports one entry per active session.
func (m *Mock) BotStatus(ctx context.Context) (*BotStatus, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	status := &BotStatus{}
	for key, s := range m.sessions {
		if s.session.Status == transcript.StatusActive {
			entry, _ := json.Marshal(map[string]string{"meeting_id": key})
			status.RunningBots = append(status.RunningBots, entry)
		}
	}
	return status, nil
}
