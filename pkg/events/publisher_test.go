package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

type message struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	mu       sync.Mutex
	messages []message
	err      error
	closed   bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, msg interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.messages = append(f.messages, message{channel: channel, payload: msg.([]byte)})
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

var meetingID = transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}

func TestBaseEvent(t *testing.T) {
	event := NewBaseEvent("test.event")

	if event.EventType != "test.event" {
		t.Errorf("unexpected event type: %s", event.EventType)
	}
	if event.Source != "vexa" {
		t.Errorf("unexpected source: %s", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("unexpected version: %s", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if _, err := uuid.Parse(event.EventID); err != nil {
		t.Errorf("event id %q is not a uuid: %v", event.EventID, err)
	}
	if NewBaseEvent("x").EventID == event.EventID {
		t.Error("event ids should be unique")
	}
}

func TestPublisher_Channel(t *testing.T) {
	p := NewPublisher(&fakeRedis{}, "vexa.transcripts", nil)
	if got := p.Channel(ChannelTranscriptUpdated); got != "vexa.transcripts.events.transcript.updated" {
		t.Errorf("Channel() = %s", got)
	}
	if got := NewPublisher(&fakeRedis{}, "", nil).Channel(ChannelSessionEnded); got != ChannelSessionEnded {
		t.Errorf("Channel() without prefix = %s", got)
	}
}

func TestPublisher_PublishTranscriptUpdated(t *testing.T) {
	fake := &fakeRedis{}
	p := NewPublisher(fake, "vexa", nil)

	seg := transcript.NewSegment("2026-03-01T10:00:00Z", "hello there", "Ana", "", time.Now())
	err := p.PublishTranscriptUpdated(context.Background(), TranscriptUpdatedParams{
		MeetingID:    meetingID,
		Language:     "en",
		Status:       transcript.StatusActive,
		Segments:     []transcript.Segment{seg},
		SegmentCount: 4,
		Generation:   3,
	})
	if err != nil {
		t.Fatalf("PublishTranscriptUpdated() error = %v", err)
	}

	if len(fake.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(fake.messages))
	}
	msg := fake.messages[0]
	if msg.channel != "vexa.events.transcript.updated" {
		t.Errorf("channel = %s", msg.channel)
	}

	var event TranscriptUpdatedEvent
	if err := json.Unmarshal(msg.payload, &event); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if event.EventType != "transcript.updated" || event.MeetingID != "google_meet/abc-defg-hij" {
		t.Errorf("event = %+v", event)
	}
	if event.CorrelationID == nil || *event.CorrelationID != "google_meet/abc-defg-hij#3" {
		t.Errorf("correlation id = %v", event.CorrelationID)
	}
	if len(event.Segments) != 1 || event.Segments[0].ID != seg.ID || event.SegmentCount != 4 {
		t.Errorf("segments = %+v", event.Segments)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	fake := &fakeRedis{err: errors.New("connection refused")}
	p := NewPublisher(fake, "", nil)

	err := p.PublishSessionEnded(context.Background(), SessionEndedParams{MeetingID: meetingID, Status: transcript.StatusStopped})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, fake.err) {
		t.Errorf("error should wrap the redis error: %v", err)
	}
}

func TestPublisher_Close(t *testing.T) {
	fake := &fakeRedis{}
	if err := NewPublisher(fake, "", nil).Close(); err != nil {
		t.Fatal(err)
	}
	if !fake.closed {
		t.Error("Close() should close the redis client")
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	updated []TranscriptUpdatedParams
	states  []SessionStateParams
	ended   []SessionEndedParams
}

func (r *recordingPublisher) PublishTranscriptUpdated(_ context.Context, p TranscriptUpdatedParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, p)
	return nil
}

func (r *recordingPublisher) PublishSessionState(_ context.Context, p SessionStateParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, p)
	return nil
}

func (r *recordingPublisher) PublishSessionEnded(_ context.Context, p SessionEndedParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, p)
	return nil
}

func TestForwarder_Forward(t *testing.T) {
	rec := &recordingPublisher{}
	f := NewForwarder(rec, 0, nil)
	ctx := context.Background()

	seg := transcript.NewSegment("2026-03-01T10:00:00Z", "hello", "Ana", "", time.Now())
	views := []poller.View{
		{MeetingID: meetingID, Mode: "live", State: poller.StatePolling, Generation: 1},
		{MeetingID: meetingID, Mode: "live", State: poller.StatePolling, Generation: 1, Segments: []transcript.Segment{seg}, Changed: []string{seg.ID}},
		{MeetingID: meetingID, Mode: "live", State: poller.StatePolling, Generation: 1, Segments: []transcript.Segment{seg}},
		{MeetingID: meetingID, Mode: "live", State: poller.StateDegraded, Generation: 1, Retry: 1, MaxRetries: 3,
			Error: &pferrors.Display{Message: "Failed to update transcription. Retrying... (1/3)"}},
		{MeetingID: meetingID, Mode: "live", State: poller.StateTerminated, Status: transcript.StatusStopped, Generation: 1, Segments: []transcript.Segment{seg}},
		{MeetingID: meetingID, Mode: "live", State: poller.StateTerminated, Status: transcript.StatusStopped, Generation: 1, Segments: []transcript.Segment{seg}},
		{},
	}
	for _, v := range views {
		f.forward(ctx, v)
	}

	if len(rec.states) != 3 {
		t.Errorf("published %d state events, want 3 (polling, degraded, terminated)", len(rec.states))
	}
	if len(rec.states) > 1 && rec.states[1].Error == nil {
		t.Error("degraded state event should carry the error")
	}
	if len(rec.updated) != 1 || len(rec.updated[0].Segments) != 1 {
		t.Errorf("updated events = %+v", rec.updated)
	}
	if len(rec.ended) != 1 {
		t.Errorf("published %d ended events, want 1", len(rec.ended))
	}
}

func TestForwarder_NewGenerationRepublishesState(t *testing.T) {
	rec := &recordingPublisher{}
	f := NewForwarder(rec, 0, nil)
	ctx := context.Background()

	f.forward(ctx, poller.View{MeetingID: meetingID, State: poller.StatePolling, Generation: 1})
	f.forward(ctx, poller.View{MeetingID: meetingID, State: poller.StatePolling, Generation: 2})

	if len(rec.states) != 2 {
		t.Errorf("published %d state events, want 2", len(rec.states))
	}
}

func TestForwarder_ObserveDropsWhenFull(t *testing.T) {
	f := NewForwarder(&recordingPublisher{}, 1, nil)
	f.Observe(poller.View{MeetingID: meetingID})
	f.Observe(poller.View{MeetingID: meetingID})

	if f.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", f.Dropped())
	}
}

func TestForwarder_Run(t *testing.T) {
	rec := &recordingPublisher{}
	f := NewForwarder(rec, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	f.Observe(poller.View{MeetingID: meetingID, State: poller.StatePolling, Generation: 1})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.states)
		rec.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state event not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
