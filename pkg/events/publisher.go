// Package events publishes transcript updates to Redis so that other processes
// (dashboards, note takers, archivers) can follow a live meeting.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Channel suffixes. Each is appended to the configured prefix, so with the
// default prefix updates go to "vexa.transcripts.events.transcript.updated".
const (
	ChannelTranscriptUpdated = "events.transcript.updated"
	ChannelSessionState      = "events.session.state"
	ChannelSessionEnded      = "events.session.ended"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "vexa",
		Version:   "1.0",
	}
}

// TranscriptUpdatedEvent carries the segments one poll added or changed.
type TranscriptUpdatedEvent struct {
	BaseEvent

	MeetingID    string               `json:"meeting_id"`
	Language     string               `json:"language"`
	Status       string               `json:"status"`
	Segments     []transcript.Segment `json:"segments"`
	SegmentCount int                  `json:"segment_count"`
	Generation   uint64               `json:"generation"`
}

// SessionStateEvent is published when the scheduler changes state.
type SessionStateEvent struct {
	BaseEvent

	MeetingID  string            `json:"meeting_id"`
	Mode       string            `json:"mode"`
	State      string            `json:"state"`
	Retry      int               `json:"retry"`
	MaxRetries int               `json:"max_retries"`
	Error      *pferrors.Display `json:"error,omitempty"`
}

// SessionEndedEvent is published once when a live session reaches a terminal status.
type SessionEndedEvent struct {
	BaseEvent

	MeetingID    string `json:"meeting_id"`
	Status       string `json:"status"`
	SegmentCount int    `json:"segment_count"`
}

// redisPublisher is the slice of *redis.Client the publisher uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes transcript events to Redis.
type Publisher struct {
	client redisPublisher
	prefix string
	logger logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every channel name, joined with a dot.
	Prefix string
}

// NewPublisher creates a new event publisher.
func NewPublisher(client redisPublisher, prefix string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(ctx context.Context, cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return NewPublisher(client, cfg.Prefix, logger), nil
}

// Channel returns the full channel name for suffix.
func (p *Publisher) Channel(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

func correlation(id transcript.MeetingID, generation uint64) *string {
	s := fmt.Sprintf("%s#%d", id.String(), generation)
	return &s
}

// PublishTranscriptUpdated publishes the changed segments of one poll.
func (p *Publisher) PublishTranscriptUpdated(ctx context.Context, params TranscriptUpdatedParams) error {
	event := TranscriptUpdatedEvent{
		BaseEvent:    NewBaseEvent("transcript.updated"),
		MeetingID:    params.MeetingID.String(),
		Language:     params.Language,
		Status:       params.Status.String(),
		Segments:     params.Segments,
		SegmentCount: params.SegmentCount,
		Generation:   params.Generation,
	}
	event.CorrelationID = correlation(params.MeetingID, params.Generation)

	return p.publish(ctx, ChannelTranscriptUpdated, event)
}

// PublishSessionState publishes a scheduler state change.
func (p *Publisher) PublishSessionState(ctx context.Context, params SessionStateParams) error {
	event := SessionStateEvent{
		BaseEvent:  NewBaseEvent("session.state"),
		MeetingID:  params.MeetingID.String(),
		Mode:       params.Mode,
		State:      params.State,
		Retry:      params.Retry,
		MaxRetries: params.MaxRetries,
		Error:      params.Error,
	}
	event.CorrelationID = correlation(params.MeetingID, params.Generation)

	return p.publish(ctx, ChannelSessionState, event)
}

// PublishSessionEnded publishes the end of a live session.
func (p *Publisher) PublishSessionEnded(ctx context.Context, params SessionEndedParams) error {
	event := SessionEndedEvent{
		BaseEvent:    NewBaseEvent("session.ended"),
		MeetingID:    params.MeetingID.String(),
		Status:       params.Status.String(),
		SegmentCount: params.SegmentCount,
	}
	event.CorrelationID = correlation(params.MeetingID, params.Generation)

	return p.publish(ctx, ChannelSessionEnded, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, suffix string, event interface{}) error {
	channel := p.Channel(suffix)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// TranscriptUpdatedParams contains parameters for a transcript update event.
type TranscriptUpdatedParams struct {
	MeetingID    transcript.MeetingID
	Language     string
	Status       transcript.Status
	Segments     []transcript.Segment
	SegmentCount int
	Generation   uint64
}

// SessionStateParams contains parameters for a state change event.
type SessionStateParams struct {
	MeetingID  transcript.MeetingID
	Mode       string
	State      string
	Retry      int
	MaxRetries int
	Error      *pferrors.Display
	Generation uint64
}

// SessionEndedParams contains parameters for a session ended event.
type SessionEndedParams struct {
	MeetingID    transcript.MeetingID
	Status       transcript.Status
	SegmentCount int
	Generation   uint64
}
