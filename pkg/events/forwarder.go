package events

import (
	"context"
	"sync/atomic"

	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// DefaultForwarderBuffer is the number of views queued before new ones are dropped.
const DefaultForwarderBuffer = 64

// eventPublisher is what the forwarder needs from a Publisher.
type eventPublisher interface {
	PublishTranscriptUpdated(ctx context.Context, params TranscriptUpdatedParams) error
	PublishSessionState(ctx context.Context, params SessionStateParams) error
	PublishSessionEnded(ctx context.Context, params SessionEndedParams) error
}

// Forwarder turns scheduler views into events. Observe is registered with
// poller.WithObserver and never blocks the scheduler loop; Run does the
// network I/O.
type Forwarder struct {
	pub     eventPublisher
	queue   chan poller.View
	logger  logging.Logger
	dropped atomic.Int64

	// owned by Run
	lastGen     uint64
	lastSession uint64
	lastState   poller.State
	lastMeeting transcript.MeetingID
	seen        bool
	ended       bool
}

// NewForwarder creates a forwarder. buffer <= 0 uses DefaultForwarderBuffer.
func NewForwarder(pub eventPublisher, buffer int, logger logging.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = DefaultForwarderBuffer
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Forwarder{
		pub:    pub,
		queue:  make(chan poller.View, buffer),
		logger: logger.With(logging.F("component", "event_forwarder")),
	}
}

// Observe queues v. When the queue is full the view is dropped and counted.
func (f *Forwarder) Observe(v poller.View) {
	select {
	case f.queue <- v:
	default:
		f.dropped.Add(1)
	}
}

// Dropped returns how many views were discarded because the queue was full.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run publishes queued views until ctx is done. Publish failures are logged
// and do not stop the forwarder.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-f.queue:
			f.forward(ctx, v)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, v poller.View) {
	if v.MeetingID.IsZero() {
		f.seen = false
		return
	}
	if !f.seen || v.Session != f.lastSession || v.MeetingID != f.lastMeeting {
		f.ended = false
	}

	if !f.seen || v.Generation != f.lastGen || v.State != f.lastState {
		err := f.pub.PublishSessionState(ctx, SessionStateParams{
			MeetingID:  v.MeetingID,
			Mode:       v.Mode,
			State:      v.State.String(),
			Retry:      v.Retry,
			MaxRetries: v.MaxRetries,
			Error:      v.Error,
			Generation: v.Generation,
		})
		f.logFailure(err, ChannelSessionState)
	}
	f.seen = true
	f.lastGen = v.Generation
	f.lastSession = v.Session
	f.lastMeeting = v.MeetingID
	f.lastState = v.State

	if changed := v.ChangedSegments(); len(changed) > 0 {
		err := f.pub.PublishTranscriptUpdated(ctx, TranscriptUpdatedParams{
			MeetingID:    v.MeetingID,
			Language:     v.Language,
			Status:       v.Status,
			Segments:     changed,
			SegmentCount: len(v.Segments),
			Generation:   v.Generation,
		})
		f.logFailure(err, ChannelTranscriptUpdated)
	}

	if v.State == poller.StateTerminated && !f.ended {
		f.ended = true
		err := f.pub.PublishSessionEnded(ctx, SessionEndedParams{
			MeetingID:    v.MeetingID,
			Status:       v.Status,
			SegmentCount: len(v.Segments),
			Generation:   v.Generation,
		})
		f.logFailure(err, ChannelSessionEnded)
	}
}

func (f *Forwarder) logFailure(err error, channel string) {
	if err != nil {
		f.logger.Warn("event not forwarded", logging.Err(err), logging.F("channel", channel))
	}
}
