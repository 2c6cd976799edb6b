package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

const (
	// TracerName is the name of the tracer for gateway requests.
	TracerName = "vexa.client"
)

// Span attribute keys
const (
	AttrOperation  = "vexa.operation"
	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status_code"
	AttrErrorKind  = "error.kind"
)

// Operation names. Spans are named "vexa.client.<op>".
const (
	OpGetTranscript        = "get_transcript"
	OpGetMeetingTranscript = "get_meeting_transcript"
	OpStartBot             = "start_bot"
	OpStopBot              = "stop_bot"
	OpUpdateLanguage       = "update_language"
	OpListMeetings         = "list_meetings"
	OpBotStatus            = "bot_status"
)

// Tracer provides distributed tracing for gateway requests. Spans are no-ops
// unless an OpenTelemetry SDK has been installed globally.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new client tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// SpanName returns the span name for op.
func SpanName(op string) string {
	return TracerName + "." + op
}

// StartRequest starts a client span for one API call.
func (t *Tracer) StartRequest(ctx context.Context, op, method, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanName(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrOperation, op),
			attribute.String(AttrHTTPMethod, method),
			attribute.String(AttrHTTPPath, path),
		),
	)
}

// EndRequest records the outcome and ends the span.
func (t *Tracer) EndRequest(span trace.Span, status int, err error) {
	if status != 0 {
		span.SetAttributes(attribute.Int(AttrHTTPStatus, status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorKind, string(pferrors.Classify(err))))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
