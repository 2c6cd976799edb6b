// Package client provides the HTTP client for the Vexa transcription gateway.
// It handles authentication, request encoding, error mapping and tracing; the
// endpoint methods live in transcripts.go and bots.go.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/otherjamesbrown/vexa-cli/credentials"
	"github.com/otherjamesbrown/vexa-cli/pkg/buildinfo"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Default connection settings.
const (
	DefaultBaseURL = "https://gateway.dev.vexa.ai"
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 16 << 20
)

// Request headers.
const (
	HeaderAPIKey      = "X-API-Key"
	HeaderContentType = "Content-Type"
	HeaderUserAgent   = "User-Agent"
	contentTypeJSON   = "application/json"
)

// Service is everything the commands and the live view need from the gateway.
// Both *Client and *Mock implement it.
type Service interface {
	GetTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error)
	GetMeetingTranscript(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error)
	StartBot(ctx context.Context, req StartRequest) (transcript.MeetingID, error)
	StopBot(ctx context.Context, id transcript.MeetingID) error
	UpdateLanguage(ctx context.Context, id transcript.MeetingID, language string) error
	ListMeetings(ctx context.Context) ([]transcript.Meeting, error)
	BotStatus(ctx context.Context) (*BotStatus, error)
}

// Options configures the Client behavior.
type Options struct {
	// BaseURL is the gateway root, without a trailing slash.
	BaseURL string

	// Timeout bounds each request including reading the body.
	Timeout time.Duration

	// TLSConfig is used for the transport when set.
	TLSConfig *tls.Config

	// HTTPClient overrides the transport entirely. Timeout and TLSConfig are
	// ignored when it is set.
	HTTPClient *http.Client

	// Logger receives one debug line per request.
	Logger logging.Logger

	// Now supplies the fallback time for segments without a timestamp.
	Now func() time.Time
}

// DefaultOptions returns Options with default values.
func DefaultOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// Client talks to the transcription gateway over REST/JSON.
type Client struct {
	baseURL string
	http    *http.Client
	creds   credentials.Provider
	logger  logging.Logger
	tracer  *Tracer
	now     func() time.Time
}

// New creates a Client. The API key is read from creds on every request, so
// a key saved by 'vexa auth login' is picked up without rebuilding the client.
func New(creds credentials.Provider, opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.TLSConfig != nil {
			transport.TLSClientConfig = opts.TLSConfig
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		creds:   creds,
		logger:  logger,
		tracer:  NewTracer(),
		now:     now,
	}
}

// BaseURL returns the configured gateway root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Detail     string
}

// defaultExistingBotDetail is shown when a 409 carries no detail.
const defaultExistingBotDetail = "A bot is already running for this meeting"

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusConflict {
		if e.Detail != "" {
			return e.Detail
		}
		return defaultExistingBotDetail
	}
	detail := e.Detail
	if detail == "" {
		detail = "Unknown error"
	}
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), detail)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Unwrap maps the status code onto the domain sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusConflict:
		return pferrors.ErrExistingBot
	case e.StatusCode == http.StatusUnauthorized:
		return pferrors.ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return pferrors.ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return pferrors.ErrNotFound
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return pferrors.ErrValidation
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return pferrors.ErrTransient
	default:
		return nil
	}
}

// errorBody is the shape of gateway error responses. detail is a string for
// most errors and a list of objects for request validation failures.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	if len(eb.Detail) > 0 && string(eb.Detail) != "null" {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			var buf bytes.Buffer
			if json.Compact(&buf, eb.Detail) == nil {
				apiErr.Detail = buf.String()
			}
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = eb.Message
	}
	return apiErr
}

// do performs one API call. in is JSON-encoded when non-nil; out is decoded
// from a 2xx body when non-nil. The returned int is the HTTP status, 0 when
// no response was received.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	apiKey, err := c.creds.Get()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if apiKey == "" {
		return 0, fmt.Errorf("%s: %w", op, pferrors.ErrMissingCredential)
	}

	ctx, span := c.tracer.StartRequest(ctx, op, method, path)
	status, err := c.send(ctx, op, method, path, apiKey, in, out)
	c.tracer.EndRequest(span, status, err)
	return status, err
}

func (c *Client) send(ctx context.Context, op, method, path, apiKey string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set(HeaderContentType, contentTypeJSON)
	req.Header.Set(HeaderAPIKey, apiKey)
	req.Header.Set(HeaderUserAgent, buildinfo.UserAgent())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return 0, fmt.Errorf("%s: %w: %v", op, pferrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s: %w: reading response: %v", op, pferrors.ErrTransient, err)
	}

	c.logger.Debug("api request",
		logging.F("op", op),
		logging.F("method", method),
		logging.F("path", path),
		logging.F("status", resp.StatusCode),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%s: %w", op, newAPIError(resp.StatusCode, data))
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func requireID(op string, id transcript.MeetingID) error {
	if id.Platform == "" || id.NativeMeetingID == "" {
		return fmt.Errorf("%s: %w", op, pferrors.ErrInvalidMeetingID)
	}
	return nil
}
