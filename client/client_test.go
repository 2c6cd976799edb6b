package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vexa-cli/credentials"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

var (
	testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	testID  = transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}
)

type recorded struct {
	method string
	path   string
	apiKey string
	ctype  string
	body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.apiKey = r.Header.Get(HeaderAPIKey)
		rec.ctype = r.Header.Get(HeaderContentType)
		rec.body, _ = io.ReadAll(r.Body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(credentials.NewStaticProvider("vx-test-key"), &Options{
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
		Now:     func() time.Time { return testNow },
	})
	return c, rec
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, DefaultBaseURL, opts.BaseURL)
	assert.Equal(t, DefaultTimeout, opts.Timeout)

	c := New(credentials.NewStaticProvider("k"), nil)
	assert.Equal(t, "https://gateway.dev.vexa.ai", c.BaseURL())
}

func TestGetTranscript_TopLevelSegments(t *testing.T) {
	c, rec := newTestClient(t, respond(http.StatusOK, `{
		"language": "fr",
		"status": "active",
		"segments": [
			{"text": "bonjour tout le monde", "speaker": "Alice", "absolute_start_time": "2026-03-01T09:59:00.000Z", "timestamp": "ignored"},
			{"text": "salut", "timestamp": "2026-03-01T09:59:05Z", "language": "de"},
			{"text": "no time at all"}
		]
	}`))

	sess, err := c.GetTranscript(context.Background(), testID)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/transcripts/google_meet/abc-defg-hij", rec.path)
	assert.Equal(t, "vx-test-key", rec.apiKey)
	assert.Equal(t, "application/json", rec.ctype)

	require.Len(t, sess.Segments, 3)
	assert.Equal(t, "2026-03-01T09:59:00.000Z-bonjour-tout-le-mond", sess.Segments[0].ID)
	assert.Equal(t, "Alice", sess.Segments[0].Speaker)
	assert.Equal(t, transcript.UnknownSpeaker, sess.Segments[1].Speaker)
	assert.Equal(t, testNow, sess.Segments[2].Timestamp)
	assert.Equal(t, "de", sess.Language, "newest segment with a language wins")
	assert.Equal(t, transcript.StatusActive, sess.Status)
	assert.Equal(t, testID, sess.MeetingID)
}

func TestGetTranscript_NestedSegments(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, `{"transcript": {"segments": [{"text": "hi", "timestamp": "2026-03-01T09:00:00Z"}]}}`))

	sess, err := c.GetTranscript(context.Background(), testID)
	require.NoError(t, err)
	require.Len(t, sess.Segments, 1)
	assert.Equal(t, transcript.LanguageAuto, sess.Language)
	assert.Equal(t, transcript.StatusActive, sess.Status, "missing status means active")
}

func TestGetTranscript_MissingSegments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no keys", `{"status": "active"}`},
		{"null segments", `{"segments": null}`},
		{"transcript without segments", `{"transcript": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respond(http.StatusOK, tt.body))
			_, err := c.GetTranscript(context.Background(), testID)
			require.ErrorIs(t, err, pferrors.ErrMissingSegments)
			assert.Equal(t, pferrors.KindMalformed, pferrors.Classify(err))
		})
	}
}

func TestGetTranscript_EmptyListIsValid(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, `{"segments": [], "status": "stopped"}`))

	sess, err := c.GetTranscript(context.Background(), testID)
	require.NoError(t, err)
	assert.Empty(t, sess.Segments)
	assert.True(t, sess.Status.IsTerminal())
}

func TestGetMeetingTranscript_ForcesStopped(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, `{"status": "active", "segments": [{"text": "x", "timestamp": "2026-03-01T09:00:00Z"}]}`))

	sess, err := c.GetMeetingTranscript(context.Background(), transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij", RecordID: "42"})
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusStopped, sess.Status)
	assert.Equal(t, "en", sess.Language)
}

func TestStartBot(t *testing.T) {
	tests := []struct {
		name     string
		language string
		wantLang any
	}{
		{"auto sends null", "auto", nil},
		{"explicit language", "es", "es"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, respond(http.StatusCreated, `{"id": 7}`))

			id, err := c.StartBot(context.Background(), StartRequest{
				Platform: "google_meet", NativeMeetingID: "abc-defg-hij", BotName: "Vexa", Language: tt.language,
			})
			require.NoError(t, err)
			assert.Equal(t, testID, id)
			assert.Equal(t, http.MethodPost, rec.method)
			assert.Equal(t, "/bots", rec.path)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.body, &body))
			assert.Equal(t, "google_meet", body["platform"])
			assert.Equal(t, "abc-defg-hij", body["native_meeting_id"])
			assert.Equal(t, "Vexa", body["bot_name"])
			require.Contains(t, body, "language")
			assert.Equal(t, tt.wantLang, body["language"])
		})
	}
}

func TestStartBot_ExistingBot(t *testing.T) {
	t.Run("detail from body", func(t *testing.T) {
		c, _ := newTestClient(t, respond(http.StatusConflict, `{"detail": "Bot already active in meeting"}`))
		_, err := c.StartBot(context.Background(), StartRequest{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"})

		require.ErrorIs(t, err, pferrors.ErrExistingBot)
		assert.ErrorIs(t, err, pferrors.ErrAlreadyExists)
		assert.Contains(t, err.Error(), "Bot already active in meeting")

		d := pferrors.ToDisplay(err)
		assert.Equal(t, pferrors.KindConflict, d.Kind)
		assert.Equal(t, http.StatusConflict, d.Status)
	})

	t.Run("default detail", func(t *testing.T) {
		c, _ := newTestClient(t, respond(http.StatusConflict, `{}`))
		_, err := c.StartBot(context.Background(), StartRequest{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"})
		require.ErrorIs(t, err, pferrors.ErrExistingBot)
		assert.Contains(t, err.Error(), "A bot is already running for this meeting")
	})
}

func TestStopBot(t *testing.T) {
	c, rec := newTestClient(t, respond(http.StatusOK, `{}`))

	require.NoError(t, c.StopBot(context.Background(), transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij", RecordID: "9"}))
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/bots/google_meet/abc-defg-hij", rec.path)
}

func TestUpdateLanguage(t *testing.T) {
	c, rec := newTestClient(t, respond(http.StatusAccepted, ``))

	require.NoError(t, c.UpdateLanguage(context.Background(), testID, "auto"))
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/bots/google_meet/abc-defg-hij/config", rec.path)
	assert.JSONEq(t, `{"language": null}`, string(rec.body))

	require.NoError(t, c.UpdateLanguage(context.Background(), testID, "fr"))
	assert.JSONEq(t, `{"language": "fr"}`, string(rec.body))
}

func TestListMeetings(t *testing.T) {
	c, rec := newTestClient(t, respond(http.StatusOK, `{"meetings": [
		{"id": 1, "platform": "google_meet", "native_meeting_id": "old-mtg-aaa", "status": "completed", "start_time": "2026-02-01T10:00:00Z", "end_time": "2026-02-01T11:00:00Z"},
		{"id": "2", "platform": "google_meet", "native_meeting_id": "new-mtg-bbb", "start_time": "2026-02-20T10:00:00Z"},
		{"id": 3, "platform": "google_meet", "native_meeting_id": "no-start-ccc", "status": "active"}
	]}`))

	meetings, err := c.ListMeetings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/meetings", rec.path)
	require.Len(t, meetings, 3)

	assert.Equal(t, "google_meet/no-start-ccc/3", meetings[0].ID.String(), "missing start time falls back to now")
	assert.Equal(t, testNow, meetings[0].StartTime)
	assert.Equal(t, transcript.StatusActive, meetings[0].Status)

	assert.Equal(t, "google_meet/new-mtg-bbb/2", meetings[1].ID.String())
	assert.Equal(t, transcript.StatusStopped, meetings[1].Status, "missing status means stopped")
	assert.Equal(t, "Meeting new-mtg-bbb", meetings[1].Title)
	assert.Nil(t, meetings[1].EndTime)

	require.NotNil(t, meetings[2].EndTime)
	assert.Equal(t, transcript.Status("completed"), meetings[2].Status)
}

func TestBotStatus(t *testing.T) {
	c, rec := newTestClient(t, respond(http.StatusOK, `{"running_bots": [{"container_id": "a"}, {"container_id": "b"}]}`))

	status, err := c.BotStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/bots/status", rec.path)
	assert.Equal(t, 2, status.Running())
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		kind     pferrors.Kind
		message  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail": "Invalid API key"}`, pferrors.ErrUnauthorized, pferrors.KindUnauthorized, "API error: 401 Unauthorized - Invalid API key"},
		{"forbidden", http.StatusForbidden, `{"message": "nope"}`, pferrors.ErrForbidden, pferrors.KindUnauthorized, "API error: 403 Forbidden - nope"},
		{"not found", http.StatusNotFound, `{"detail": "Meeting not found"}`, pferrors.ErrNotFound, pferrors.KindNotFound, "404 Not Found - Meeting not found"},
		{"server error", http.StatusBadGateway, `not json`, pferrors.ErrTransient, pferrors.KindTransient, "API error: 502 Bad Gateway - Unknown error"},
		{"rate limited", http.StatusTooManyRequests, `{}`, pferrors.ErrTransient, pferrors.KindTransient, "429 Too Many Requests"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}]}`, pferrors.ErrValidation, pferrors.KindValidation, `[{"msg":"field required"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respond(tt.status, tt.body))
			_, err := c.GetTranscript(context.Background(), testID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.message)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.HTTPStatus())
			assert.Equal(t, tt.kind, pferrors.Classify(err))
		})
	}
}

func TestMissingCredentialBeforeIO(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(credentials.NewStaticProvider(""), &Options{BaseURL: srv.URL})
	_, err := c.GetTranscript(context.Background(), testID)

	require.ErrorIs(t, err, pferrors.ErrMissingCredential)
	assert.Equal(t, pferrors.KindConfiguration, pferrors.Classify(err))
	assert.Zero(t, calls.Load(), "no request may be sent without a key")
}

func TestInvalidMeetingID(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, `{}`))
	_, err := c.GetTranscript(context.Background(), transcript.MeetingID{Platform: "google_meet"})
	assert.ErrorIs(t, err, pferrors.ErrInvalidMeetingID)
	assert.ErrorIs(t, c.StopBot(context.Background(), transcript.MeetingID{}), pferrors.ErrValidation)
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(credentials.NewStaticProvider("k"), &Options{BaseURL: url, Timeout: time.Second})
	_, err := c.GetTranscript(context.Background(), testID)
	require.ErrorIs(t, err, pferrors.ErrTransient)
	assert.True(t, pferrors.ToDisplay(err).Retryable)
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetTranscript(ctx, testID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pferrors.KindCancelled, pferrors.Classify(err))
}
