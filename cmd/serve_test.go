package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

func TestServe_AttachesMeetingAndShutsDown(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.deps.withDefaults().connect()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	done := make(chan error, 1)
	id := transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "abc-defg-hij"}
	go func() {
		done <- runServe(ctx, &out, env.deps, s, ln, id, &serveOptions{historical: true})
	}()

	var view struct {
		MeetingID transcript.MeetingID `json:"meeting_id"`
		State     string               `json:"state"`
		Segments  []transcript.Segment `json:"segments"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/view")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if json.NewDecoder(resp.Body).Decode(&view) != nil {
			return false
		}
		return view.State == "fetched_once"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, id, view.MeetingID)
	assert.Len(t, view.Segments, 5)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "vexa_poller_")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_InvalidLanguage(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.deps.withDefaults().connect()
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = runServe(context.Background(), io.Discard, env.deps, s, ln, transcript.MeetingID{}, &serveOptions{language: "not a language"})
	assert.Error(t, err)
}
