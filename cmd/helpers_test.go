package cmd

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vexa-cli/client"
	"github.com/otherjamesbrown/vexa-cli/config"
	"github.com/otherjamesbrown/vexa-cli/credentials"
	"github.com/otherjamesbrown/vexa-cli/pkg/archive"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/events"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

const testAPIKey = "vx-test-key-1234567890"

var testNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

// testEnv wires commands to a mock gateway, a temp credential store and an
// in-memory archive.
type testEnv struct {
	cfg     *config.CLIConfig
	store   *credentials.Store
	svc     client.Service
	archive *fakeArchive
	secret  string
	deps    *CommandDeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(credentials.ConfigDirEnv, dir)
	t.Setenv(credentials.APIKeyEnv, "")

	store, err := credentials.NewStoreAt(dir, credentials.NewPassphraseKeyProvider("test-passphrase", []byte("0123456789abcdef")))
	if err != nil {
		t.Fatalf("NewStoreAt() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.MockMode = true
	cfg.Timeout = 5 * time.Second
	cfg.PollInterval = 10 * time.Millisecond
	cfg.HighlightDuration = 50 * time.Millisecond

	env := &testEnv{
		cfg:     cfg,
		store:   store,
		svc:     client.NewMock(&client.MockOptions{Now: func() time.Time { return testNow }, Rand: rand.New(rand.NewSource(1))}),
		archive: newFakeArchive(),
	}
	env.deps = &CommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) { return env.cfg, nil },
		NewCredentials: func(cfg *config.CLIConfig) (credentials.Provider, error) {
			return credentials.NewStoreProvider(env.store, cfg.APIURL), nil
		},
		OpenStore: func() (*credentials.Store, error) { return env.store, nil },
		NewService: func(*config.CLIConfig, credentials.Provider, logging.Logger) (client.Service, error) {
			return env.svc, nil
		},
		NewLogger: func(*config.CLIConfig) logging.Logger { return logging.NewNopLogger() },
		OpenArchive: func(context.Context, *config.CLIConfig) (ArchiveStore, func(), error) {
			return env.archive, func() {}, nil
		},
		NewPublisher: func(context.Context, *config.CLIConfig, logging.Logger) (*events.Publisher, error) {
			return nil, pferrors.ErrTransient
		},
		ReadSecret: func(string) (string, error) { return env.secret, nil },
		Now:        func() time.Time { return testNow },
	}
	return env
}

// run executes cmd with args and returns everything written to stdout and stderr.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// failingService fails every BotStatus call with err.
type failingService struct {
	client.Service
	err error
}

func (f *failingService) BotStatus(context.Context) (*client.BotStatus, error) {
	return nil, f.err
}

type fakeArchive struct {
	mu       sync.Mutex
	sessions map[transcript.MeetingID]*transcript.Session
	entries  map[transcript.MeetingID]archive.Entry
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		sessions: make(map[transcript.MeetingID]*transcript.Session),
		entries:  make(map[transcript.MeetingID]archive.Entry),
	}
}

func (a *fakeArchive) Save(_ context.Context, sess *transcript.Session, title string) (*archive.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if title == "" {
		title = transcript.DefaultTitle(sess.MeetingID.NativeMeetingID)
	}
	e := archive.Entry{
		MeetingID:    sess.MeetingID,
		Title:        title,
		Language:     sess.Language,
		Status:       sess.Status,
		SegmentCount: len(sess.Segments),
		ArchivedAt:   testNow,
	}
	cp := *sess
	a.sessions[sess.MeetingID] = &cp
	a.entries[sess.MeetingID] = e
	return &e, nil
}

func (a *fakeArchive) List(context.Context) ([]archive.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]archive.Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeetingID.String() < out[j].MeetingID.String() })
	return out, nil
}

func (a *fakeArchive) Load(_ context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[id]
	if !ok {
		return nil, pferrors.ErrNotFound
	}
	return sess, nil
}

func (a *fakeArchive) Delete(_ context.Context, id transcript.MeetingID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[id]; !ok {
		return pferrors.ErrNotFound
	}
	delete(a.sessions, id)
	delete(a.entries, id)
	return nil
}
