//go:build integration

package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// TestStore_RoundTrip requires a disposable database at VEXA_TEST_DATABASE_URL.
func TestStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("VEXA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VEXA_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.DSN = dsn
	pool, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, again.Applied, "second run applies nothing")

	store := NewStore(pool)
	id := transcript.MeetingID{Platform: "google_meet", NativeMeetingID: "int-test-xyz", RecordID: "77"}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &transcript.Session{
		MeetingID: id,
		Status:    transcript.StatusStopped,
		Language:  "en",
		Segments: []transcript.Segment{
			transcript.NewSegment("2026-03-01T09:00:00Z", "first words", "Ana", "en", now),
			transcript.NewSegment("2026-03-01T09:00:04Z", "second words", "Ben", "en", now),
		},
		LastUpdated: now,
	}
	t.Cleanup(func() { _ = store.Delete(context.Background(), id) })

	entry, err := store.Save(ctx, sess, "Integration")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.SegmentCount)

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sess.Segments, loaded.Segments)
	assert.Equal(t, transcript.StatusStopped, loaded.Status)

	sess.Segments = sess.Segments[:1]
	second, err := store.Save(ctx, sess, "Integration")
	require.NoError(t, err)
	assert.NotEqual(t, entry.RunID, second.RunID)

	loaded, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loaded.Segments, 1, "save replaces segments")

	entries, err := store.List(ctx)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.MeetingID == id {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, pferrors.ErrNotFound)
}
