package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Entry is one archived meeting.
type Entry struct {
	RunID        uuid.UUID            `json:"run_id" yaml:"run_id"`
	MeetingID    transcript.MeetingID `json:"meeting_id" yaml:"meeting_id"`
	Title        string               `json:"title" yaml:"title"`
	Language     string               `json:"language" yaml:"language"`
	Status       transcript.Status    `json:"status" yaml:"status"`
	SegmentCount int                  `json:"segment_count" yaml:"segment_count"`
	ArchivedAt   time.Time            `json:"archived_at" yaml:"archived_at"`
}

// Store reads and writes archived transcripts.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore wraps db. Call Migrate once before first use.
func NewStore(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save replaces the archived copy of sess. Each save gets a fresh run id.
func (s *Store) Save(ctx context.Context, sess *transcript.Session, title string) (*Entry, error) {
	if sess == nil || sess.MeetingID.IsZero() {
		return nil, fmt.Errorf("archive save: %w", pferrors.ErrInvalidMeetingID)
	}
	id := sess.MeetingID
	key := id.String()
	if title == "" {
		title = transcript.DefaultTitle(id.NativeMeetingID)
	}
	entry := &Entry{
		RunID:        uuid.New(),
		MeetingID:    id,
		Title:        title,
		Language:     sess.Language,
		Status:       sess.Status,
		SegmentCount: len(sess.Segments),
		ArchivedAt:   s.now().UTC(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive save: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updated *time.Time
	if !sess.LastUpdated.IsZero() {
		t := sess.LastUpdated.UTC()
		updated = &t
	}

	_, err = tx.Exec(ctx, `INSERT INTO archived_meetings
	(meeting_key, platform, native_meeting_id, record_id, title, language, status, segment_count, run_id, source_updated_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (meeting_key) DO UPDATE SET
	title = EXCLUDED.title,
	language = EXCLUDED.language,
	status = EXCLUDED.status,
	segment_count = EXCLUDED.segment_count,
	run_id = EXCLUDED.run_id,
	source_updated_at = EXCLUDED.source_updated_at,
	archived_at = EXCLUDED.archived_at`,
		key, id.Platform, id.NativeMeetingID, id.RecordID, entry.Title, entry.Language,
		string(entry.Status), entry.SegmentCount, entry.RunID, updated, entry.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("archive save: upsert meeting: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM archived_segments WHERE meeting_key = $1`, key); err != nil {
		return nil, fmt.Errorf("archive save: clear segments: %w", err)
	}

	if len(sess.Segments) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"archived_segments"},
			[]string{"meeting_key", "position", "segment_id", "speaker", "language", "spoken_at", "body"},
			pgx.CopyFromSlice(len(sess.Segments), func(i int) ([]any, error) {
				seg := sess.Segments[i]
				return []any{key, i, seg.ID, seg.Speaker, seg.Language, seg.Timestamp.UTC(), seg.Text}, nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("archive save: copy segments: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("archive save: commit: %w", err)
	}
	return entry, nil
}

// List returns archived meetings, most recently archived first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT run_id, platform, native_meeting_id, record_id, title, language, status, segment_count, archived_at
FROM archived_meetings ORDER BY archived_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.RunID, &e.MeetingID.Platform, &e.MeetingID.NativeMeetingID, &e.MeetingID.RecordID,
			&e.Title, &e.Language, &status, &e.SegmentCount, &e.ArchivedAt); err != nil {
			return nil, fmt.Errorf("archive list: scan: %w", err)
		}
		e.Status = transcript.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	return entries, nil
}

// Load returns the archived transcript for id. A missing meeting yields an
// error wrapping pferrors.ErrNotFound.
func (s *Store) Load(ctx context.Context, id transcript.MeetingID) (*transcript.Session, error) {
	key := id.String()
	sess := &transcript.Session{MeetingID: id}

	var status string
	var updated *time.Time
	err := s.db.QueryRow(ctx, `SELECT language, status, source_updated_at FROM archived_meetings WHERE meeting_key = $1`, key).
		Scan(&sess.Language, &status, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("archive load %s: %w", key, pferrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("archive load %s: %w", key, err)
	}
	sess.Status = transcript.Status(status)
	if updated != nil {
		sess.LastUpdated = *updated
	}

	rows, err := s.db.Query(ctx, `SELECT segment_id, speaker, language, spoken_at, body
FROM archived_segments WHERE meeting_key = $1 ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("archive load %s: segments: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.ID, &seg.Speaker, &seg.Language, &seg.Timestamp, &seg.Text); err != nil {
			return nil, fmt.Errorf("archive load %s: scan: %w", key, err)
		}
		seg.Timestamp = seg.Timestamp.UTC()
		sess.Segments = append(sess.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive load %s: %w", key, err)
	}
	return sess, nil
}

// Delete removes an archived meeting and its segments.
func (s *Store) Delete(ctx context.Context, id transcript.MeetingID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM archived_meetings WHERE meeting_key = $1`, id.String())
	if err != nil {
		return fmt.Errorf("archive delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive delete %s: %w", id, pferrors.ErrNotFound)
	}
	return nil
}
