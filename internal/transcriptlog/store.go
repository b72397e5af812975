// Package transcriptlog persists finished recognitions to PostgreSQL so an
// activation window can be replayed or audited after the fact. Each pipeline
// run gets a random run ID; every final transcript dispatched while that run
// is alive becomes one row in the transcripts table.
package transcriptlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    run_id      TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    confidence  REAL         NOT NULL DEFAULT 0,
    partial     BOOLEAN      NOT NULL DEFAULT FALSE,
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_run_id
    ON transcripts (run_id);

CREATE INDEX IF NOT EXISTS idx_transcripts_recorded_at
    ON transcripts (recorded_at);
`

// Entry is one persisted recognition result.
type Entry struct {
	RunID      string
	Text       string
	Confidence float64
	Partial    bool
	RecordedAt time.Time
}

// Store is a PostgreSQL-backed transcript log. All methods are safe for
// concurrent use; the zero value is not usable, construct via [NewStore].
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the transcripts table
// exists. Call [Store.Close] when done.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript log: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript log: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript log: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append writes one entry. A zero RecordedAt defaults to now() on the server.
func (s *Store) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO transcripts (run_id, text, confidence, partial, recorded_at)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5::timestamptz, 'epoch'), now()))`

	at := e.RecordedAt
	if at.IsZero() {
		at = time.Unix(0, 0)
	}
	_, err := s.pool.Exec(ctx, q, e.RunID, e.Text, e.Confidence, e.Partial, at)
	if err != nil {
		return fmt.Errorf("transcript log: append: %w", err)
	}
	return nil
}

// Recent returns the entries recorded for runID within the trailing window,
// ordered chronologically (oldest first).
func (s *Store) Recent(ctx context.Context, runID string, window time.Duration) ([]Entry, error) {
	const q = `
		SELECT run_id, text, confidence, partial, recorded_at
		FROM   transcripts
		WHERE  run_id = $1
		  AND  recorded_at >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY recorded_at`

	rows, err := s.pool.Query(ctx, q, runID, window.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("transcript log: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.RunID, &e.Text, &e.Confidence, &e.Partial, &e.RecordedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript log: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
