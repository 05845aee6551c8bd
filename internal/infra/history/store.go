// Package history persists the log of played tracks.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/vibebox/internal/domain/track"
)

const schema = `
CREATE TABLE IF NOT EXISTS track_history (
	id           TEXT NOT NULL,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	tags         TEXT NOT NULL,
	topic        TEXT NOT NULL,
	context_tag  TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	source       TEXT NOT NULL,
	generated_at TIMESTAMP NOT NULL,
	played_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_track_history_played_at ON track_history (played_at DESC);
`

// Store writes played tracks to a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// applies the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create history directory path=%v", dir)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history database path=%v", dbPath)
	}
	// modernc.org/sqlite serializes writes itself, a single connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to apply history schema")
	}

	zlog.Debug().Msgf("history store opened. path=%v", dbPath)
	return &Store{db: db}, nil
}

// Append records a track that started playing.
func (s *Store) Append(ctx context.Context, tk *track.Track) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO track_history
		 (id, url, title, tags, topic, context_tag, duration_ms, source, generated_at, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tk.ID, tk.URL, tk.Title, tk.Tags, tk.Topic, tk.ContextTag,
		tk.Duration.Milliseconds(), string(tk.Source), tk.GeneratedAt.UTC(), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to append track history id=%v", tk.ID)
	}
	return nil
}

// Entry is one row of the played-track log.
type Entry struct {
	Track    track.Track `json:"track"`
	PlayedAt time.Time   `json:"played_at"`
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, tags, topic, context_tag, duration_ms, source, generated_at, played_at
		 FROM track_history ORDER BY played_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query track history")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMs int64
		var source string
		if err := rows.Scan(&e.Track.ID, &e.Track.URL, &e.Track.Title, &e.Track.Tags,
			&e.Track.Topic, &e.Track.ContextTag, &durationMs, &source,
			&e.Track.GeneratedAt, &e.PlayedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan track history row")
		}
		e.Track.Duration = time.Duration(durationMs) * time.Millisecond
		e.Track.Source = track.Source(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read track history rows")
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
