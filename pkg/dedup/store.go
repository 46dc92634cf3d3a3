package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	errs "reposter/pkg/errors"
	"reposter/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS published (
    source_id      TEXT PRIMARY KEY,
    remote_post_id TEXT NOT NULL,
    published_at   TEXT NOT NULL
);
`

// Store is the persistent set of already-published source item identifiers,
// backed by SQLite. It additionally hands out in-process reservations so
// concurrent workers never both publish the same source id.
type Store struct {
	db   *sql.DB
	path string

	mu       sync.Mutex
	reserved map[string]struct{}
}

// Open initializes or connects to the dedup database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Newf(errs.ErrorTypeStoreUnavailable, "create store directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStoreUnavailable, "open sqlite db: %v", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, errs.Newf(errs.ErrorTypeStoreUnavailable, "apply pragma %q: %v", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errs.Newf(errs.ErrorTypeStoreUnavailable, "apply schema: %v", err)
	}

	return &Store{
		db:       db,
		path:     path,
		reserved: make(map[string]struct{}),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Has reports whether sourceID was already published.
func (s *Store) Has(ctx context.Context, sourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM published WHERE source_id = ?`, sourceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Newf(errs.ErrorTypeStoreUnavailable, "query published: %v", err)
	}
	return true, nil
}

// Record commits the durable dedup record for sourceID. Returns a
// DuplicateKey error when the id was already recorded, so the caller knows
// whether this write or an earlier one won.
func (s *Store) Record(ctx context.Context, sourceID, remotePostID string, publishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO published (source_id, remote_post_id, published_at) VALUES (?, ?, ?)`,
		sourceID, remotePostID, publishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errs.Newf(errs.ErrorTypeStoreUnavailable, "insert published: %v", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Newf(errs.ErrorTypeStoreUnavailable, "rows affected: %v", err)
	}
	if affected == 0 {
		return errs.Newf(errs.ErrorTypeDuplicateKey, "source id %s already recorded", sourceID)
	}
	return nil
}

// Get returns the dedup record for sourceID, or nil when none exists.
func (s *Store) Get(ctx context.Context, sourceID string) (*models.DedupRecord, error) {
	var rec models.DedupRecord
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, remote_post_id, published_at FROM published WHERE source_id = ?`,
		sourceID).Scan(&rec.SourceID, &rec.RemotePostID, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStoreUnavailable, "query published: %v", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("parse published_at %q: %w", at, err)
	}
	rec.PublishedAt = parsed
	return &rec, nil
}

// Count returns the number of committed dedup records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM published`).Scan(&n); err != nil {
		return 0, errs.Newf(errs.ErrorTypeStoreUnavailable, "count published: %v", err)
	}
	return n, nil
}

// Reserve atomically claims sourceID for the calling worker. Exactly one of
// two concurrent callers wins; the loser must treat the item as a duplicate
// race and stop before any network work. The reservation is an in-process
// marker separate from the committed record.
func (s *Store) Reserve(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.reserved[sourceID]; taken {
		return false
	}
	s.reserved[sourceID] = struct{}{}
	return true
}

// Release revokes a reservation. Only valid when no publish attempt reached
// the server; a released id may be claimed again by a later worker.
func (s *Store) Release(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, sourceID)
}
