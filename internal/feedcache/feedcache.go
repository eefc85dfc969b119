// Package feedcache persists yield-feed snapshots in sqlite so repeated
// discovery calls within the TTL do not refetch the whole pool list.
package feedcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

type Snapshot struct {
	Hit   bool
	Body  []byte
	Age   time.Duration
	Stale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS feed_snapshots (feed TEXT PRIMARY KEY, body BLOB NOT NULL, fetched_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath)}
	// Drop fully expired snapshots so the file does not grow unbounded.
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	nowUnix := time.Now().UTC().Unix()
	if _, err := s.db.Exec("DELETE FROM feed_snapshots WHERE fetched_at + ttl_seconds < ?", nowUnix); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Get returns the cached snapshot for a feed. A snapshot past its TTL is
// still returned with Stale set so callers can decide whether to serve it.
func (s *Store) Get(feed string) (Snapshot, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, nil
	}
	var body []byte
	var fetchedUnix, ttlSeconds int64
	err := s.db.QueryRow("SELECT body, fetched_at, ttl_seconds FROM feed_snapshots WHERE feed = ?", feed).Scan(&body, &fetchedUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("cache read: %w", err)
	}
	age := time.Since(time.Unix(fetchedUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	return Snapshot{
		Hit:   true,
		Body:  body,
		Age:   age,
		Stale: age > time.Duration(ttlSeconds)*time.Second,
	}, nil
}

func (s *Store) Set(feed string, body []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO feed_snapshots (feed, body, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feed) DO UPDATE SET
			body=excluded.body,
			fetched_at=excluded.fetched_at,
			ttl_seconds=excluded.ttl_seconds
	`, feed, body, time.Now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
