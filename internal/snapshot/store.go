package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"adowatch/internal/config"
)

// Store persists per-key snapshot records backed by SQLite.
//
// Keys are namespaced by a hash of the resolved configuration path so that
// distinct configurations never share baselines, while reruns against the
// same configuration reuse prior snapshots. Absence of a record is a normal
// result: it means no completed poll cycle has touched that key yet.
type Store struct {
	db        *sql.DB
	path      string
	namespace string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    record     TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (namespace, key)
);`

// Open initializes or connects to the snapshot database for the given
// configuration. configPath must be the resolved path of the active config
// file; it determines the key namespace.
func Open(cfg *config.Config, configPath string) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("snapshot store requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "snapshots.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:        db,
		path:      dbPath,
		namespace: namespaceFor(configPath),
		locks:     map[string]*sync.Mutex{},
	}, nil
}

func namespaceFor(configPath string) string {
	resolved := strings.TrimSpace(configPath)
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	sum := sha256.Sum256([]byte(resolved))
	return hex.EncodeToString(sum[:])
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the snapshot database file.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// keyLock returns the process-lifetime mutex for a key, creating it lazily.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = new(sync.Mutex)
		s.locks[key] = lock
	}
	return lock
}

// Read loads the record stored under key into out, which must be a pointer.
// The second return value is false when no record exists for the key; that
// is not an error. When lock is true the per-key mutex is held for the
// duration of the read so concurrent workers touching the same key serialize.
func (s *Store) Read(ctx context.Context, key string, out any, lock bool) (bool, error) {
	if lock {
		kl := s.keyLock(key)
		kl.Lock()
		defer kl.Unlock()
	}

	var record string
	err := s.queryRowWithRetry(ctx,
		`SELECT record FROM snapshots WHERE namespace = ? AND key = ?`,
		&record, s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot %q: %w", key, err)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(record), out); err != nil {
			return false, fmt.Errorf("decode snapshot %q: %w", key, err)
		}
	}
	return true, nil
}

// Write stores record under key, replacing any prior value. When lock is
// true the per-key mutex is held for the duration of the write.
func (s *Store) Write(ctx context.Context, key string, record any, lock bool) error {
	if lock {
		kl := s.keyLock(key)
		kl.Lock()
		defer kl.Unlock()
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", key, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = s.execWithRetry(ctx,
		`INSERT INTO snapshots (namespace, key, record, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (namespace, key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		s.namespace, key, string(encoded), now)
	if err != nil {
		return fmt.Errorf("write snapshot %q: %w", key, err)
	}
	return nil
}
