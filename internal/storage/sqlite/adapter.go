package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"analytics-sdk/internal/storage"
)

// Adapter is a storage.Backend on a single sqlite database file. All access
// goes through one connection, so every transaction is serialized.
type Adapter struct {
	db     *sql.DB
	config *Config
	clock  func() time.Time
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
		clock:  time.Now,
	}

	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Session records do not survive a restart.
	if err := adapter.purgeSession(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to purge session records: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			expiry INTEGER NOT NULL DEFAULT -1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS dispatches (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			payload BLOB NOT NULL,
			expiry INTEGER NOT NULL DEFAULT -1,
			timestamp INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_expiry ON dispatches(expiry)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

func (a *Adapter) purgeSession(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM kv_store WHERE expiry = ?`, int64(storage.Session)); err != nil {
		return err
	}
	_, err := a.db.ExecContext(ctx, `DELETE FROM dispatches WHERE expiry = ?`, int64(storage.Session))
	return err
}

// Store returns the key-value store for namespace.
func (a *Adapter) Store(namespace string) (storage.KeyValueStore, error) {
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	return &kvStore{adapter: a, namespace: namespace}, nil
}

// Queue returns the dispatch queue.
func (a *Adapter) Queue() (storage.QueueStore, error) {
	return &queueStore{adapter: a}, nil
}

type kvStore struct {
	adapter   *Adapter
	namespace string
}

func (s *kvStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiry int64
	err := s.adapter.db.QueryRowContext(ctx,
		`SELECT value, expiry FROM kv_store WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value, &expiry)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if storage.Expiry(expiry).IsExpired(s.adapter.clock()) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return value, true, nil
}

func (s *kvStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithExpiry(ctx, key, value, storage.Forever)
}

func (s *kvStore) SetWithExpiry(ctx context.Context, key string, value []byte, expiry storage.Expiry) error {
	_, err := s.adapter.db.ExecContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, expiry, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			expiry = excluded.expiry,
			updated_at = CURRENT_TIMESTAMP`,
		s.namespace, key, value, int64(expiry),
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Delete(ctx context.Context, key string) error {
	_, err := s.adapter.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE namespace = ? AND key = ?`, s.namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.adapter.db.QueryContext(ctx,
		`SELECT key FROM kv_store WHERE namespace = ? AND (expiry < 0 OR expiry >= ?) ORDER BY key`,
		s.namespace, s.adapter.clock().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *kvStore) Clear(ctx context.Context) error {
	_, err := s.adapter.db.ExecContext(ctx, `DELETE FROM kv_store WHERE namespace = ?`, s.namespace)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.namespace, err)
	}
	return nil
}
