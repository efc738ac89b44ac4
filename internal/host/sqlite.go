// Package host provides the three native settings backends the store can
// resolve to: a typed SQLite store, a byte-valued bbolt store, and a
// string-only dotenv file. Each exposes its own natural API; the
// settings package adapts them to one contract.
package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite is the primary synchronized settings store. Values keep their
// primitive type across the round trip via a kind column.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	commits []func(oldValues, newValues map[string]any)
}

// OpenSQLite opens (or creates) the settings database in dataDir. Pass
// ":memory:" as dataDir for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLite, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "settings.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Fetch returns the stored values for keys. Never-written keys are
// simply absent from the result.
func (s *SQLite) Fetch(ctx context.Context, keys []string) (map[string]any, error) {
	items := make(map[string]any, len(keys))
	for _, key := range keys {
		var kind, text string
		err := s.db.QueryRowContext(ctx,
			"SELECT kind, value FROM settings WHERE key = ?", key).Scan(&kind, &text)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying %q: %w", key, err)
		}
		v, err := decodeKind(kind, text)
		if err != nil {
			return nil, fmt.Errorf("stored value for %q: %w", key, err)
		}
		items[key] = v
	}
	return items, nil
}

// Store upserts all items in one transaction and notifies commit hooks
// afterwards.
func (s *SQLite) Store(ctx context.Context, items map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	oldValues := make(map[string]any)
	newValues := make(map[string]any, len(items))
	for key, v := range items {
		var kind, text string
		err := tx.QueryRowContext(ctx,
			"SELECT kind, value FROM settings WHERE key = ?", key).Scan(&kind, &text)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First write for this key.
		case err != nil:
			return fmt.Errorf("reading prior value of %q: %w", key, err)
		default:
			old, decErr := decodeKind(kind, text)
			if decErr != nil {
				return fmt.Errorf("prior value of %q: %w", key, decErr)
			}
			oldValues[key] = old
		}

		k, t, err := encodeKind(v)
		if err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, kind, value) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
			key, k, t); err != nil {
			return fmt.Errorf("writing %q: %w", key, err)
		}
		newValues[key] = v
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	s.notify(oldValues, newValues)
	return nil
}

// OnCommit registers fn to run after every write committed through this
// process. Changes from other processes are not observed here; they
// propagate through the broadcast layer.
func (s *SQLite) OnCommit(fn func(oldValues, newValues map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, fn)
}

func (s *SQLite) notify(oldValues, newValues map[string]any) {
	s.mu.Lock()
	commits := slices.Clone(s.commits)
	s.mu.Unlock()
	for _, fn := range commits {
		fn(oldValues, newValues)
	}
}

func encodeKind(v any) (kind, text string, err error) {
	switch val := v.(type) {
	case string:
		return "s", val, nil
	case int:
		return "i", strconv.Itoa(val), nil
	case int64:
		return "i", strconv.FormatInt(val, 10), nil
	case float64:
		return "f", strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", "", fmt.Errorf("unsupported type %T (want string or number)", v)
	}
}

func decodeKind(kind, text string) (any, error) {
	switch kind {
	case "s":
		return text, nil
	case "i":
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("malformed int %q: %w", text, err)
		}
		return n, nil
	case "f":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed float %q: %w", text, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}
