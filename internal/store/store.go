package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial journal schema
const currentSchemaVersion = 1

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// Store provides durable storage for evaluation journals.
// Uses SQLite with WAL mode so trace can read while eval writes.
type Store struct {
	db       *sql.DB
	readOnly bool
}

// Option configures Open.
type Option func(*config)

type config struct {
	busyTimeout time.Duration
	readOnly    bool
}

// WithBusyTimeout sets how long a statement waits for a lock held by
// another connection. Default 5s.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// ReadOnly rejects every write after the schema is in place. The trace
// command opens journals this way.
func ReadOnly() Option {
	return func(c *config) { c.readOnly = true }
}

// Open creates or opens a SQLite journal at path and brings its schema up
// to date. Safe to call repeatedly on the same file.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; an in-memory database
	// also exists only on its one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, cfg, path == memoryPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if cfg.readOnly {
		if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to make database read-only: %w", err)
		}
	}

	return &Store{db: db, readOnly: cfg.readOnly}, nil
}

// OpenMemory opens a journal that lives only as long as the store, for
// scenario runs that inspect their own trace.
func OpenMemory() (*Store, error) {
	return Open(memoryPath)
}

// ReadOnly reports whether the store rejects writes.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration. WAL does not apply to
// an in-memory database.
func applyPragmas(db *sql.DB, cfg config, memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. A database written by a newer version is rejected.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// pragma returns the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
