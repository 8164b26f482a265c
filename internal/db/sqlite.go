package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perchbot/perch/internal/db/migrations"
	"github.com/perchbot/perch/internal/logging"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// NewSQLite opens (creating if needed) the SQLite database at path,
// runs migrations, and returns a Store.
func NewSQLite(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writers well; serialize all
	// access through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Infof("[DB] SQLite initialized at %s", path)
	return &Store{db: db}, nil
}

// Store wraps the database connection and exposes chat history and
// usage accounting queries.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open connection. The schema must exist.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection for sharing with other components.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
