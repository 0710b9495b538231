package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when the backing store cannot be opened, read or
// written.
var ErrUnavailable = errors.New("storage unavailable")

// Database is a string-keyed blob store on top of SQLite. Each key holds one
// serialized collection. It is safe for concurrent use because the underlying
// *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path,
// applies lightweight pragmas and ensures the blob table exists. Caller should
// Close() it when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", ErrUnavailable, err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db, err := New(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// New wraps an already opened connection. The blob table is created if needed
// and the statements used by Get and Set are prepared up front.
func New(conn *sql.DB, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("%w: create tables: %v", ErrUnavailable, err)
	}

	if err := db.prepareStatements(); err != nil {
		return nil, fmt.Errorf("%w: prepare statements: %v", ErrUnavailable, err)
	}

	return db, nil
}

// createTables is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	_, err := db.conn.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

func (db *Database) prepareStatements() error {
	var err error

	db.getStmt, err = db.conn.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	db.setStmt, err = db.conn.Prepare(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	db.deleteStmt, err = db.conn.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return nil
}

// Get returns the blob stored under key. A missing key is not an error: the
// second return value is false instead.
func (db *Database) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := db.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		db.logger.WithError(err).WithField("key", key).Error("Failed to read key")
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous blob.
func (db *Database) Set(ctx context.Context, key string, value []byte) error {
	if _, err := db.setStmt.ExecContext(ctx, key, value); err != nil {
		db.logger.WithError(err).WithField("key", key).Error("Failed to write key")
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (db *Database) Delete(ctx context.Context, key string) error {
	if _, err := db.deleteStmt.ExecContext(ctx, key); err != nil {
		db.logger.WithError(err).WithField("key", key).Error("Failed to delete key")
		return fmt.Errorf("%w: delete %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Ping checks connectivity for the health endpoint.
func (db *Database) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the prepared statements and the underlying connection.
func (db *Database) Close() error {
	for _, stmt := range []*sql.Stmt{db.getStmt, db.setStmt, db.deleteStmt} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
