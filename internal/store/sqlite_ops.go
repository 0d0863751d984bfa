// sqlite_ops.go provides SQLite connection management and transaction helpers.
//
// Separated to isolate SQLite-specific concerns (pragmas, driver registration)
// from business logic. This is the only file that imports the SQLite driver,
// making it easier to swap implementations if needed.
//
// Design: WAL mode with busy timeout balances concurrency and durability.
// WAL allows concurrent readers during writes (critical when multiple editors
// poll /words while a save commits). The 5-second busy timeout prevents
// "database is locked" errors without waiting forever on stuck connections.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Register sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteStore implements transcript persistence using SQLite with WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens the SQLite database file at `path`, creating parent directories,
// and returns a configured SQLiteStore. The caller should call Close on the
// returned store and EnsureSchema before first use.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// WAL mode: Allows concurrent readers while writing. Without this, readers
	// block writers and vice versa. Trade-off: Creates -wal and -shm files
	// alongside the database.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Busy timeout: How long to wait when another connection holds a lock.
	// Most operations complete in milliseconds; 5 seconds prevents spurious
	// "database is locked" errors under concurrent saves.
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Synchronous NORMAL: With WAL mode, NORMAL is safe against corruption
	// (WAL provides the durability guarantee). FULL would fsync on every
	// commit, which is ~10x slower.
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection. Call before process exit to ensure
// all pending writes are flushed.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for admin tooling and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx executes fn within a database transaction, handling Begin/Commit/Rollback
// automatically. If fn returns an error the transaction is rolled back;
// otherwise it is committed. Rollback is deferred to handle panics and early
// returns (a no-op after commit).
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TxImmediate is Tx with an immediate-reserving transaction: the write lock is
// taken up front, so read-modify-write sequences (align_segment appending to
// token_ops, confirmations replace) exclude concurrent writers for their whole
// duration instead of failing at the upgrade point.
func (s *SQLiteStore) TxImmediate(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Force the reserved lock before any reads inside fn.
	if _, err := tx.ExecContext(ctx, `UPDATE write_reserve SET touched = touched + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("reserve write lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
