// Package log provides centralised audit logging for scribe operations.
// Entries are stored in {data_dir}/log/scribe-log.db and record every
// transcript operation the service performs, including the alignment calls
// that succeed or get skipped.
//
// # Fluent API
//
// Use the fluent builder API to construct and write log entries:
//
//	log.Event("transcripts:save", "save").
//		User(userID).
//		Doc(doc).
//		Version(parentVersion).
//		ResultVersion(newVersion).
//		Write(err)
//
//	log.Event("transcripts:align", "align").
//		Doc(doc).
//		Detail("segment", seg).
//		Detail("matched", matched).
//		Write(err)
//
// The source parameter follows the format "transcripts:{operation}" for API
// handlers or "cli:{command}" for command-line invocations.
package log

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	global *Logger
	mu     sync.Mutex
)

// Entry represents a single log entry.
type Entry struct {
	Source  string // e.g., "transcripts:save", "cli:migrate-words"
	User    string // who performed the action
	Action  string // verb: save, read, align, migrate, etc.
	Doc     string // input: document requested
	Version int    // input: version requested

	// Output fields - populated after the operation succeeds
	ResultVersion int // output: version created or accessed

	// Timing
	Start int64 // unix timestamp when Event() called
	End   int64 // unix timestamp when Write() called

	Success bool           // whether operation succeeded
	Error   string         // error message if failed
	Detail  map[string]any // additional operation-specific data
}

// Builder constructs a log entry using a fluent API.
// Create with [Event], chain methods to set fields, then call [Builder.Write]
// to write the entry.
type Builder struct {
	entry Entry
}

// Event creates a new log entry builder for an operation.
//
// The source identifies where the operation originated:
//   - API handlers: "transcripts:{operation}" (e.g., "transcripts:save")
//   - CLI commands: "cli:{command}" (e.g., "cli:migrate-words")
//
// The action describes what was performed: "save", "read", "align",
// "confirm", "migrate".
func Event(source, action string) *Builder {
	return &Builder{
		entry: Entry{
			Source: source,
			Action: action,
			Start:  time.Now().Unix(),
		},
	}
}

// User sets who performed the operation.
func (b *Builder) User(user string) *Builder {
	b.entry.User = user
	return b
}

// Doc sets the document this operation affects.
func (b *Builder) Doc(doc string) *Builder {
	b.entry.Doc = doc
	return b
}

// Version sets the input version for this operation.
func (b *Builder) Version(version int) *Builder {
	b.entry.Version = version
	return b
}

// ResultVersion sets the version that resulted from the operation (output).
//
// For saves: the new version created. For reads: the version accessed.
func (b *Builder) ResultVersion(version int) *Builder {
	b.entry.ResultVersion = version
	return b
}

// Detail adds a key-value pair to the log entry's detail map.
//
// Use for operation-specific data that doesn't fit standard fields: segment
// indices, match counts, skip reasons. Can be called multiple times.
func (b *Builder) Detail(key string, value any) *Builder {
	if b.entry.Detail == nil {
		b.entry.Detail = make(map[string]any)
	}
	b.entry.Detail[key] = value
	return b
}

// Write writes the log entry to the database, deriving success/failure from err.
//
// If err is nil, the entry is logged as successful.
// If err is non-nil, the entry is logged as failed with the error message.
func (b *Builder) Write(err error) {
	b.entry.End = time.Now().Unix()
	b.entry.Success = err == nil
	if err != nil {
		b.entry.Error = err.Error()
	}
	Log(b.entry)
}

// Open initialises the global logger with a database under dataDir.
// Safe to call multiple times. Errors are returned but callers may choose to
// ignore them (best-effort logging).
func Open(dataDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}

	p := filepath.Join(dataDir, "log", "scribe-log.db")
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	global = &Logger{db: db, deployment: hash(dataDir)}
	return nil
}

// Log writes an entry. Safe to call if logger not initialised (no-op).
func Log(e Entry) {
	mu.Lock()
	l := global
	mu.Unlock()

	if l == nil {
		return
	}
	l.log(e)
}

// Close closes the global logger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.db.Close()
		global = nil
	}
}
