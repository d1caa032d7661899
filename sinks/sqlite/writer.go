// Package sqlite stores finalized records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/tebeka/atexit"

	"github.com/zoobzio/scopez"
)

// ErrClosed is returned by operations on a closed Writer.
var ErrClosed = errors.New("sqlite writer closed")

// Config contains configuration for the SQLite writer.
type Config struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// BatchSize is the number of records buffered before a flush.
	// Default: 100
	BatchSize int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Logger reports flush failures that happen inside Finalize.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Path:        "scopez.sqlite3",
		BatchSize:   100,
		BusyTimeout: 5 * time.Second,
	}
}

// Writer buffers finalized records and writes them in batches.
// Safe for concurrent use by multiple goroutines.
type Writer struct {
	db        *sql.DB
	logger    *slog.Logger
	runID     string
	pending   []*scopez.Record
	batchSize int
	mu        sync.Mutex
	closed    bool
}

// Open creates the database schema and returns a writer. Buffered records are
// flushed when the process exits through atexit.Exit.
func Open(cfg Config) (*Writer, error) {
	defaults := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaults.BusyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// batch transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &Writer{
		db:        db,
		logger:    logger.With("component", "scopez.sqlite", "path", cfg.Path),
		runID:     uuid.New().String(),
		pending:   make([]*scopez.Record, 0, cfg.BatchSize),
		batchSize: cfg.BatchSize,
	}

	atexit.Register(func() {
		if err := w.Close(); err != nil && !errors.Is(err, ErrClosed) {
			w.logger.Error("flush at exit failed", "error", err)
		}
	})

	return w, nil
}

// RunID identifies the rows written by this writer.
func (w *Writer) RunID() string {
	return w.runID
}

// Finalize buffers r and flushes when the batch is full. It has the
// scopez.Finalizer signature; flush errors are logged, not returned.
func (w *Writer) Finalize(r *scopez.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.pending = append(w.pending, r)
	if len(w.pending) < w.batchSize {
		return
	}
	if err := w.flushLocked(); err != nil {
		w.logger.Error("flush failed", "records", len(w.pending), "error", err)
	}
}

// Flush writes every buffered record in one transaction.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	recStmt, err := tx.Prepare(insertRecord)
	if err != nil {
		tx.Rollback() //nolint:errcheck // Already failing
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	evStmt, err := tx.Prepare(insertEvent)
	if err != nil {
		tx.Rollback() //nolint:errcheck // Already failing
		return fmt.Errorf("prepare events: %w", err)
	}
	defer evStmt.Close()

	for _, r := range w.pending {
		if err := writeRecord(recStmt, evStmt, w.runID, r); err != nil {
			tx.Rollback() //nolint:errcheck // Already failing
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	clear(w.pending)
	w.pending = w.pending[:0]
	return nil
}

func writeRecord(recStmt, evStmt *sql.Stmt, runID string, r *scopez.Record) error {
	var parent interface{}
	if id := r.ParentID(); id != "" {
		parent = id
	}

	events := r.Events()
	_, err := recStmt.Exec(
		r.ID(),
		runID,
		parent,
		r.Depth(),
		r.Opened().UnixNano(),
		r.Duration().Nanoseconds(),
		r.HasFailure(),
		len(events),
		r.Render(),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", r.ID(), err)
	}

	for seq, e := range events {
		var failure interface{}
		if e.Failure != nil {
			failure = e.Failure.String()
		}
		_, err := evStmt.Exec(
			r.ID(), seq, e.Time.UnixNano(), e.Worker, e.File, e.Line, e.Class, e.Member, e.Message, failure,
		)
		if err != nil {
			return fmt.Errorf("insert event %s/%d: %w", r.ID(), seq, err)
		}
	}
	return nil
}

// Close flushes buffered records and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.closed = true

	flushErr := w.flushLocked()
	closeErr := w.db.Close()
	return errors.Join(flushErr, closeErr)
}

// StoredRecord is a row of the records table.
type StoredRecord struct {
	ID         string
	ParentID   string
	Depth      int
	Duration   time.Duration
	HasFailure bool
	EventCount int
	Rendered   string
}

// StoredEvent is a row of the events table.
type StoredEvent struct {
	Seq     int
	Message string
	Failure string
}

// Records returns the records written by this writer, in insertion order.
func (w *Writer) Records(ctx context.Context) ([]StoredRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT id, COALESCE(parent_id, ''), depth, duration_ns, has_failure, event_count, rendered
		FROM records WHERE run_id = ? ORDER BY rowid`, w.runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		var durationNs int64
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.Depth, &durationNs, &rec.HasFailure, &rec.EventCount, &rec.Rendered); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Duration = time.Duration(durationNs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Events returns the events stored for one record, in order.
func (w *Writer) Events(ctx context.Context, recordID string) ([]StoredEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT seq, message, COALESCE(failure, '')
		FROM events WHERE record_id = ? ORDER BY seq`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.Seq, &ev.Message, &ev.Failure); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
