// Package journal persists accepted wire frames to SQLite so a dialog's
// event stream can be replayed through the engine after a reconnect or a
// course switch. It records frames, not reconciled state; the reconciled
// view is always rebuilt by replaying through the engine.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

// Journal is a SQLite-backed append-only frame log.
type Journal struct {
	db *sql.DB
}

// Entry is one recorded frame.
type Entry struct {
	ID         string
	DialogRoot string
	Kind       wire.Kind
	Frame      []byte
	RecordedAt time.Time
}

// Open opens (or creates) a journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS frames (
			id TEXT PRIMARY KEY,
			dialog_root TEXT NOT NULL,
			kind TEXT NOT NULL,
			frame BLOB NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_dialog ON frames(dialog_root, recorded_at)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// Append records one event frame for a dialog. Appending is best-effort
// from the caller's perspective: the event loop reports failures but never
// blocks reconciliation on them.
func (j *Journal) Append(ctx context.Context, dialogRoot string, ev wire.Event) error {
	frame, err := wire.Encode(ev)
	if err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO frames (id, dialog_root, kind, frame, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), dialogRoot, string(ev.EventKind()), frame, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	return nil
}

// Replay streams every recorded frame for a dialog, in insertion order,
// through fn. A decode failure on one frame is reported to fn's error
// return path immediately; replay does not skip corrupt frames silently.
func (j *Journal) Replay(ctx context.Context, dialogRoot string, fn func(wire.Event) error) error {
	rows, err := j.db.QueryContext(ctx,
		`SELECT frame FROM frames WHERE dialog_root = ? ORDER BY rowid`,
		dialogRoot)
	if err != nil {
		return fmt.Errorf("replay query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var frame []byte
		if err := rows.Scan(&frame); err != nil {
			return fmt.Errorf("replay scan: %w", err)
		}
		ev, err := wire.Decode(frame)
		if err != nil {
			return fmt.Errorf("replay decode: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of frames recorded for a dialog.
func (j *Journal) Count(ctx context.Context, dialogRoot string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM frames WHERE dialog_root = ?`, dialogRoot).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}

// Prune deletes every frame recorded for a dialog. Called when a dialog is
// dismissed for good.
func (j *Journal) Prune(ctx context.Context, dialogRoot string) error {
	if _, err := j.db.ExecContext(ctx,
		`DELETE FROM frames WHERE dialog_root = ?`, dialogRoot); err != nil {
		return fmt.Errorf("prune frames: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
