// Package session implements the session recorder (spec §4.9):
// open_session/record_root/record_entry/close_session, all funneled
// through the one write transaction that owns the run. Process-level
// exclusivity on the RSSD file uses gofrs/flock the same way the teacher's
// sync command guards its own on-disk state against concurrent writers.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/surveilr/surveilr/internal/ids"
	"github.com/surveilr/surveilr/internal/ingest"
)

// Session owns the single write transaction for one ingestion run.
type Session struct {
	db        *sql.DB
	tx        *sql.Tx
	lock      *flock.Flock
	ID        string
	DeviceID  string
	StartedAt time.Time
	cancelled bool
}

// Open writes the ingest_session row, snapshots behaviorJSON onto it, and
// begins the transaction every later write in this run joins (spec §4.9).
// lockPath, typically the RSSD path plus ".lock", guards against a second
// process opening the same file concurrently; Open fails fast rather than
// blocking if another run already holds it.
//
// The transaction itself is begun on an uncancelable derived context
// (context.WithoutCancel), not ctx directly: database/sql auto-rolls-back a
// Tx the instant the context its BeginTx was given is canceled, which would
// otherwise discard the session's own row — and guarantee Close's final
// Commit fails — on the very cancellation spec §5 says should instead "let
// the writer commit what it has". ctx still governs the INSERT itself: a
// caller that's already canceled gets an error once the lock is taken and
// the transaction begun, and Open then rolls back and releases the lock.
func Open(ctx context.Context, db *sql.DB, deviceID, behaviorID string, behaviorJSON []byte, lockPath string) (*Session, error) {
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("session: acquiring lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("session: %s is held by another run", lockPath)
	}

	tx, err := db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("session: beginning transaction: %w", err)
	}

	id := ids.New()
	startedAt := time.Now().UTC()

	var behaviorIDArg, behaviorJSONArg any
	if behaviorID != "" {
		behaviorIDArg = behaviorID
	}
	if len(behaviorJSON) > 0 {
		behaviorJSONArg = string(behaviorJSON)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingest_session (id, device_id, behavior_id, behavior_json, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, deviceID, behaviorIDArg, behaviorJSONArg, startedAt); err != nil {
		_ = tx.Rollback()
		_ = lock.Unlock()
		return nil, fmt.Errorf("session: inserting ingest_session: %w", err)
	}

	return &Session{db: db, tx: tx, lock: lock, ID: id, DeviceID: deviceID, StartedAt: startedAt}, nil
}

// RecordRoot inserts the ingest_session_fs_path row for one configured root
// (spec §4.9, "record_root").
func (s *Session) RecordRoot(ctx context.Context, rootPath string) (string, error) {
	id := ids.New()
	if _, err := s.tx.ExecContext(ctx, `
		INSERT INTO ingest_session_fs_path (id, session_id, root_path) VALUES (?, ?, ?)
	`, id, s.ID, rootPath); err != nil {
		return "", fmt.Errorf("session: inserting ingest_session_fs_path: %w", err)
	}
	return id, nil
}

// EntryOutcome is the per-visit result record_entry persists (spec §4.6,
// §4.7, §4.8): exactly one of these rows is written per walked entry,
// regardless of whether it became a resource.
type EntryOutcome struct {
	UniformResourceID  string // empty if no resource was produced
	FilePathAbs        string
	FilePathRelParent  string
	FilePathRel        string
	FileBasename       string
	FileExtn           string
	CapturedExecutable map[string]any // non-nil only for exec-resource/exec-sql outcomes
	Status             string         // e.g. "OK", "ERR_NON_ZERO_EXIT", "ERR_TIMEOUT"
	Diagnostics        map[string]any
}

// RecordEntry inserts exactly one fs-path-entry row per visit — this row is
// never deduplicated, unlike uniform_resource itself (spec §4.9).
func (s *Session) RecordEntry(ctx context.Context, pathID string, o EntryOutcome) error {
	var urID any
	if o.UniformResourceID != "" {
		urID = o.UniformResourceID
	}

	capturedJSON, err := marshalOptional(o.CapturedExecutable)
	if err != nil {
		return fmt.Errorf("session: marshaling captured_executable: %w", err)
	}
	diagJSON, err := marshalOptional(o.Diagnostics)
	if err != nil {
		return fmt.Errorf("session: marshaling ur_diagnostics: %w", err)
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO ingest_session_fs_path_entry
			(id, session_id, path_id, uniform_resource_id, file_path_abs, file_path_rel_parent,
			 file_path_rel, file_basename, file_extn, captured_executable, ur_status, ur_diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ids.New(), s.ID, pathID, urID, o.FilePathAbs, o.FilePathRelParent,
		o.FilePathRel, o.FileBasename, nullIfEmpty(o.FileExtn), capturedJSON, nullIfEmpty(o.Status), diagJSON)
	if err != nil {
		return fmt.Errorf("session: inserting ingest_session_fs_path_entry: %w", err)
	}
	return nil
}

// CommitResource inserts (or dedups) a prepared uniform_resource row against
// this session's transaction — the only connection a run is allowed to
// write through (spec §5, §4.9). Callers that digest/read files concurrently
// should do that work with ingest.Prepare/PrepareBytes and hand the result
// here from the single writer goroutine.
func (s *Session) CommitResource(ctx context.Context, p ingest.Prepared) (ingest.Result, error) {
	return ingest.Commit(ctx, s.tx, p)
}

// ExecSQLBatch runs a capturable-SQL batch inside a savepoint scoped to
// this session's transaction, so a failing batch rolls back to the
// savepoint without aborting the rest of the session (spec §4.8).
func (s *Session) ExecSQLBatch(ctx context.Context, savepointName, sqlBatch string) error {
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("session: creating savepoint %s: %w", savepointName, err)
	}

	if _, err := s.tx.ExecContext(ctx, sqlBatch); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return fmt.Errorf("session: rolling back savepoint %s after %v: %w", savepointName, err, rbErr)
		}
		return fmt.Errorf("session: sql batch failed, rolled back to savepoint %s: %w", savepointName, err)
	}

	_, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName)
	return err
}

// Cancel marks the session as interrupted; Close still commits whatever
// has been written so far (spec §5, "Cancellation": "the writer to commit
// what it has").
func (s *Session) Cancel() {
	s.cancelled = true
}

// Close stamps finished_at, records cancellation in elaboration if Cancel
// was called, commits the transaction, and releases the file lock.
//
// The final stamp and the commit itself must still happen after ctx has
// been canceled — that's the whole point of Cancel/Close recording a clean
// stop instead of losing the run — so the stamping write uses an
// uncancelable derived context rather than ctx directly.
func (s *Session) Close(ctx context.Context) error {
	defer func() { _ = s.lock.Unlock() }()

	var elaboration any
	if s.cancelled {
		blob, _ := json.Marshal(map[string]any{"cancelled": true})
		elaboration = string(blob)
	}

	writeCtx := context.WithoutCancel(ctx)
	if _, err := s.tx.ExecContext(writeCtx, `
		UPDATE ingest_session SET finished_at = ?, elaboration = COALESCE(?, elaboration) WHERE id = ?
	`, time.Now().UTC(), elaboration, s.ID); err != nil {
		_ = s.tx.Rollback()
		return fmt.Errorf("session: stamping finished_at: %w", err)
	}

	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("session: committing: %w", err)
	}
	return nil
}

// Abort rolls back the transaction and releases the lock without recording
// anything — used when Open's caller can't proceed at all (e.g. the
// target RSSD itself failed to open).
func (s *Session) Abort() error {
	defer func() { _ = s.lock.Unlock() }()
	return s.tx.Rollback()
}

func marshalOptional(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(blob), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
