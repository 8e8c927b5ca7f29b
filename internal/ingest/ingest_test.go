package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/surveilr/surveilr/internal/device"
	"github.com/surveilr/surveilr/internal/digest"
	"github.com/surveilr/surveilr/internal/ids"
	"github.com/surveilr/surveilr/internal/rssd"
)

// fixture opens a fresh RSSD and seeds the device/session/path rows a
// uniform_resource insert requires, returning their ids.
func fixture(t *testing.T) (db *rssd.DB, deviceID, sessionID, pathID string) {
	t.Helper()
	ctx := context.Background()

	d, err := rssd.Open(ctx, filepath.Join(t.TempDir(), "rssd.sqlite.db"))
	if err != nil {
		t.Fatalf("rssd.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	dev, err := device.Ensure(ctx, d.DB, "host-a", "b1")
	if err != nil {
		t.Fatalf("device.Ensure: %v", err)
	}

	sessionID = ids.New()
	if _, err := d.ExecContext(ctx, `
		INSERT INTO ingest_session (id, device_id, started_at) VALUES (?, ?, ?)
	`, sessionID, dev.ID, time.Now().UTC()); err != nil {
		t.Fatalf("inserting session: %v", err)
	}

	pathID = ids.New()
	if _, err := d.ExecContext(ctx, `
		INSERT INTO ingest_session_fs_path (id, session_id, root_path) VALUES (?, ?, ?)
	`, pathID, sessionID, t.TempDir()); err != nil {
		t.Fatalf("inserting path: %v", err)
	}

	return d, dev.ID, sessionID, pathID
}

func TestIngestCapturesContentAndDedups(t *testing.T) {
	ctx := context.Background()
	db, deviceID, sessionID, pathID := fixture(t)

	dir := t.TempDir()
	abs := filepath.Join(dir, "a.md")
	if err := os.WriteFile(abs, []byte("# hi\n"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	req := Request{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		PathID:     pathID,
		AbsPath:    abs,
		URI:        abs,
		Nature:     "md",
		Mode:       CaptureContent,
		DigestAlgo: digest.SHA256,
	}

	r1, err := Ingest(ctx, db.DB, req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if r1.Deduplicated {
		t.Fatalf("expected first ingest to create a new row")
	}
	if r1.ContentDigest == "" || r1.ContentDigest == digest.NotComputed {
		t.Fatalf("expected a real digest, got %q", r1.ContentDigest)
	}

	r2, err := Ingest(ctx, db.DB, req)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if r2.UniformResourceID != r1.UniformResourceID {
		t.Fatalf("expected dedup to return the same resource id")
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uniform_resource`).Scan(&count); err != nil {
		t.Fatalf("counting resources: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 resource row after re-ingesting the same file, got %d", count)
	}
}

func TestIngestDigestOnlyLeavesContentNull(t *testing.T) {
	ctx := context.Background()
	db, deviceID, sessionID, pathID := fixture(t)

	dir := t.TempDir()
	abs := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(abs, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	req := Request{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		PathID:     pathID,
		AbsPath:    abs,
		URI:        abs,
		Mode:       DigestOnly,
		DigestAlgo: digest.SHA256,
	}

	res, err := Ingest(ctx, db.DB, req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var content []byte
	if err := db.QueryRowContext(ctx, `SELECT content FROM uniform_resource WHERE id = ?`, res.UniformResourceID).Scan(&content); err != nil {
		t.Fatalf("querying content: %v", err)
	}
	if content != nil {
		t.Fatalf("expected NULL content for digest-only ingest, got %v", content)
	}
}

func TestCommitInsertsResourceOnDigestFailure(t *testing.T) {
	ctx := context.Background()
	db, deviceID, sessionID, pathID := fixture(t)

	dir := t.TempDir()
	abs := filepath.Join(dir, "c.bin")
	if err := os.WriteFile(abs, []byte{9, 9, 9}, 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	p, err := Prepare(Request{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		PathID:     pathID,
		AbsPath:    abs,
		URI:        abs,
		Mode:       DigestOnly,
		DigestAlgo: digest.Algorithm("unsupported"),
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.DiagnosticErr == nil {
		t.Fatalf("expected Prepare to record a digest diagnostic, got none")
	}
	if p.ContentDigest != digest.NotComputed {
		t.Fatalf("expected content_digest %q, got %q", digest.NotComputed, p.ContentDigest)
	}

	res, err := Commit(ctx, db.DB, p)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.UniformResourceID == "" {
		t.Fatalf("expected a resource row to be inserted despite the digest failure")
	}
	if res.DiagnosticErr == nil {
		t.Fatalf("expected the result to surface the digest diagnostic")
	}

	var storedDigest string
	if err := db.QueryRowContext(ctx, `SELECT content_digest FROM uniform_resource WHERE id = ?`, res.UniformResourceID).Scan(&storedDigest); err != nil {
		t.Fatalf("querying content_digest: %v", err)
	}
	if storedDigest != digest.NotComputed {
		t.Fatalf("expected stored content_digest %q, got %q", digest.NotComputed, storedDigest)
	}
}

func TestIngestEmptyFileGetsDefinedDigest(t *testing.T) {
	ctx := context.Background()
	db, deviceID, sessionID, pathID := fixture(t)

	dir := t.TempDir()
	abs := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(abs, nil, 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	res, err := Ingest(ctx, db.DB, Request{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		PathID:     pathID,
		AbsPath:    abs,
		URI:        abs,
		Mode:       CaptureContent,
		DigestAlgo: digest.SHA256,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.SizeBytes != 0 {
		t.Fatalf("expected size_bytes 0, got %d", res.SizeBytes)
	}
	if res.ContentDigest == digest.NotComputed || res.ContentDigest == "" {
		t.Fatalf("expected defined digest for empty file, got %q", res.ContentDigest)
	}
}
