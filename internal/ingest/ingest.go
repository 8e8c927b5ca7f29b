// Package ingest implements the content ingester (spec §4.7): reads bytes,
// digests them, optionally parses frontmatter, and inserts (or dedups) the
// resulting uniform_resource row.
//
// Reading, digesting, and frontmatter parsing (Prepare/PrepareBytes) touch no
// database state, so a worker pool can run them concurrently. Only Commit
// issues SQL, and it takes an Executor rather than a *sql.DB so a caller that
// owns a single serialized write transaction — the session recorder, for an
// ingestion run — can pass its *sql.Tx and keep every uniform_resource write
// inside that one transaction, the way RecordEntry and ExecSQLBatch already
// do.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/surveilr/surveilr/internal/digest"
	"github.com/surveilr/surveilr/internal/ids"
)

// Mode selects whether content bytes are stored alongside the digest.
type Mode int

const (
	// DigestOnly computes content_digest but leaves content NULL.
	DigestOnly Mode = iota
	// CaptureContent stores the bytes (and parses frontmatter for
	// markdown-like natures).
	CaptureContent
)

// Request describes one file to ingest.
type Request struct {
	DeviceID      string
	SessionID     string
	PathID        string
	AbsPath       string
	URI           string
	Nature        string
	Mode          Mode
	DigestAlgo    digest.Algorithm
	IsSymlink     bool
	SymlinkTarget string // resolved target path, used for digesting when IsSymlink
}

// Result reports what Commit actually did.
type Result struct {
	UniformResourceID string
	ContentDigest     string
	SizeBytes         int64
	Deduplicated      bool  // true if an existing row satisfied the dedup key
	DiagnosticErr     error // non-nil if digest computation failed; the row is still inserted with content_digest="-" (spec §7)
}

// Prepared is a resource ready to Commit: every field Commit needs is
// already computed, so Commit itself never touches the filesystem.
type Prepared struct {
	DeviceID      string
	SessionID     string
	PathID        string
	URI           string
	Nature        string
	Content       []byte // nil means the row's content column stays NULL
	ContentDigest string
	SizeBytes     int64
	LastModified  time.Time

	FrontmatterJSON sql.NullString
	FmBodyAttrsJSON sql.NullString

	// DiagnosticErr is set when digesting failed; ContentDigest is then
	// digest.NotComputed and Commit still inserts the row (spec §7, "Digest
	// computation failure").
	DiagnosticErr error
}

// Executor is the subset of *sql.DB / *sql.Tx Commit needs.
type Executor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// markdownNatures lists the natures eligible for frontmatter parsing
// (spec §4.7, "for markdown-family natures").
var markdownNatures = map[string]struct{}{
	"md": {}, "markdown": {}, "mdx": {}, "text/markdown": {},
}

// BytesRequest describes content already in memory — the shape a
// capturable-executable's captured stdout arrives in (spec §4.8,
// "exec-resource(nature): stdout becomes content ... Dedup applies as in
// 4.7").
type BytesRequest struct {
	DeviceID     string
	SessionID    string
	PathID       string
	URI          string
	Nature       string
	Content      []byte
	LastModified time.Time
	DigestAlgo   digest.Algorithm
}

// Prepare reads abs (or, for a symlink, its resolved target) and computes
// everything Commit needs, without touching the database. A returned error
// means the file itself could not be read (spec §7, "Unreadable file": no
// resource is produced); a digest failure is not treated as an error here —
// it is recorded on the returned Prepared so Commit still inserts the row.
func Prepare(req Request) (Prepared, error) {
	readPath := req.AbsPath
	if req.IsSymlink {
		readPath = req.SymlinkTarget
	}

	f, err := os.Open(readPath) // #nosec G304 -- path comes from a configured, already-classified walk
	if err != nil {
		return Prepared{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Prepared{}, err
	}

	p := Prepared{
		DeviceID:     req.DeviceID,
		SessionID:    req.SessionID,
		PathID:       req.PathID,
		URI:          req.URI,
		Nature:       req.Nature,
		SizeBytes:    info.Size(),
		LastModified: info.ModTime().UTC(),
	}

	var content []byte
	var sum string
	var digestErr error
	if req.Mode == CaptureContent {
		content, err = io.ReadAll(f)
		if err != nil {
			return Prepared{}, err
		}
		p.Content = content
		sum, digestErr = digest.SumBytes(req.DigestAlgo, content)
	} else {
		sum, digestErr = digest.Sum(req.DigestAlgo, f)
	}

	if digestErr != nil {
		p.ContentDigest = digest.NotComputed
		p.DiagnosticErr = digestErr
		return p, nil
	}
	p.ContentDigest = sum

	if req.Mode == CaptureContent && isMarkdownNature(req.Nature) {
		applyFrontMatter(&p, content)
	}

	return p, nil
}

// PrepareBytes is Prepare's counterpart for content already captured in
// memory (spec §4.8). It never fails outright: a digest error is recorded
// on the returned Prepared the same way Prepare records one.
func PrepareBytes(req BytesRequest) Prepared {
	p := Prepared{
		DeviceID:     req.DeviceID,
		SessionID:    req.SessionID,
		PathID:       req.PathID,
		URI:          req.URI,
		Nature:       req.Nature,
		Content:      req.Content,
		SizeBytes:    int64(len(req.Content)),
		LastModified: req.LastModified.UTC(),
	}

	sum, err := digest.SumBytes(req.DigestAlgo, req.Content)
	if err != nil {
		p.ContentDigest = digest.NotComputed
		p.DiagnosticErr = err
		return p
	}
	p.ContentDigest = sum

	if isMarkdownNature(req.Nature) {
		applyFrontMatter(&p, req.Content)
	}
	return p
}

func applyFrontMatter(p *Prepared, content []byte) {
	fm, err := ParseFrontMatter(content)
	if err != nil || !fm.HasFrontMatter {
		return
	}
	if blob, err := json.Marshal(fm); err == nil {
		p.FmBodyAttrsJSON = sql.NullString{String: string(blob), Valid: true}
	}
	if attrsJSON, err := json.Marshal(fm.Attrs); err == nil {
		p.FrontmatterJSON = sql.NullString{String: string(attrsJSON), Valid: true}
	}
}

const dedupQuery = `
	SELECT id FROM uniform_resource
	WHERE device_id = ? AND content_digest = ? AND uri = ? AND size_bytes = ? AND last_modified_at = ?
`

// Commit performs the dedup check and, if the key is new, the insert,
// against exec — a caller with a live write transaction should always pass
// its *sql.Tx so the write joins that transaction.
func Commit(ctx context.Context, exec Executor, p Prepared) (Result, error) {
	var existingID string
	err := exec.QueryRowContext(ctx, dedupQuery, p.DeviceID, p.ContentDigest, p.URI, p.SizeBytes, p.LastModified).Scan(&existingID)
	if err == nil {
		return Result{
			UniformResourceID: existingID, ContentDigest: p.ContentDigest, SizeBytes: p.SizeBytes,
			Deduplicated: true, DiagnosticErr: p.DiagnosticErr,
		}, nil
	}
	if err != sql.ErrNoRows {
		return Result{}, fmt.Errorf("ingest: checking dedup key: %w", err)
	}

	newID := ids.New()
	var contentArg any
	if p.Content != nil {
		contentArg = p.Content
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO uniform_resource
			(id, device_id, session_id, path_id, uri, content_digest, content, nature,
			 size_bytes, last_modified_at, content_fm_body_attrs, frontmatter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, content_digest, uri, size_bytes, last_modified_at) DO NOTHING
	`, newID, p.DeviceID, p.SessionID, p.PathID, p.URI, p.ContentDigest, contentArg, nullIfEmpty(p.Nature),
		p.SizeBytes, p.LastModified, p.FmBodyAttrsJSON, p.FrontmatterJSON)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: inserting uniform_resource: %w", err)
	}

	// A concurrent writer may have inserted the same key first; re-read so
	// the visit always references the row that actually persisted.
	err = exec.QueryRowContext(ctx, dedupQuery, p.DeviceID, p.ContentDigest, p.URI, p.SizeBytes, p.LastModified).Scan(&existingID)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: re-reading inserted uniform_resource: %w", err)
	}

	return Result{
		UniformResourceID: existingID, ContentDigest: p.ContentDigest, SizeBytes: p.SizeBytes,
		Deduplicated: existingID != newID, DiagnosticErr: p.DiagnosticErr,
	}, nil
}

// Ingest is Prepare followed immediately by Commit — for callers (tests, or
// a single-threaded run) that don't need to separate the two across a
// worker pool and a serialized writer.
func Ingest(ctx context.Context, exec Executor, req Request) (Result, error) {
	p, err := Prepare(req)
	if err != nil {
		return Result{ContentDigest: digest.NotComputed, DiagnosticErr: err}, nil
	}
	return Commit(ctx, exec, p)
}

// IngestBytes is PrepareBytes followed immediately by Commit.
func IngestBytes(ctx context.Context, exec Executor, req BytesRequest) (Result, error) {
	return Commit(ctx, exec, PrepareBytes(req))
}

func isMarkdownNature(nature string) bool {
	_, ok := markdownNatures[strings.ToLower(nature)]
	return ok
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
