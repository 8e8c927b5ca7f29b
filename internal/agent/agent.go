// Package agent orchestrates one ingestion run: behavior → device →
// session → walk → classify → ingest/execcap → record, wiring every other
// internal package together the way a thin cmd/ entry point would.
//
// Concurrency follows spec §5: the walker and classifier run synchronously
// (cheap, and the walk's depth-first order is itself the ordering
// guarantee), but digesting, content capture, and subprocess execution run
// across a bounded worker pool. Once the session's root rows are recorded,
// every per-entry database mutation funnels through a single writer
// goroutine holding the session's transaction, so SQLite's
// single-writer semantics are honored without extra locking — the same
// "fan out work, serialize writes" shape gravwell's ingest muxer uses for
// its consumer queues.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surveilr/surveilr/internal/behavior"
	"github.com/surveilr/surveilr/internal/classify"
	"github.com/surveilr/surveilr/internal/device"
	"github.com/surveilr/surveilr/internal/digest"
	"github.com/surveilr/surveilr/internal/execcap"
	"github.com/surveilr/surveilr/internal/ingest"
	"github.com/surveilr/surveilr/internal/rssd"
	"github.com/surveilr/surveilr/internal/session"
	"github.com/surveilr/surveilr/internal/walker"
)

// Config is everything one ingestion run needs.
type Config struct {
	Conf           behavior.Conf
	DeviceName     string
	DeviceBoundary string
	BehaviorName   string
	Logger         *slog.Logger
}

// Summary reports what a run did.
type Summary struct {
	SessionID      string
	DeviceID       string
	EntriesVisited int
	ResourcesNew   int
	ResourcesDedup int
	ExecFailures   int
	Cancelled      bool
}

// workItem is one classified entry waiting on a worker.
type workItem struct {
	entry   walker.Entry
	outcome classify.Outcome
	pathID  string
}

// writeRequest is what a worker hands back to the single writer goroutine.
// prepared is non-nil only when the entry still needs a uniform_resource
// commit — digesting and reading already happened in the worker, but the
// actual dedup-check-and-insert runs exclusively on the writer goroutine,
// the sole holder of the session's write transaction (spec §5).
type writeRequest struct {
	pathID   string
	outcome  session.EntryOutcome
	prepared *ingest.Prepared
	execErr  bool
}

// Run executes one full ingestion pass against db and returns a summary.
// Cancelling ctx stops the walk, drains in-flight workers, and closes the
// session with elaboration.cancelled = true rather than losing the
// partial run (spec §5, "Cancellation").
func Run(ctx context.Context, db *rssd.DB, cfg Config) (Summary, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dev, err := device.Ensure(ctx, db.DB, cfg.DeviceName, cfg.DeviceBoundary)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: ensuring device: %w", err)
	}

	name := cfg.BehaviorName
	if name == "" {
		name = "default"
	}
	bhv, err := behavior.Save(ctx, db.DB, dev.ID, name, cfg.Conf)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: saving behavior: %w", err)
	}

	rules, err := compileRules(bhv.Conf)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: compiling classifier rules: %w", err)
	}

	behaviorJSON, err := marshalConf(bhv.Conf)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: marshaling behavior snapshot: %w", err)
	}

	lockPath := db.Path + ".lock"
	sess, err := session.Open(ctx, db.DB, dev.ID, bhv.ID, behaviorJSON, lockPath)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: opening session: %w", err)
	}

	logger = logger.With(slog.String("device_id", dev.ID), slog.String("session_id", sess.ID))
	logger.Info("session opened", slog.Int("root_count", len(bhv.Conf.RootPaths)))

	summary := Summary{SessionID: sess.ID, DeviceID: dev.ID}

	concurrency := bhv.Conf.ConcurrencyCap
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	writes := make(chan writeRequest, concurrency*2)
	writerErrCh := make(chan error, 1)
	go func() {
		writerErrCh <- runWriter(context.WithoutCancel(ctx), sess, writes, &summary)
	}()

	g, gctx := errgroup.WithContext(ctx)
	items := make(chan workItem, concurrency*2)

	g.Go(func() error {
		defer close(items)
		return walkInto(gctx, sess, bhv.Conf, rules, items)
	})

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for item := range items {
				req := process(gctx, dev.ID, sess.ID, item, bhv.Conf.DigestAlgorithm, bhv.Conf.ExecTimeoutSeconds)
				select {
				case writes <- req:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	walkErr := g.Wait()
	close(writes)
	writerErr := <-writerErrCh

	if ctx.Err() != nil {
		sess.Cancel()
		summary.Cancelled = true
	}

	if closeErr := sess.Close(ctx); closeErr != nil {
		return summary, fmt.Errorf("agent: closing session: %w", closeErr)
	}

	if walkErr != nil && ctx.Err() == nil {
		return summary, fmt.Errorf("agent: walking: %w", walkErr)
	}
	if writerErr != nil {
		return summary, fmt.Errorf("agent: recording entries: %w", writerErr)
	}

	logger.Info("session closed",
		slog.Int("entries", summary.EntriesVisited),
		slog.Int("new_resources", summary.ResourcesNew),
		slog.Int("deduped", summary.ResourcesDedup),
	)
	return summary, nil
}

// walkInto records each configured root and feeds every classified entry
// into items. It is the only goroutine touching the walker, so its
// depth-first emission order is preserved end to end.
func walkInto(ctx context.Context, sess *session.Session, conf behavior.Conf, rules classify.Rules, items chan<- workItem) error {
	rootPathIDs := make(map[string]string, len(conf.RootPaths))
	for _, root := range conf.RootPaths {
		pathID, err := sess.RecordRoot(ctx, root)
		if err != nil {
			return err
		}
		rootPathIDs[root] = pathID
	}

	opts := walker.Options{IgnorePatterns: rules.Ignore, FollowSymlinks: conf.FollowSymlinks}

	for _, root := range conf.RootPaths {
		pathID := rootPathIDs[root]
		err := walker.Walk([]string{root}, opts, func(e walker.Entry) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			outcome := classify.Outcome{Decision: classify.WalkOnly}
			if e.Err == nil {
				outcome = classify.Classify(rules, e)
			}
			select {
			case items <- workItem{entry: e, outcome: outcome, pathID: pathID}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// process turns one classified entry into a write request. It is safe to
// call concurrently: it only reads files and digests them (ingest.Prepare)
// or spawns a subprocess (execcap.Run) — neither touches the database. The
// resulting ingest.Prepared, if any, travels in the write request and is
// committed later by the single writer goroutine.
func process(ctx context.Context, deviceID, sessionID string, item workItem, algo digest.Algorithm, execTimeoutSeconds int) writeRequest {
	e := item.entry
	base := session.EntryOutcome{
		FilePathAbs:       e.AbsPath,
		FilePathRelParent: e.RelParent,
		FilePathRel:       e.RelPath,
		FileBasename:      e.Basename,
		FileExtn:          e.Ext,
		Status:            "OK",
	}

	if e.Err != nil {
		base.Status = "ERR_UNREADABLE"
		base.Diagnostics = map[string]any{"error": e.Err.Error()}
		return writeRequest{pathID: item.pathID, outcome: base}
	}

	switch item.outcome.Decision {
	case classify.Skip:
		// Ignored entries are never visited by the walker in the first
		// place (spec §4.5 (c)); Skip only reaches here defensively.
		return writeRequest{pathID: item.pathID, outcome: base}

	case classify.WalkOnly:
		return writeRequest{pathID: item.pathID, outcome: base}

	case classify.CaptureContent, classify.DigestOnly:
		mode := ingest.DigestOnly
		if item.outcome.Decision == classify.CaptureContent {
			mode = ingest.CaptureContent
		}
		p, err := ingest.Prepare(ingest.Request{
			DeviceID:   deviceID,
			SessionID:  sessionID,
			PathID:     item.pathID,
			AbsPath:    e.AbsPath,
			URI:        e.AbsPath,
			Nature:     item.outcome.Nature,
			Mode:       mode,
			DigestAlgo: algo,
		})
		if err != nil {
			base.Status = "ERR_INGEST"
			base.Diagnostics = map[string]any{"error": err.Error()}
			return writeRequest{pathID: item.pathID, outcome: base}
		}
		return writeRequest{pathID: item.pathID, outcome: base, prepared: &p}

	case classify.ExecuteAsResource, classify.ExecuteAsSQL:
		return runCapturable(ctx, deviceID, sessionID, item, algo, execTimeoutSeconds)
	}

	return writeRequest{pathID: item.pathID, outcome: base}
}

func runCapturable(ctx context.Context, deviceID, sessionID string, item workItem, algo digest.Algorithm, execTimeoutSeconds int) writeRequest {
	e := item.entry
	disposition := execcap.ExecResource
	if item.outcome.Decision == classify.ExecuteAsSQL {
		disposition = execcap.ExecSQL
	}

	timeout := time.Duration(execTimeoutSeconds) * time.Second

	out := execcap.Run(ctx, execcap.Request{
		AbsPath:     e.AbsPath,
		Nature:      item.outcome.Nature,
		Disposition: disposition,
		Timeout:     timeout,
		Payload: execcap.StdinPayload{Envelope: execcap.Envelope{
			Version: 1,
			Device:  execcap.DeviceRef{DeviceID: deviceID},
			Env:     execcap.EnvContext{CurrentDir: filepath.Dir(e.AbsPath)},
			Session: execcap.SessionCtx{
				WalkSessionID: sessionID,
				WalkPathID:    item.pathID,
				Entry:         execcap.EntryCtx{Path: e.AbsPath},
			},
		}},
	})

	base := session.EntryOutcome{
		FilePathAbs:        e.AbsPath,
		FilePathRelParent:  e.RelParent,
		FilePathRel:        e.RelPath,
		FileBasename:       e.Basename,
		FileExtn:           e.Ext,
		CapturedExecutable: out.CapturedExecutable(),
	}

	switch {
	case out.Err != nil:
		base.Status = "ERR_SPAWN"
		base.Diagnostics = map[string]any{"error": out.Err.Error()}
		return writeRequest{pathID: item.pathID, outcome: base, execErr: true}
	case out.TimedOut:
		base.Status = "ERR_TIMEOUT"
		return writeRequest{pathID: item.pathID, outcome: base, execErr: true}
	case out.ExitStatus != 0:
		base.Status = "ERR_NON_ZERO_EXIT"
		return writeRequest{pathID: item.pathID, outcome: base, execErr: true}
	}

	base.Status = "OK"

	if disposition == execcap.ExecSQL {
		base.CapturedExecutable["exec_sql_batch"] = string(out.Stdout)
		return writeRequest{pathID: item.pathID, outcome: base}
	}

	p := ingest.PrepareBytes(ingest.BytesRequest{
		DeviceID:     deviceID,
		SessionID:    sessionID,
		PathID:       item.pathID,
		URI:          e.AbsPath,
		Nature:       item.outcome.Nature,
		Content:      out.Stdout,
		LastModified: time.Now(),
		DigestAlgo:   algo,
	})
	return writeRequest{pathID: item.pathID, outcome: base, prepared: &p}
}

// runWriter is the single goroutine that ever calls sess.CommitResource,
// sess.RecordEntry, or sess.ExecSQLBatch, preserving the writer-queue model
// spec §5 describes: every per-entry database mutation for this run funnels
// through here (root rows are written by walkInto before any entry is
// queued). A failed capturable-SQL batch is rolled back to its savepoint and
// recorded on its entry row; the run continues.
func runWriter(ctx context.Context, sess *session.Session, writes <-chan writeRequest, summary *Summary) error {
	batchSeq := 0
	for req := range writes {
		summary.EntriesVisited++
		if req.execErr {
			summary.ExecFailures++
		}

		if req.prepared != nil {
			res, err := sess.CommitResource(ctx, *req.prepared)
			if err != nil {
				return err
			}
			req.outcome.UniformResourceID = res.UniformResourceID
			if res.DiagnosticErr != nil {
				req.outcome.Status = "ERR_DIGEST"
				req.outcome.Diagnostics = map[string]any{"error": res.DiagnosticErr.Error()}
			}
			if res.Deduplicated {
				summary.ResourcesDedup++
			} else {
				summary.ResourcesNew++
			}
		}

		if sqlBatch, ok := req.outcome.CapturedExecutable["exec_sql_batch"]; ok {
			if batch, ok := sqlBatch.(string); ok && batch != "" {
				batchSeq++
				if err := sess.ExecSQLBatch(ctx, fmt.Sprintf("cap_sql_%d", batchSeq), batch); err != nil {
					req.outcome.Status = "ERR_SQL_BATCH"
					req.outcome.Diagnostics = map[string]any{"error": err.Error()}
				}
			}
		}
		if err := sess.RecordEntry(ctx, req.pathID, req.outcome); err != nil {
			return err
		}
	}
	return nil
}

func compileRules(c behavior.Conf) (classify.Rules, error) {
	var r classify.Rules
	var err error
	if r.Ignore, err = walker.CompileAll(c.IgnoreRegexs); err != nil {
		return r, err
	}
	if r.CapturableSQL, err = walker.CompileAll(c.CapturedFsExecSQL); err != nil {
		return r, err
	}
	if r.CapturableExecutable, err = walker.CompileAll(c.CapturableExecutables); err != nil {
		return r, err
	}
	if r.ContentIngest, err = walker.CompileAll(c.IngestContent); err != nil {
		return r, err
	}
	if r.Digest, err = walker.CompileAll(c.ComputeDigests); err != nil {
		return r, err
	}
	return r, nil
}

func marshalConf(c behavior.Conf) ([]byte, error) {
	return json.Marshal(c)
}
