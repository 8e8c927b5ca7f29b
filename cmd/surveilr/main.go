// Command surveilr is the thin host agent wrapper around the core modules:
// it resolves configuration, opens the target RSSD, and runs one ingestion
// or merge pass. Argument parsing, help text, and shell completion are
// explicitly out of scope for the core (spec §1, "external collaborators"),
// so this entry point uses only the standard library's flag package rather
// than a CLI framework — there is deliberately nothing more here to grow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/surveilr/surveilr/internal/agent"
	"github.com/surveilr/surveilr/internal/behavior"
	"github.com/surveilr/surveilr/internal/config"
	"github.com/surveilr/surveilr/internal/merge"
	"github.com/surveilr/surveilr/internal/rssd"
	"github.com/surveilr/surveilr/internal/surveillog"
)

const (
	exitOK          = 0
	exitUsageError  = 1
	exitRuntimeFail = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: surveilr <ingest|merge> [flags]")
		return exitUsageError
	}

	switch args[0] {
	case "ingest":
		return runIngest(args[1:])
	case "merge":
		return runMerge(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "usage: surveilr <ingest|merge> [flags]\nunknown subcommand %q\n", args[0])
		return exitUsageError
	}
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	statePath := fs.String("db", "", "target RSSD path (defaults to state_db_fs_path / SURVEILR_STATEDB_FS_PATH)")
	configPath := fs.String("config", "", "explicit config.yaml path")
	roots := fs.String("roots", "", "comma-separated root paths to walk")
	ignore := fs.String("ignore", "", "comma-separated ignore regexes")
	content := fs.String("content", `\.md$`, "comma-separated content-ingest regexes")
	digestPatterns := fs.String("digest", ".*", "comma-separated digest regexes")
	verbose := fs.Bool("verbose", false, "emit human-readable debug logs instead of JSON")
	deviceName := fs.String("device", "", "device name (defaults to hostname)")
	boundary := fs.String("boundary", "default", "device boundary")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}

	logger := surveillog.New(surveillog.Options{Verbose: *verbose})

	// Only flags the operator actually set win over the config file and
	// environment; untouched flags keep their stdlib zero/default value and
	// must not shadow config.Load's own precedence.
	var overrides behavior.Conf
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			overrides.StateDBFsPath = *statePath
		case "roots":
			overrides.RootPaths = splitCSV(*roots)
		case "ignore":
			overrides.IgnoreRegexs = splitCSV(*ignore)
		case "content":
			overrides.IngestContent = splitCSV(*content)
		case "digest":
			overrides.ComputeDigests = splitCSV(*digestPatterns)
		}
	})

	conf, configFileUsed, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "surveilr: %v\n", err)
		return exitUsageError
	}
	if configFileUsed != "" {
		logger.Debug("loaded config file", "path", configFileUsed)
	}
	if len(conf.RootPaths) == 0 {
		fmt.Fprintln(os.Stderr, "surveilr: at least one root path is required (--roots or root_paths in config)")
		return exitUsageError
	}

	target := conf.StateDBFsPath
	if v := os.Getenv("SURVEILR_STATEDB_FS_PATH"); v != "" && *statePath == "" {
		target = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := rssd.Open(ctx, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "surveilr: opening %s: %v\n", target, err)
		return exitRuntimeFail
	}
	defer func() { _ = db.Close() }()

	summary, err := agent.Run(ctx, db, agent.Config{
		Conf:           conf,
		DeviceName:     *deviceName,
		DeviceBoundary: *boundary,
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "surveilr: %v\n", err)
		return exitRuntimeFail
	}

	fmt.Printf("session %s: %d entries, %d new resources, %d deduped, %d exec failures\n",
		summary.SessionID, summary.EntriesVisited, summary.ResourcesNew, summary.ResourcesDedup, summary.ExecFailures)
	if summary.Cancelled {
		fmt.Println("session was cancelled; partial work committed")
	}
	return exitOK
}

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	targetPath := fs.String("target", "", "target RSSD path")
	emitOnly := fs.Bool("emit-sql-only", false, "print the merge plan instead of executing it")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	sources := fs.Args()
	if *targetPath == "" || len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "usage: surveilr merge --target <path> [--emit-sql-only] <source...>")
		return exitUsageError
	}

	ctx := context.Background()
	mode := merge.Execute
	if *emitOnly {
		mode = merge.EmitSQLOnly
	}

	db, err := rssd.Open(ctx, *targetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "surveilr: opening target %s: %v\n", *targetPath, err)
		return exitRuntimeFail
	}
	defer func() { _ = db.Close() }()

	results := merge.Run(ctx, db.DB, sources, mode)
	failed := false
	for _, r := range results {
		if r.Err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "surveilr: merging %s: %v\n", r.SourcePath, r.Err)
			continue
		}
		if mode == merge.EmitSQLOnly {
			for _, stmt := range r.Statements {
				fmt.Println(stmt)
			}
			continue
		}
		fmt.Printf("merged %s\n", r.SourcePath)
	}
	if failed {
		return exitRuntimeFail
	}
	return exitOK
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
