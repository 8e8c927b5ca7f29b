// Package merge implements the SQL ATTACH-based merge engine (spec §4.10):
// it attaches each source RSSD in turn and runs an INSERT OR IGNORE ...
// SELECT * per table, relying entirely on the unique constraints in
// internal/rssd's schema for dedup. It never reads or writes blob content
// directly.
package merge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// tables lists every table to merge, in dependency order so a row's
// foreign keys are always already present in target by the time it is
// inserted (spec §3).
var tables = []string{
	"device",
	"behavior",
	"ingest_session",
	"ingest_session_fs_path",
	"uniform_resource",
	"ingest_session_fs_path_entry",
	"uniform_resource_transform",
	"code_notebook_cell",
	"code_notebook_state",
}

// alias is the schema name each attached source gets; sources are merged
// one at a time so a fixed alias is safe to reuse.
const alias = "src"

// Mode selects whether Run executes the plan or only prints it.
type Mode int

const (
	// Execute runs the attach/insert/detach plan under one transaction per source.
	Execute Mode = iota
	// EmitSQLOnly returns the plan as text instead of running it.
	EmitSQLOnly
)

// Plan returns the SQL statements Run would execute for one source,
// suitable for printing to an operator in EmitSQLOnly mode (spec §4.10,
// "print the attach/insert/detach plan").
func Plan(sourcePath string) []string {
	stmts := make([]string, 0, len(tables)+2)
	stmts = append(stmts, fmt.Sprintf("ATTACH DATABASE %s AS %s;", quoteLiteral(sourcePath), alias))
	for _, t := range tables {
		stmts = append(stmts, fmt.Sprintf("INSERT OR IGNORE INTO %s SELECT * FROM %s.%s;", t, alias, t))
	}
	stmts = append(stmts, fmt.Sprintf("DETACH DATABASE %s;", alias))
	return stmts
}

// Result reports what happened merging one source.
type Result struct {
	SourcePath  string
	Statements  []string // populated for EmitSQLOnly; empty for Execute
	RowsByTable map[string]int64
	Err         error
}

// Run merges every source into target in order, either executing the plan
// (one transaction per source, per spec §4.10) or only emitting it.
func Run(ctx context.Context, target *sql.DB, sources []string, mode Mode) []Result {
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		if mode == EmitSQLOnly {
			results = append(results, Result{SourcePath: src, Statements: Plan(src)})
			continue
		}
		results = append(results, mergeOne(ctx, target, src))
	}
	return results
}

func mergeOne(ctx context.Context, target *sql.DB, sourcePath string) Result {
	res := Result{SourcePath: sourcePath, RowsByTable: make(map[string]int64)}

	tx, err := target.BeginTx(ctx, nil)
	if err != nil {
		res.Err = fmt.Errorf("merge: beginning transaction for %s: %w", sourcePath, err)
		return res
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE %s AS %s", quoteLiteral(sourcePath), alias)); err != nil {
		res.Err = fmt.Errorf("merge: attaching %s: %w", sourcePath, err)
		return res
	}

	for _, t := range tables {
		r, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT OR IGNORE INTO %s SELECT * FROM %s.%s", t, alias, t))
		if err != nil {
			res.Err = fmt.Errorf("merge: merging table %s from %s: %w", t, sourcePath, err)
			_, _ = tx.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", alias))
			return res
		}
		n, _ := r.RowsAffected()
		res.RowsByTable[t] = n
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", alias)); err != nil {
		res.Err = fmt.Errorf("merge: detaching %s: %w", sourcePath, err)
		return res
	}

	if err := tx.Commit(); err != nil {
		res.Err = fmt.Errorf("merge: committing merge of %s: %w", sourcePath, err)
	}
	return res
}

// quoteLiteral turns a filesystem path into a single-quoted SQL string
// literal, doubling any embedded quote.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
