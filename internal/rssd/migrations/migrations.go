// Package migrations holds the RSSD's notebook cells: pending schema changes
// expressed as named, hashed code rather than ad hoc DDL (spec §4.2, §9).
package migrations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Cell is one code-notebook migration: a named, hashed piece of SQL applied
// within the bootstrap/migration transaction.
type Cell struct {
	NotebookName string
	CellName     string
	Description  string
	SQL          string
}

// Hash is the cell's interpretable_code_hash, recomputed from SQL rather than
// stored statically so edits to a cell are always detected.
func (c Cell) Hash() string {
	sum := sha256.Sum256([]byte(c.SQL))
	return hex.EncodeToString(sum[:])
}

// Apply executes the cell's SQL inside the caller's transaction.
func (c Cell) Apply(tx *sql.Tx) error {
	if _, err := tx.Exec(c.SQL); err != nil {
		return fmt.Errorf("migration %s/%s: %w", c.NotebookName, c.CellName, err)
	}
	return nil
}

// All is the ordered list of migration cells. New cells are appended here;
// existing cells are never edited once shipped, or their hash changes and
// they would be re-applied against databases that already have the old
// shape.
var All = []Cell{
	{
		NotebookName: "surveilr",
		CellName:     "fs_path_entry_diagnostics_index",
		Description:  "Index entries carrying a diagnostic so operators can audit unreadable paths quickly.",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_fs_path_entry_ur_status
    ON ingest_session_fs_path_entry(ur_status)
    WHERE ur_status IS NOT NULL;
`,
	},
	{
		NotebookName: "surveilr",
		CellName:     "uniform_resource_nature_index",
		Description:  "Index resources by nature for notebook queries that group by content type.",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_uniform_resource_nature
    ON uniform_resource(nature)
    WHERE nature IS NOT NULL;
`,
	},
}
