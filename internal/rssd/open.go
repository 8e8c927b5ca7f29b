package rssd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // pure-Go SQLite engine, no cgo

	"github.com/surveilr/surveilr/internal/ids"
	"github.com/surveilr/surveilr/internal/rssd/migrations"
)

// DB wraps the single connection a run owns. Per spec §3 "Ownership" the
// RSSD file is the exclusive writer target of one run; a *sql.DB here is
// configured to hold exactly one open connection so SQLite's single-writer
// semantics are honored without additional locking inside the process.
type DB struct {
	*sql.DB
	Path string
}

// Open brings path up to the current schema and returns a ready connection.
// If the bootstrap marker (code_notebook_cell table) is absent, the bundled
// DDL runs once inside a transaction and the notebook is seeded (spec §4.2).
// Otherwise, pending migration cells are applied.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("rssd: open %s: %w", path, err)
	}
	// One connection: the RSSD file is the single long-lived owned resource
	// of a run, and this is its exclusive writer (spec §3, §5).
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, Path: path}

	if err := db.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("rssd: ping %s: %w", path, err)
	}

	bootstrapped, err := db.hasBootstrapMarker(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("rssd: checking bootstrap marker: %w", err)
	}

	if !bootstrapped {
		if err := db.bootstrap(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("rssd: bootstrap: %w", err)
		}
		return db, nil
	}

	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("rssd: migrate: %w", err)
	}
	return db, nil
}

// connString adds the pragmas every RSSD connection needs: WAL so a crash
// mid-session leaves the file in its last-committed state (spec §4.9,
// "Persisted state layout"), and a busy timeout so contending readers never
// see SQLITE_BUSY spuriously.
func connString(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
}

func (db *DB) hasBootstrapMarker(ctx context.Context) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'code_notebook_cell'`,
	).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

func (db *DB) bootstrap(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("executing bundled DDL: %w", err)
	}

	// Seed the notebook: every migration cell is also a permanent row in
	// code_notebook_cell, applied immediately on a fresh database.
	for _, cell := range migrations.All {
		if err := cell.Apply(tx); err != nil {
			return err
		}
		if err := recordApplied(ctx, tx, cell); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// migrate runs any pending migration cells whose hash differs from the last
// applied hash for that cell name (spec §4.2).
func (db *DB) migrate(ctx context.Context) error {
	applied := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT notebook_name, cell_name, applied_code_hash FROM code_notebook_state`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var nb, cell, hash string
		if err := rows.Scan(&nb, &cell, &hash); err != nil {
			_ = rows.Close()
			return err
		}
		applied[nb+"/"+cell] = hash
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	pending := false
	for _, cell := range migrations.All {
		key := cell.NotebookName + "/" + cell.CellName
		if applied[key] == cell.Hash() {
			continue
		}
		pending = true
		if err := cell.Apply(tx); err != nil {
			return err
		}
		if err := recordApplied(ctx, tx, cell); err != nil {
			return err
		}
	}
	if !pending {
		return nil
	}
	return tx.Commit()
}

func recordApplied(ctx context.Context, tx *sql.Tx, cell migrations.Cell) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO code_notebook_cell
			(id, notebook_name, cell_name, interpretable_code, interpretable_code_hash, kernel, description)
		VALUES (?, ?, ?, ?, ?, 'SQL', ?)
		ON CONFLICT(notebook_name, cell_name) DO UPDATE SET
			interpretable_code = excluded.interpretable_code,
			interpretable_code_hash = excluded.interpretable_code_hash,
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP
	`, ids.New(), cell.NotebookName, cell.CellName, cell.SQL, cell.Hash(), cell.Description)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO code_notebook_state (notebook_name, cell_name, applied_code_hash, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(notebook_name, cell_name) DO UPDATE SET
			applied_code_hash = excluded.applied_code_hash,
			applied_at = excluded.applied_at
	`, cell.NotebookName, cell.CellName, cell.Hash(), time.Now().UTC())
	return err
}
