// Package behavior implements the frozen ingestion configuration (spec §4.4):
// root paths, ignore/digest/content/capturable regex sets, normalized once
// and saved so a session can snapshot it without depending on the row
// surviving.
package behavior

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/surveilr/surveilr/internal/digest"
	"github.com/surveilr/surveilr/internal/ids"
)

// Conf is the recognized configuration object (spec §6 table).
type Conf struct {
	RootPaths             []string          `json:"root_paths"`
	IgnoreRegexs          []string          `json:"ignore_regexs"`
	ComputeDigests        []string          `json:"compute_digests"`
	IngestContent         []string          `json:"ingest_content"`
	CapturableExecutables []string          `json:"capturable_executables"`
	CapturedFsExecSQL     []string          `json:"captured_fs_exec_sql"`
	NatureBind            map[string]string `json:"nature_bind,omitempty"`
	StateDBFsPath         string            `json:"state_db_fs_path"`
	DigestAlgorithm       digest.Algorithm  `json:"digest_algorithm,omitempty"`
	Stats                 bool              `json:"stats,omitempty"`
	DeterministicOrder    bool              `json:"deterministic_order,omitempty"`
	FollowSymlinks        bool              `json:"follow_symlinks,omitempty"`
	ConcurrencyCap        int               `json:"concurrency_cap,omitempty"`
	ExecTimeoutSeconds    int               `json:"exec_timeout_seconds,omitempty"`
}

// DefaultCapturableExecRegex names the "nature" capture group per spec §6
// ("Filename processing instruction"): foo.surveilr[json].sh.
const DefaultCapturableExecRegex = `surveilr\[(?P<nature>[^\]]*)\]`

// DefaultCapturableSQLRegex matches files whose stdout is SQL to run
// in-transaction (spec §6): *.surveilr-SQL.*
const DefaultCapturableSQLRegex = `\.surveilr-SQL\.`

// DefaultStateDBFsPath is used when neither an explicit path nor the
// SURVEILR_STATEDB_FS_PATH environment variable names one (spec §6).
const DefaultStateDBFsPath = "resource-surveillance.sqlite.db"

// Normalize fills in defaults and validates every regex compiles, returning
// the frozen configuration that gets recorded as conf_json. It never mutates
// its argument.
func Normalize(c Conf) (Conf, error) {
	out := c
	if out.StateDBFsPath == "" {
		out.StateDBFsPath = DefaultStateDBFsPath
	}
	if out.DigestAlgorithm == "" {
		out.DigestAlgorithm = digest.Default
	}
	switch out.DigestAlgorithm {
	case digest.SHA256, digest.HighwayHash:
	default:
		return Conf{}, fmt.Errorf("behavior: unknown digest_algorithm %q", out.DigestAlgorithm)
	}
	if len(out.CapturableExecutables) == 0 {
		out.CapturableExecutables = []string{DefaultCapturableExecRegex}
	}
	if len(out.CapturedFsExecSQL) == 0 {
		out.CapturedFsExecSQL = []string{DefaultCapturableSQLRegex}
	}
	if out.ConcurrencyCap <= 0 {
		out.ConcurrencyCap = 0 // 0 means "let the caller pick runtime.GOMAXPROCS(0)"
	}

	allRegexSets := [][]string{
		out.IgnoreRegexs, out.ComputeDigests, out.IngestContent,
		out.CapturableExecutables, out.CapturedFsExecSQL,
	}
	for _, set := range allRegexSets {
		for _, pattern := range set {
			if _, err := regexp.Compile(pattern); err != nil {
				return Conf{}, fmt.Errorf("behavior: invalid regex %q: %w", pattern, err)
			}
		}
	}
	return out, nil
}

// Behavior mirrors the behavior table (spec §3).
type Behavior struct {
	ID       string
	DeviceID string
	Name     string
	Conf     Conf
}

// Save upserts by (device_id, name): the behavior's conf_json is always
// replaced with the freshly normalized configuration (spec §4.4).
func Save(ctx context.Context, db *sql.DB, deviceID, name string, conf Conf) (*Behavior, error) {
	normalized, err := Normalize(conf)
	if err != nil {
		return nil, err
	}
	confJSON, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("behavior: marshaling conf: %w", err)
	}

	var id string
	err = db.QueryRowContext(ctx, `
		INSERT INTO behavior (id, device_id, name, conf_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id, name) DO UPDATE SET
			conf_json = excluded.conf_json,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, ids.New(), deviceID, name, string(confJSON)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("behavior: saving %s/%s: %w", deviceID, name, err)
	}

	return &Behavior{ID: id, DeviceID: deviceID, Name: name, Conf: normalized}, nil
}

// Load reads back a saved behavior by its row id.
func Load(ctx context.Context, db *sql.DB, id string) (*Behavior, error) {
	var b Behavior
	var confJSON string
	err := db.QueryRowContext(ctx, `
		SELECT id, device_id, name, conf_json FROM behavior WHERE id = ?
	`, id).Scan(&b.ID, &b.DeviceID, &b.Name, &confJSON)
	if err != nil {
		return nil, fmt.Errorf("behavior: loading %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(confJSON), &b.Conf); err != nil {
		return nil, fmt.Errorf("behavior: unmarshaling conf for %s: %w", id, err)
	}
	return &b, nil
}
