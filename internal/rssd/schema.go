// Package rssd owns the Resource Surveillance State Database: its DDL, its
// self-describing code-notebook cells, and the bootstrap/migration sequence
// that brings a SQLite file up to the current schema (spec §4.2).
package rssd

// schema is executed verbatim inside the bootstrap transaction the first
// time an RSSD file is opened. Every later change is expressed as a
// migration cell instead, never by editing this string in place, so that
// the notebook stays the single source of truth for "what shape is this
// database" (spec §9, "in-database code").
const schema = `
-- Device: the host a session ran on. Identity is (name, state, boundary).
CREATE TABLE IF NOT EXISTS device (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'SINGLETON',
    boundary TEXT NOT NULL,
    segmentation TEXT CHECK (segmentation IS NULL OR json_valid(segmentation)),
    sysinfo TEXT CHECK (sysinfo IS NULL OR json_valid(sysinfo)),
    elaboration TEXT CHECK (elaboration IS NULL OR json_valid(elaboration)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (name, state, boundary)
);

-- Behavior: the frozen, fully-resolved ingestion configuration for a device.
CREATE TABLE IF NOT EXISTS behavior (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL REFERENCES device(id),
    name TEXT NOT NULL,
    conf_json TEXT NOT NULL CHECK (json_valid(conf_json)),
    governance TEXT CHECK (governance IS NULL OR json_valid(governance)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (device_id, name)
);

-- Ingest session: one ingestion run. Immutable once finished_at is set.
CREATE TABLE IF NOT EXISTS ingest_session (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL REFERENCES device(id),
    behavior_id TEXT REFERENCES behavior(id),
    behavior_json TEXT CHECK (behavior_json IS NULL OR json_valid(behavior_json)),
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    elaboration TEXT CHECK (elaboration IS NULL OR json_valid(elaboration)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (device_id, created_at)
);

CREATE INDEX IF NOT EXISTS idx_ingest_session_device ON ingest_session(device_id);

-- One row per root path declared for a session.
CREATE TABLE IF NOT EXISTS ingest_session_fs_path (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES ingest_session(id),
    root_path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (session_id, root_path, created_at)
);

CREATE INDEX IF NOT EXISTS idx_ingest_session_fs_path_session ON ingest_session_fs_path(session_id);

-- Uniform resource: a content-addressed record of something observed.
-- Dedup key: (device_id, content_digest, uri, size_bytes, last_modified_at).
CREATE TABLE IF NOT EXISTS uniform_resource (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL REFERENCES device(id),
    session_id TEXT NOT NULL REFERENCES ingest_session(id),
    path_id TEXT NOT NULL REFERENCES ingest_session_fs_path(id),
    uri TEXT NOT NULL,
    content_digest TEXT NOT NULL DEFAULT '-',
    content BLOB,
    nature TEXT,
    size_bytes INTEGER,
    last_modified_at DATETIME,
    content_fm_body_attrs TEXT CHECK (content_fm_body_attrs IS NULL OR json_valid(content_fm_body_attrs)),
    frontmatter TEXT CHECK (frontmatter IS NULL OR json_valid(frontmatter)),
    elaboration TEXT CHECK (elaboration IS NULL OR json_valid(elaboration)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (device_id, content_digest, uri, size_bytes, last_modified_at)
);

CREATE INDEX IF NOT EXISTS idx_uniform_resource_session ON uniform_resource(session_id);
CREATE INDEX IF NOT EXISTS idx_uniform_resource_digest ON uniform_resource(content_digest);

-- One row per visit: always inserted, never deduplicated.
CREATE TABLE IF NOT EXISTS ingest_session_fs_path_entry (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES ingest_session(id),
    path_id TEXT NOT NULL REFERENCES ingest_session_fs_path(id),
    uniform_resource_id TEXT REFERENCES uniform_resource(id),
    file_path_abs TEXT NOT NULL,
    file_path_rel_parent TEXT NOT NULL,
    file_path_rel TEXT NOT NULL,
    file_basename TEXT NOT NULL,
    file_extn TEXT,
    captured_executable TEXT CHECK (captured_executable IS NULL OR json_valid(captured_executable)),
    ur_status TEXT,
    ur_diagnostics TEXT CHECK (ur_diagnostics IS NULL OR json_valid(ur_diagnostics)),
    ur_transformations TEXT CHECK (ur_transformations IS NULL OR json_valid(ur_transformations)),
    elaboration TEXT CHECK (elaboration IS NULL OR json_valid(elaboration)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log))
);

CREATE INDEX IF NOT EXISTS idx_fs_path_entry_session ON ingest_session_fs_path_entry(session_id);
CREATE INDEX IF NOT EXISTS idx_fs_path_entry_ur ON ingest_session_fs_path_entry(uniform_resource_id);

-- A derived view of a resource (e.g. HTML extracted to JSON).
CREATE TABLE IF NOT EXISTS uniform_resource_transform (
    id TEXT PRIMARY KEY,
    uniform_resource_id TEXT NOT NULL REFERENCES uniform_resource(id),
    uri TEXT NOT NULL,
    content_digest TEXT NOT NULL DEFAULT '-',
    content BLOB,
    nature TEXT,
    size_bytes INTEGER,
    elaboration TEXT CHECK (elaboration IS NULL OR json_valid(elaboration)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (uniform_resource_id, content_digest, nature, size_bytes)
);

-- Code notebook: in-database SQL/code the agent itself uses, exposed via
-- the notebooks interface. Schema changes are notebook cells, not code.
CREATE TABLE IF NOT EXISTS code_notebook_cell (
    id TEXT PRIMARY KEY,
    notebook_name TEXT NOT NULL,
    cell_name TEXT NOT NULL,
    interpretable_code TEXT NOT NULL,
    interpretable_code_hash TEXT NOT NULL,
    kernel TEXT NOT NULL DEFAULT 'SQL',
    description TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT 'UNKNOWN',
    updated_at DATETIME,
    updated_by TEXT,
    deleted_at DATETIME,
    deleted_by TEXT,
    activity_log TEXT CHECK (activity_log IS NULL OR json_valid(activity_log)),
    UNIQUE (notebook_name, cell_name)
);

-- Migration-status: the hash of the cell last applied, per cell name.
CREATE TABLE IF NOT EXISTS code_notebook_state (
    notebook_name TEXT NOT NULL,
    cell_name TEXT NOT NULL,
    applied_code_hash TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (notebook_name, cell_name)
);
`
