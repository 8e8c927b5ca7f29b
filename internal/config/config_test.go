package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/surveilr/surveilr/internal/behavior"
)

func TestLoadAppliesDefaults(t *testing.T) {
	c, used, err := Load("", behavior.Conf{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != "" {
		t.Fatalf("expected no config file to be found, got %q", used)
	}
	if c.StateDBFsPath != behavior.DefaultStateDBFsPath {
		t.Fatalf("expected default state db path, got %q", c.StateDBFsPath)
	}
	if c.DigestAlgorithm == "" {
		t.Fatalf("expected a default digest algorithm")
	}
}

func TestLoadReadsExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	const yaml = "root_paths:\n  - /data\nstate_db_fs_path: custom.sqlite.db\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	c, used, err := Load(path, behavior.Conf{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Fatalf("expected config file %q to be used, got %q", path, used)
	}
	if len(c.RootPaths) != 1 || c.RootPaths[0] != "/data" {
		t.Fatalf("expected root_paths from file, got %v", c.RootPaths)
	}
	if c.StateDBFsPath != "custom.sqlite.db" {
		t.Fatalf("expected state_db_fs_path from file, got %q", c.StateDBFsPath)
	}
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("state_db_fs_path: from-file.sqlite.db\n"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("SURVEILR_STATE_DB_FS_PATH", "from-env.sqlite.db")

	c, _, err := Load(path, behavior.Conf{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StateDBFsPath != "from-env.sqlite.db" {
		t.Fatalf("expected env var to override config file, got %q", c.StateDBFsPath)
	}
}

func TestLoadFlagOverridesTakePrecedence(t *testing.T) {
	t.Setenv("SURVEILR_STATE_DB_FS_PATH", "from-env.sqlite.db")

	c, _, err := Load("", behavior.Conf{StateDBFsPath: "from-flag.sqlite.db"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StateDBFsPath != "from-flag.sqlite.db" {
		t.Fatalf("expected flag override to win, got %q", c.StateDBFsPath)
	}
}
