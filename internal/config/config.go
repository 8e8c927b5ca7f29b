// Package config resolves the frozen behavior.Conf an ingestion run uses,
// layering config file, environment variable, and flag overrides the way
// the teacher's viper-based loader does (spec §6, "Configuration
// resolution").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/surveilr/surveilr/internal/behavior"
	"github.com/surveilr/surveilr/internal/digest"
)

// envPrefix is the prefix for every environment variable Load recognizes:
// each config key upper-cased behind it, e.g. SURVEILR_STATE_DB_FS_PATH,
// SURVEILR_ROOT_PATHS. SURVEILR_STATEDB_FS_PATH is not read here;
// cmd/surveilr applies it to the target path itself.
const envPrefix = "SURVEILR"

// Load resolves a normalized behavior.Conf from, in ascending precedence:
// built-in defaults, a discovered config file, SURVEILR_* environment
// variables, and finally explicit overrides (flags, already parsed by the
// caller). explicitConfigPath, if non-empty, is used verbatim instead of
// searching.
func Load(explicitConfigPath string, overrides behavior.Conf) (behavior.Conf, string, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configFileUsed := ""
	if explicitConfigPath != "" {
		v.SetConfigFile(explicitConfigPath)
		configFileUsed = explicitConfigPath
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
		configFileUsed = found
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileUsed != "" {
		if err := v.ReadInConfig(); err != nil {
			return behavior.Conf{}, "", fmt.Errorf("config: reading %s: %w", configFileUsed, err)
		}
	}

	c := readConf(v)
	applyOverrides(&c, overrides)

	normalized, err := behavior.Normalize(c)
	if err != nil {
		return behavior.Conf{}, "", err
	}
	return normalized, configFileUsed, nil
}

// findConfigFile walks up from the working directory looking for
// .surveilr/config.yaml, then falls back to the user config directory
// (spec §6, precedence mirrors the teacher's .beads/config.yaml search).
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; {
			candidate := filepath.Join(dir, ".surveilr", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(configDir, "surveilr", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// readConf pulls each recognized key out of v explicitly, the way the
// teacher's config package exposes named Get* accessors instead of a
// single struct unmarshal — it keeps the config keys (spec §6's table,
// snake_case) decoupled from behavior.Conf's Go field names.
func readConf(v *viper.Viper) behavior.Conf {
	return behavior.Conf{
		RootPaths:             v.GetStringSlice("root_paths"),
		IgnoreRegexs:          v.GetStringSlice("ignore_regexs"),
		ComputeDigests:        v.GetStringSlice("compute_digests"),
		IngestContent:         v.GetStringSlice("ingest_content"),
		CapturableExecutables: v.GetStringSlice("capturable_executables"),
		CapturedFsExecSQL:     v.GetStringSlice("captured_fs_exec_sql"),
		NatureBind:            v.GetStringMapString("nature_bind"),
		StateDBFsPath:         v.GetString("state_db_fs_path"),
		DigestAlgorithm:       digest.Algorithm(v.GetString("digest_algorithm")),
		Stats:                 v.GetBool("stats"),
		DeterministicOrder:    v.GetBool("deterministic_order"),
		FollowSymlinks:        v.GetBool("follow_symlinks"),
		ConcurrencyCap:        v.GetInt("concurrency_cap"),
		ExecTimeoutSeconds:    v.GetInt("exec_timeout_seconds"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_db_fs_path", behavior.DefaultStateDBFsPath)
	v.SetDefault("digest_algorithm", "sha256")
	v.SetDefault("capturable_executables", []string{behavior.DefaultCapturableExecRegex})
	v.SetDefault("captured_fs_exec_sql", []string{behavior.DefaultCapturableSQLRegex})
	v.SetDefault("follow_symlinks", false)
	v.SetDefault("deterministic_order", false)
	v.SetDefault("stats", false)
	v.SetDefault("concurrency_cap", 0)
	v.SetDefault("exec_timeout_seconds", 30)
}

// applyOverrides copies any non-zero field of o onto c — used for flag
// values the caller has already parsed and wants to take precedence over
// both the config file and the environment.
func applyOverrides(c *behavior.Conf, o behavior.Conf) {
	if len(o.RootPaths) > 0 {
		c.RootPaths = o.RootPaths
	}
	if len(o.IgnoreRegexs) > 0 {
		c.IgnoreRegexs = o.IgnoreRegexs
	}
	if len(o.ComputeDigests) > 0 {
		c.ComputeDigests = o.ComputeDigests
	}
	if len(o.IngestContent) > 0 {
		c.IngestContent = o.IngestContent
	}
	if len(o.CapturableExecutables) > 0 {
		c.CapturableExecutables = o.CapturableExecutables
	}
	if len(o.CapturedFsExecSQL) > 0 {
		c.CapturedFsExecSQL = o.CapturedFsExecSQL
	}
	if o.StateDBFsPath != "" {
		c.StateDBFsPath = o.StateDBFsPath
	}
	if o.DigestAlgorithm != "" {
		c.DigestAlgorithm = o.DigestAlgorithm
	}
	if o.ConcurrencyCap > 0 {
		c.ConcurrencyCap = o.ConcurrencyCap
	}
	if o.ExecTimeoutSeconds > 0 {
		c.ExecTimeoutSeconds = o.ExecTimeoutSeconds
	}
	if o.Stats {
		c.Stats = true
	}
	if o.DeterministicOrder {
		c.DeterministicOrder = true
	}
	if o.FollowSymlinks {
		c.FollowSymlinks = true
	}
}
