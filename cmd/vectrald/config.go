package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default config file name, looked up relative to
// the working directory.
const ConfigFileName = ".vectral.json"

// Config holds the full knob table a running server reads at startup,
// plus the on-disk layout and logging knobs.
type Config struct {
	// DataDir holds the WAL (wal.jsonl), its incremental snapshot
	// segments, and the compacted snapshot (snapshot.json).
	DataDir string `json:"data_dir"`

	MaxDimension           int    `json:"max_dimension"`
	MaxPointsPerCollection int    `json:"max_points_per_collection"`
	MemoryBudgetBytes      uint64 `json:"memory_budget_bytes"`
	StrictFinite           bool   `json:"strict_finite"`
	MaxTopKLimit           int    `json:"max_topk_limit"`

	CheckpointInterval     int  `json:"checkpoint_interval"`
	CheckpointCompactAfter int  `json:"checkpoint_compact_after"`
	AsyncCheckpoints       bool `json:"async_checkpoints"`

	WALSyncOnWrite             bool   `json:"wal_sync_on_write"`
	WALSyncEveryNWrites        uint64 `json:"wal_sync_every_n_writes"`
	WALSyncIntervalSeconds     uint64 `json:"wal_sync_interval_seconds"`
	WALGroupCommitMaxBatch     int    `json:"wal_group_commit_max_batch"`
	WALGroupCommitFlushDelayMs uint64 `json:"wal_group_commit_flush_delay_ms"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

// ConfigSources tracks which config files were loaded, for print-config.
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:                    "./vectral-data",
		MaxDimension:               4096,
		MaxPointsPerCollection:     1_000_000,
		MemoryBudgetBytes:          0,
		StrictFinite:               true,
		MaxTopKLimit:               1000,
		CheckpointInterval:         32,
		CheckpointCompactAfter:     64,
		AsyncCheckpoints:           false,
		WALSyncOnWrite:             true,
		WALSyncEveryNWrites:        0,
		WALSyncIntervalSeconds:     0,
		WALGroupCommitMaxBatch:     16,
		WALGroupCommitFlushDelayMs: 0,
		LogLevel:                   "info",
		LogJSON:                    false,
	}
}

func (c Config) walPath() string      { return filepath.Join(c.DataDir, "wal.jsonl") }
func (c Config) snapshotPath() string { return filepath.Join(c.DataDir, "snapshot.json") }

// getGlobalConfigPath returns the path to the global config file, preferring
// $XDG_CONFIG_HOME/vectral/config.json over ~/.config/vectral/config.json.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "vectral", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vectral", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "vectral", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project/explicit config file, CLI
// overrides. changedFlags holds the json tag names the caller explicitly
// set on the command line, so a zero-valued override (e.g. --strict-finite=
// false) is distinguishable from "not passed".
func LoadConfig(
	workDir, configPath string, overrides Config, changedFlags map[string]bool, env []string,
) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	cfg = applyOverrides(cfg, overrides, changedFlags)

	if err := validateConfig(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["data_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, errWALPathEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["data_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errWALPathEmpty)
	}

	return cfg, cfgFile, nil
}

// loadConfigFile loads a JSONC config file. If mustExist is false, a
// missing file returns a zero Config with loaded=false rather than an
// error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["data_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["data_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

// mergeConfig overlays onto base every field overlay sets to a non-zero
// value. A zero field in overlay means "not set" and keeps the lower
// layer's value (0/false is a legitimate
// setting only at the DefaultConfig layer).
func mergeConfig(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.MaxDimension != 0 {
		base.MaxDimension = overlay.MaxDimension
	}
	if overlay.MaxPointsPerCollection != 0 {
		base.MaxPointsPerCollection = overlay.MaxPointsPerCollection
	}
	if overlay.MemoryBudgetBytes != 0 {
		base.MemoryBudgetBytes = overlay.MemoryBudgetBytes
	}
	if overlay.MaxTopKLimit != 0 {
		base.MaxTopKLimit = overlay.MaxTopKLimit
	}
	if overlay.CheckpointInterval != 0 {
		base.CheckpointInterval = overlay.CheckpointInterval
	}
	if overlay.CheckpointCompactAfter != 0 {
		base.CheckpointCompactAfter = overlay.CheckpointCompactAfter
	}
	if overlay.WALSyncEveryNWrites != 0 {
		base.WALSyncEveryNWrites = overlay.WALSyncEveryNWrites
	}
	if overlay.WALSyncIntervalSeconds != 0 {
		base.WALSyncIntervalSeconds = overlay.WALSyncIntervalSeconds
	}
	if overlay.WALGroupCommitMaxBatch != 0 {
		base.WALGroupCommitMaxBatch = overlay.WALGroupCommitMaxBatch
	}
	if overlay.WALGroupCommitFlushDelayMs != 0 {
		base.WALGroupCommitFlushDelayMs = overlay.WALGroupCommitFlushDelayMs
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	// Bool knobs: a config file overlay always takes the lower layer's
	// strict/sync/async/json flags at face value, since "false" is
	// indistinguishable from "unset" without raw-map inspection, and
	// these four are the only bools in the surface.
	base.StrictFinite = overlay.StrictFinite || base.StrictFinite
	base.WALSyncOnWrite = overlay.WALSyncOnWrite || base.WALSyncOnWrite
	base.AsyncCheckpoints = overlay.AsyncCheckpoints || base.AsyncCheckpoints
	base.LogJSON = overlay.LogJSON || base.LogJSON

	return base
}

// applyOverrides applies CLI flag values named in changedFlags (by json
// tag) onto cfg, taking overlay values verbatim including zero/false.
func applyOverrides(cfg, overlay Config, changedFlags map[string]bool) Config {
	if changedFlags["data_dir"] {
		cfg.DataDir = overlay.DataDir
	}
	if changedFlags["max_dimension"] {
		cfg.MaxDimension = overlay.MaxDimension
	}
	if changedFlags["max_points_per_collection"] {
		cfg.MaxPointsPerCollection = overlay.MaxPointsPerCollection
	}
	if changedFlags["memory_budget_bytes"] {
		cfg.MemoryBudgetBytes = overlay.MemoryBudgetBytes
	}
	if changedFlags["strict_finite"] {
		cfg.StrictFinite = overlay.StrictFinite
	}
	if changedFlags["max_topk_limit"] {
		cfg.MaxTopKLimit = overlay.MaxTopKLimit
	}
	if changedFlags["checkpoint_interval"] {
		cfg.CheckpointInterval = overlay.CheckpointInterval
	}
	if changedFlags["checkpoint_compact_after"] {
		cfg.CheckpointCompactAfter = overlay.CheckpointCompactAfter
	}
	if changedFlags["async_checkpoints"] {
		cfg.AsyncCheckpoints = overlay.AsyncCheckpoints
	}
	if changedFlags["wal_sync_on_write"] {
		cfg.WALSyncOnWrite = overlay.WALSyncOnWrite
	}
	if changedFlags["wal_sync_every_n_writes"] {
		cfg.WALSyncEveryNWrites = overlay.WALSyncEveryNWrites
	}
	if changedFlags["wal_sync_interval_seconds"] {
		cfg.WALSyncIntervalSeconds = overlay.WALSyncIntervalSeconds
	}
	if changedFlags["wal_group_commit_max_batch"] {
		cfg.WALGroupCommitMaxBatch = overlay.WALGroupCommitMaxBatch
	}
	if changedFlags["wal_group_commit_flush_delay_ms"] {
		cfg.WALGroupCommitFlushDelayMs = overlay.WALGroupCommitFlushDelayMs
	}
	if changedFlags["log_level"] {
		cfg.LogLevel = overlay.LogLevel
	}
	if changedFlags["log_json"] {
		cfg.LogJSON = overlay.LogJSON
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return errWALPathEmpty
	}

	return nil
}

// FormatConfig returns cfg as formatted JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
