// vectrald is the process embedding vectordb.DB: it resolves configuration,
// opens (and replays) the durable store, and dispatches CLI subcommands or
// an interactive console against the result.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vectral/vectral/cmd/vectrald/cli"
	"github.com/vectral/vectral/internal/logging"
	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/internal/search"
	"github.com/vectral/vectral/internal/vectordb"
	"github.com/vectral/vectral/pkg/fs"
)

func main() {
	os.Exit(run(os.Args, os.Environ()))
}

// cliFlagNames maps each pflag long name to the Config json tag it
// overrides, for ChangedFlagNames.
var cliFlagNames = map[string]string{
	"data-dir":                        "data_dir",
	"max-dimension":                   "max_dimension",
	"max-points-per-collection":       "max_points_per_collection",
	"memory-budget-bytes":             "memory_budget_bytes",
	"strict-finite":                   "strict_finite",
	"max-topk-limit":                  "max_topk_limit",
	"checkpoint-interval":             "checkpoint_interval",
	"checkpoint-compact-after":        "checkpoint_compact_after",
	"async-checkpoints":               "async_checkpoints",
	"wal-sync-on-write":               "wal_sync_on_write",
	"wal-sync-every-n-writes":         "wal_sync_every_n_writes",
	"wal-sync-interval-seconds":       "wal_sync_interval_seconds",
	"wal-group-commit-max-batch":      "wal_group_commit_max_batch",
	"wal-group-commit-flush-delay-ms": "wal_group_commit_flush_delay_ms",
	"log-level":                       "log_level",
	"log-json":                        "log_json",
}

func run(args []string, env []string) int {
	globalFlags := flag.NewFlagSet("vectrald", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagListen := globalFlags.String("listen", ":7864", "Address for the 'serve' command's HTTP API")

	overrides := DefaultConfig()
	globalFlags.StringVar(&overrides.DataDir, "data-dir", overrides.DataDir, "WAL and snapshot directory")
	globalFlags.IntVar(&overrides.MaxDimension, "max-dimension", overrides.MaxDimension, "Upper bound accepted by collection create")
	globalFlags.IntVar(&overrides.MaxPointsPerCollection, "max-points-per-collection", overrides.MaxPointsPerCollection, "Hard cap per collection")
	globalFlags.Uint64Var(&overrides.MemoryBudgetBytes, "memory-budget-bytes", overrides.MemoryBudgetBytes, "0 disables; else upper bound across all vectors")
	globalFlags.BoolVar(&overrides.StrictFinite, "strict-finite", overrides.StrictFinite, "Default for new collections")
	globalFlags.IntVar(&overrides.MaxTopKLimit, "max-topk-limit", overrides.MaxTopKLimit, "Clamp for k")
	globalFlags.IntVar(&overrides.CheckpointInterval, "checkpoint-interval", overrides.CheckpointInterval, "Writes per checkpoint")
	globalFlags.IntVar(&overrides.CheckpointCompactAfter, "checkpoint-compact-after", overrides.CheckpointCompactAfter, "Incremental segments before snapshot compaction")
	globalFlags.BoolVar(&overrides.AsyncCheckpoints, "async-checkpoints", overrides.AsyncCheckpoints, "Schedule checkpoints off the write path")
	globalFlags.BoolVar(&overrides.WALSyncOnWrite, "wal-sync-on-write", overrides.WALSyncOnWrite, "Eager fsync")
	globalFlags.Uint64Var(&overrides.WALSyncEveryNWrites, "wal-sync-every-n-writes", overrides.WALSyncEveryNWrites, "Periodic fsync cadence")
	globalFlags.Uint64Var(&overrides.WALSyncIntervalSeconds, "wal-sync-interval-seconds", overrides.WALSyncIntervalSeconds, "Time-based fsync cadence")
	globalFlags.IntVar(&overrides.WALGroupCommitMaxBatch, "wal-group-commit-max-batch", overrides.WALGroupCommitMaxBatch, "Max writes per group commit")
	globalFlags.Uint64Var(&overrides.WALGroupCommitFlushDelayMs, "wal-group-commit-flush-delay-ms", overrides.WALGroupCommitFlushDelayMs, "Max wait to coalesce")
	globalFlags.StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "debug|info|warn|error")
	globalFlags.BoolVar(&overrides.LogJSON, "log-json", overrides.LogJSON, "Emit structured JSON log lines")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		workDir = wd
	}

	changed := cli.ChangedFlagNames(globalFlags, cliFlagNames)

	cfg, sources, err := LoadConfig(workDir, *flagConfig, overrides, changed, env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		ioHandle := cli.NewIO(os.Stdout, os.Stderr)
		cli.PrintUsage(ioHandle, cli.AllCommands(nil))
		ioHandle.Println("  serve                        Listen on --listen and serve the HTTP API")
		ioHandle.Println("  print-config                 Show resolved configuration")
		return 0
	}

	if commandAndArgs[0] == "print-config" {
		formatted, err := FormatConfig(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		fmt.Println(formatted)
		fmt.Println()
		fmt.Println("# sources")
		if sources.Global == "" && sources.Project == "" {
			fmt.Println("(defaults only)")
		} else {
			if sources.Global != "" {
				fmt.Println("global_config=" + sources.Global)
			}
			if sources.Project != "" {
				fmt.Println("project_config=" + sources.Project)
			}
		}
		return 0
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})

	db, err := openDB(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer db.Close()

	if commandAndArgs[0] == "serve" {
		logging.Logger.Info().Str("addr", *flagListen).Msg("listening")
		if err := NewServer(db).ListenAndServe(*flagListen); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		return 0
	}

	ioHandle := cli.NewIO(os.Stdout, os.Stderr)
	ctx := context.Background()

	return cli.Dispatch(ctx, ioHandle, db, commandAndArgs[0], commandAndArgs[1:])
}

func openDB(cfg Config) (*vectordb.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbCfg := vectordb.Config{
		Persistence: persistence.Config{
			SnapshotPath: cfg.snapshotPath(),
			WALPath:      cfg.walPath(),
			Sync: persistence.SyncPolicy{
				OnWrite:         cfg.WALSyncOnWrite,
				EveryNWrites:    cfg.WALSyncEveryNWrites,
				IntervalSeconds: cfg.WALSyncIntervalSeconds,
			},
			GroupCommit: persistence.GroupCommitPolicy{
				MaxBatch:   cfg.WALGroupCommitMaxBatch,
				FlushDelay: time.Duration(cfg.WALGroupCommitFlushDelayMs) * time.Millisecond,
			},
			CheckpointInterval:     cfg.CheckpointInterval,
			CheckpointCompactAfter: cfg.CheckpointCompactAfter,
			AsyncCheckpoints:       cfg.AsyncCheckpoints,
		},
		Resource: vectordb.ResourcePolicy{
			MaxDimension:           cfg.MaxDimension,
			MaxPointsPerCollection: cfg.MaxPointsPerCollection,
			MemoryBudgetBytes:      cfg.MemoryBudgetBytes,
			MaxTopKLimit:           cfg.MaxTopKLimit,
			StrictFiniteDefault:    cfg.StrictFinite,
		},
		Thresholds: search.ThresholdsFromEnv(),
	}

	return vectordb.Open(fs.NewReal(), dbCfg)
}
