package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/13rac1/bucketsync/internal/config"
	"github.com/13rac1/bucketsync/internal/doctor"
	"github.com/13rac1/bucketsync/internal/engine"
	"github.com/13rac1/bucketsync/internal/mcmirror"
	"github.com/13rac1/bucketsync/internal/output"
	"github.com/13rac1/bucketsync/internal/store"
	"github.com/13rac1/bucketsync/internal/transfer"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath        string
	defaultConfigPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bucketsync",
	Short:   "One-way incremental sync between a local directory and S3",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Long: `bucketsync mirrors a local directory into an S3-compatible bucket prefix
(up) or the bucket prefix into the local directory (down), transferring only
files whose size or content fingerprint differs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debug)
	},
}

var (
	jsonOutput bool
	debug      bool
	mirror     bool
	watch      watchInterval
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Sync the local directory into the bucket",
	Long: `Uploads every selected local file that is missing remotely or differs from
its remote copy. With --mirror, remote objects under the prefix that have no
local counterpart are deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, types.Up)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Sync the bucket into the local directory",
	Long: `Downloads every object under the prefix that is missing locally or differs
from the local copy. With --mirror, selected local files that have no remote
counterpart are deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, types.Down)
	},
}

var statusCmd = &cobra.Command{
	Use:       "status up|down",
	Short:     "Show what a sync would do without changing anything",
	Long:      `Builds the same plan a sync run would execute and prints it as a table.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(types.Up), string(types.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyFlags(cfg)

		st, err := newStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		e, err := engine.New(cfg, st, afero.NewOsFs())
		if err != nil {
			return err
		}

		dir := types.Direction(args[0])
		items, err := e.Plan(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("planning %s: %w", dir, err)
		}

		if jsonOutput {
			if err := output.PrintPlanJSON(dir, items, cfg); err != nil {
				return fmt.Errorf("printing JSON output: %w", err)
			}
			return nil
		}
		output.PrintPlan(dir, items)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate configuration and connectivity",
	Long: `Checks that the configuration is valid, the local directory exists,
and the bucket is reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var buckets store.BucketManager
		st, err := newStore(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			buckets = st
		}

		allPassed := doctor.RunChecks(cmd.Context(), cfg, configPath, buckets)
		if !allPassed {
			exitFunc(1)
		}
		return nil
	},
}

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get home directory: %v\n", err)
		homeDir = "~"
	}
	defaultConfigPath = filepath.Join(homeDir, ".bucketsync", "config.yaml")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	for _, c := range []*cobra.Command{upCmd, downCmd} {
		c.Flags().BoolVar(&mirror, "mirror", false, "delete extraneous items on the destination side")
		c.Flags().Var(&watch, "watch", "repeat the sync every N seconds (or a duration like 1m) until interrupted (minimum 1s)")
	}
	statusCmd.Flags().BoolVar(&mirror, "mirror", false, "include deletions in the plan")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
}

var exitFunc = os.Exit

// newStore builds the object store for the configured backend. Swapped in
// tests.
var newStore = func(ctx context.Context, cfg *types.Config) (store.Store, error) {
	switch cfg.S3.Backend {
	case types.BackendMinio:
		client, err := config.NewMinioClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating minio client: %w", err)
		}
		return store.NewMinio(client), nil
	default:
		client, err := config.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating S3 client: %w", err)
		}
		return store.NewS3(client, cfg.S3.Region), nil
	}
}

// newMcRunner is swapped in tests.
var newMcRunner = func() mcmirror.Runner { return mcmirror.ExecRunner{} }

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

// applyFlags lets command-line flags override the loaded config. --mirror
// only ever turns mirror mode on.
func applyFlags(cfg *types.Config) {
	if mirror {
		cfg.Sync.DeleteExtraneous = true
	}
}

// watchInterval is a duration flag that also accepts a bare number of
// seconds.
type watchInterval time.Duration

func (w *watchInterval) String() string { return time.Duration(*w).String() }

func (w *watchInterval) Type() string { return "interval" }

func (w *watchInterval) Set(s string) error {
	if secs, err := strconv.Atoi(s); err == nil {
		*w = watchInterval(time.Duration(secs) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid interval %q: want seconds or a duration like 30s", s)
	}
	*w = watchInterval(d)
	return nil
}

func newSynchronizer(ctx context.Context, cfg *types.Config, clock clockwork.Clock) (engine.Synchronizer, error) {
	if cfg.Sync.Strategy == types.StrategyMc {
		return mcmirror.New(cfg, newMcRunner(), clock), nil
	}

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, st, afero.NewOsFs(), engine.WithClock(clock))
}

func runSync(cmd *cobra.Command, dir types.Direction) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg)

	ctx := cmd.Context()
	clock := clockwork.NewRealClock()

	s, err := newSynchronizer(ctx, cfg, clock)
	if err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		summary, err := s.Sync(ctx, dir)
		// Aborted runs have nothing meaningful to summarize.
		if err != nil && !transfer.IsPartial(err) {
			return err
		}
		if perr := report(summary, cfg); perr != nil {
			return perr
		}
		return err
	}

	interval := time.Duration(watch)
	if interval <= 0 {
		return run(ctx)
	}

	slog.Info("watching", "dir", dir, "interval", max(interval, engine.MinWatchInterval))
	err = engine.Watch(ctx, clock, interval, run)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func report(summary types.Summary, cfg *types.Config) error {
	if jsonOutput {
		if err := output.PrintJSON(summary, cfg); err != nil {
			return fmt.Errorf("printing JSON output: %w", err)
		}
		return nil
	}
	output.PrintSummary(summary, debug)
	return nil
}

func loadConfig() (*types.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			isDefaultPath := configPath == defaultConfigPath
			if isDefaultPath {
				if err := config.CreateStarterConfig(configPath); err != nil {
					return nil, fmt.Errorf("creating starter config: %w", err)
				}
				printWelcomeMessage(configPath)
				exitFunc(0)
			}
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	return cfg, nil
}

func printWelcomeMessage(configPath string) {
	fmt.Println("Welcome to bucketsync!")
	fmt.Println()
	fmt.Printf("A starter configuration file has been created at:\n")
	fmt.Printf("  %s\n", configPath)
	fmt.Println()
	fmt.Println("Please edit this file and configure:")
	fmt.Println("  1. local.dir - The directory to sync")
	fmt.Println("  2. s3.bucket - Your bucket name")
	fmt.Println("  3. auth - Your credentials (or set BUCKETSYNC_ACCESS_KEY / BUCKETSYNC_SECRET_KEY)")
	fmt.Println()
	fmt.Println("For S3-compatible providers (MinIO, Backblaze B2, etc.):")
	fmt.Println("  - Set s3.endpoint to your provider's endpoint")
	fmt.Println("  - Set s3.backend: minio to use the MinIO client")
	fmt.Println()
	fmt.Println("After configuration, run:")
	fmt.Println("  bucketsync doctor       # Validate configuration")
	fmt.Println("  bucketsync status up    # Preview an upload")
	fmt.Println("  bucketsync up           # Upload the local directory")
	fmt.Println("  bucketsync down         # Download into the local directory")
}
