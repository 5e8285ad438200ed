package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/config"
	"github.com/kestrelkb/kestrel/internal/engine"
	"github.com/kestrelkb/kestrel/internal/logging"
	"github.com/kestrelkb/kestrel/internal/store"
)

var (
	flagProjectDir string
	flagDataDir    string
	flagDebug      bool

	eng        *engine.Context
	logCleanup func()
)

// noEngineCommands don't need a constructed engine.Context: they either
// print static info or (serve) build their own logging setup before the
// engine exists so stdout stays clear of anything but JSON-RPC.
var noEngineCommands = map[string]bool{
	"version": true,
	"help":    true,
	"serve":   true,
	"init":    true,
	"logs":    true,
}

// NewRootCmd builds the kestrel root command and registers every
// subcommand. Argument parsing here is intentionally thin: each
// subcommand maps its flags onto one internal/engine call and prints
// the result.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kestrel",
		Short: "A local-first hybrid search and capture engine for text corpora",
		Long: `kestrel indexes markdown, code, and other text collections into a
local BM25 + vector hybrid search index, lets you capture new notes
into a collection, tracks the link graph between documents, and
exposes all of it over MCP for assistant tool use.`,
		SilenceUsage:      true,
		PersistentPreRunE: rootPreRun,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rootPostRun(cmd)
		},
	}

	root.PersistentFlags().StringVar(&flagProjectDir, "project", "", "project root to load collections/config from (default: current directory)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the .kestrel data directory (default: <project>/.kestrel)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newSearchCmd(),
		newCaptureCmd(),
		newJobsCmd(),
		newGraphCmd(),
		newDoctorCmd(),
		newServeCmd(),
		newIndexCmd(),
		newStatsCmd(),
		newVersionCmd(),
		newLogsCmd(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func rootPreRun(cmd *cobra.Command, _ []string) error {
	if noEngineCommands[cmd.Name()] {
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = true
	if flagDebug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	logCleanup = cleanup

	projectDir := flagProjectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		projectDir = wd
	}
	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}

	cfg, err := config.Load(absProjectDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	var dataDir string
	if flagDataDir != "" {
		absDataDir, err := filepath.Abs(flagDataDir)
		if err != nil {
			return fmt.Errorf("resolve data directory: %w", err)
		}
		dataDir = absDataDir
	}

	builtEngine, err := engine.New(cmd.Context(), engine.Options{
		Config:  cfg,
		DataDir: dataDir,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	eng = builtEngine

	return syncConfiguredCollections(cmd.Context(), eng, cfg)
}

func rootPostRun(cmd *cobra.Command) error {
	if eng != nil {
		err := eng.Close(cmd.Context())
		eng = nil
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
		return err
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

// syncConfiguredCollections pushes the collections declared in the
// loaded config into the store, so a fresh checkout with only a
// .kestrel.yaml file immediately has the collections a `sync`/`search`
// call expects to find. Safe to call on every invocation: SyncCollections
// is a declarative replace, not an append.
func syncConfiguredCollections(ctx context.Context, eng *engine.Context, cfg *config.Config) error {
	if len(cfg.Collections) == 0 {
		return nil
	}
	cols := make([]store.Collection, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		cols = append(cols, store.Collection{
			Name:           c.Name,
			Root:           c.Root,
			Include:        c.Include,
			Exclude:        c.Exclude,
			PreSyncCommand: c.PreSyncCommand,
			VCSPull:        c.VCSPull,
			Active:         true,
		})
	}
	return eng.Store().SyncCollections(ctx, cols)
}
