package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/config"
	"github.com/kestrelkb/kestrel/internal/engine"
	"github.com/kestrelkb/kestrel/internal/logging"
	"github.com/kestrelkb/kestrel/internal/mcpadapter"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Exposes search, capture, sync, and graph as MCP tools (spec §6) over
the given transport. Only "stdio" is supported: MCP requires stdout
for JSON-RPC exclusively, so all logging here goes to a file, never
stderr or stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", `transport to serve on (only "stdio" is supported)`)

	return cmd
}

func runServe(cmd *cobra.Command, transport string) error {
	ctx := cmd.Context()

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()

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
		dataDir, err = filepath.Abs(flagDataDir)
		if err != nil {
			return fmt.Errorf("resolve data directory: %w", err)
		}
	}

	builtEngine, err := engine.New(ctx, engine.Options{
		Config:  cfg,
		DataDir: dataDir,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() { _ = builtEngine.Close(ctx) }()

	if err := syncConfiguredCollections(ctx, builtEngine, cfg); err != nil {
		return fmt.Errorf("sync configured collections: %w", err)
	}

	if transport == "" {
		transport = cfg.Server.Transport
	}

	server := mcpadapter.New(builtEngine, mcpadapter.WithLogger(logger))
	return server.Serve(ctx, transport)
}
