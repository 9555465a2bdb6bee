// Command esctl inspects and maintains event streams and snapshots.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/app"
	"github.com/example/scorekeeper-events/internal/config"
	"github.com/example/scorekeeper-events/pkg/logger"
)

var (
	rt      *app.App
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "esctl",
	Short: "Inspect and maintain event streams",
	Long: `esctl works against the event log and snapshot store selected by
EVENT_STORE and SNAPSHOT_STORE (see .env).

It can:
  - validate the consistency of a stream
  - rebuild an aggregate at any version
  - take snapshots
  - migrate event payloads between schema versions`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log := logger.New(logger.Config{Level: level, Encoding: "console"})

		rt, err = app.New(cmd.Context(), cfg, log, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize backends: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if rt == nil {
			return nil
		}
		_ = rt.Logger.Sync()
		if err := rt.Close(); err != nil {
			rt.Logger.Warn("failed to close backends", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(typesCmd)
}
