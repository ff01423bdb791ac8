package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kpath-ai/kpath"
	"github.com/kpath-ai/kpath/internal/log"
)

func rebuildCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector indexes offline",
		Long: `Rebuild both vector indexes from the registry and persist their
snapshots, then exit. Useful for pre-warming a deployment or recovering from
a corrupt snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runRebuild(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	logger := log.NewLogger(cfg)

	client, err := kpath.New(
		kpath.WithConfig(cfg),
		kpath.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create kpath client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close kpath client", slog.Any("error", err))
		}
	}()

	ctx := context.Background()
	start := time.Now()
	if err := client.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild indexes: %w", err)
	}

	status := client.Search.Status()
	fmt.Printf("rebuilt %d services and %d tools with %s in %s\n",
		status.ServiceCount(),
		status.ToolCount(),
		status.Model(),
		time.Since(start).Round(time.Millisecond),
	)
	return nil
}
