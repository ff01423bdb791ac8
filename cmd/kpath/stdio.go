package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpath-ai/kpath"
	"github.com/kpath-ai/kpath/internal/log"
	"github.com/kpath-ai/kpath/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants discover registered services and tools through the
discover_services, discover_tools, and get_tool_details MCP tools.
Configuration is loaded from environment variables and .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to stderr.
	logger := log.NewLoggerWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
	logger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

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

	if err := client.Start(context.Background()); err != nil {
		return fmt.Errorf("start discovery core: %w", err)
	}

	mcpServer := mcp.NewServer(client.Search, version, logger)
	return mcpServer.ServeStdio()
}
