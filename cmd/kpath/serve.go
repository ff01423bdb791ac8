package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kpath-ai/kpath"
	"github.com/kpath-ai/kpath/infrastructure/api"
	apimiddleware "github.com/kpath-ai/kpath/infrastructure/api/middleware"
	"github.com/kpath-ai/kpath/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                     Server host to bind to (default: 0.0.0.0)
  PORT                     Server port to listen on (default: 8080)
  DATA_DIR                 Data directory (default: data)
  DB_URL                   Registry database URL (default: sqlite:///{data_dir}/registry.db)
  LOG_LEVEL                Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT               Log format: pretty, json (default: pretty)
  API_KEYS                 Comma-separated list of valid API keys
  SEED_FILE                Optional YAML registry seed loaded at startup

  EMBEDDING_BACKEND        Embedding backend: neural, lexical, remote (default: neural)
  EMBEDDING_DIM            Vector dimension for the lexical backend (default: 64)
  EMBEDDING_REMOTE_*       Remote embedding endpoint configuration
    BASE_URL               OpenAI-compatible base URL
    MODEL                  Embedding model identifier
    API_KEY                API key for authentication

  INDEX_DIR                Index snapshot directory (default: {data_dir}/indexes)
  QUERY_LRU_SIZE           Query embedding cache capacity (default: 1024)
  QUERY_TIMEOUT_MS         Per-query deadline in milliseconds (default: 30000)
  EMBED_QUEUE_DEPTH        Bounded embedding work queue depth (default: 256)
  EMBED_BATCH_SIZE         Texts per embedding batch on rebuild (default: 64)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// Flags take precedence over env vars.
	if host != "" {
		cfg = cfg.WithHost(host)
	}
	if port != 0 {
		cfg = cfg.WithPort(port)
	}

	logger := log.NewLogger(cfg)
	logger.Info("starting kpath",
		slog.String("version", version),
		slog.String("addr", cfg.Addr()),
		slog.String("backend", string(cfg.EmbeddingBackend())),
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore indexes from snapshots or schedule the first build.
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start discovery core: %w", err)
	}

	apiServer := api.NewAPIServer(client, cfg.APIKeys())
	router := apiServer.Router()

	// Apply custom middleware (MUST be done before MountRoutes).
	router.Use(apimiddleware.Logging(logger))

	apiServer.MountRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down server")
		cancel()
		if err := apiServer.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
