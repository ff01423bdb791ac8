// Package kpath provides a semantic discovery service for registered
// services, agents, and their tools.
//
// KPATH embeds the registry's service and tool descriptions into a pair of
// in-memory vector indexes and answers natural-language discovery queries
// over them: "which service can book a flight", "which tool parses
// invoices". Results are ranked, filtered, and shaped into one of three
// response sizes.
//
// Basic usage:
//
//	client, err := kpath.New(
//	    kpath.WithDatabaseURL("sqlite:///data/kpath.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	envelope, err := client.Search.Search(ctx, "cli",
//	    search.NewQuery("book a flight to Paris",
//	        search.WithMode(search.ModeAgentsAndTools),
//	        search.WithLimit(5),
//	    ),
//	)
package kpath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kpath-ai/kpath/application/service"
	"github.com/kpath-ai/kpath/domain/search"
	"github.com/kpath-ai/kpath/infrastructure/index"
	"github.com/kpath-ai/kpath/infrastructure/persistence"
	"github.com/kpath-ai/kpath/infrastructure/provider"
	"github.com/kpath-ai/kpath/internal/config"
	"github.com/kpath-ai/kpath/internal/database"
	"github.com/kpath-ai/kpath/internal/log"
)

// Version is the release version of the kpath module.
const Version = "0.1.0"

// searchBasePath is the mounted route prefix used for detail links.
const searchBasePath = "/api/v1/search"

// Client is the main entry point for the kpath library.
//
// Access the discovery surface via the Search field:
//
//	client.Search.Search(ctx, callerID, query)
//	client.Search.Status()
type Client struct {
	// Search is the discovery facade: queries, similar-service lookups,
	// tool detail projections, status, and rebuild triggers.
	Search *service.Facade

	manager  *service.Manager
	registry persistence.RegistryStore
	db       database.Database
	config   config.AppConfig
	logger   *slog.Logger
	closed   atomic.Bool
}

// New creates a new Client with the given options. Configuration defaults
// come from the environment; options override it. The client is passive
// until Start is called.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}

	cfg := cc.appConfig
	if !cc.appConfigSet {
		loaded, err := config.LoadConfig(cc.envPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg = cc.overrides.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	logger := cc.logger
	if logger == nil {
		logger = log.NewLogger(cfg)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DBURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.AutoMigrate(ctx, db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	registryStore := persistence.NewRegistryStore(db)

	if cfg.SeedFile() != "" {
		if err := registryStore.LoadSeed(ctx, cfg.SeedFile(), logger); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("load seed: %w", err), errClose)
		}
	}

	embedder, fitter, err := provider.New(cfg, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("create embedding backend: %w", err), errClose)
	}

	snapshots := index.NewStore(cfg.IndexDir())
	newIndex := func() search.Index {
		return index.NewFlat(embedder.Identifier())
	}

	registerer := cc.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := service.NewMetrics(registerer)

	manager := service.NewManager(
		registryStore,
		embedder,
		fitter,
		snapshots,
		newIndex,
		cfg.EmbedBatchSize(),
		metrics,
		logger,
	)

	cached := provider.NewCached(embedder, cfg.QueryLRUSize())
	planner := service.NewPlanner(manager, registryStore, cached, logger)
	shaper := service.NewShaper(registryStore, searchBasePath)
	facade := service.NewFacade(planner, shaper, manager, metrics, logger, cfg.QueryTimeout())

	return &Client{
		Search:   facade,
		manager:  manager,
		registry: registryStore,
		db:       db,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Start restores the vector indexes from their snapshots, or schedules a
// background rebuild when no compatible snapshot exists. Queries issued
// before the first build completes get an IndexNotReady error.
func (c *Client) Start(ctx context.Context) error {
	return c.manager.Start(ctx)
}

// Rebuild runs a full index rebuild synchronously. Concurrent callers
// coalesce onto one rebuild.
func (c *Client) Rebuild(ctx context.Context) error {
	return c.manager.BuildAll(ctx)
}

// UpsertService re-embeds one service after a registry change. A service
// missing from the registry is removed from the index.
func (c *Client) UpsertService(ctx context.Context, id int64) error {
	return c.manager.UpsertService(ctx, id)
}

// UpsertTool re-embeds one tool after a registry change. A tool missing
// from the registry is removed from the index.
func (c *Client) UpsertTool(ctx context.Context, id int64) error {
	return c.manager.UpsertTool(ctx, id)
}

// Registry returns the registry store for service and tool CRUD.
func (c *Client) Registry() persistence.RegistryStore {
	return c.registry
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Config returns the resolved application configuration.
func (c *Client) Config() config.AppConfig {
	return c.config
}

// Close releases the client's resources. It is safe to call twice.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}
