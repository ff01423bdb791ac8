package persistence

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/registry"
	"github.com/kpath-ai/kpath/internal/database"
)

func newTestStore(t *testing.T) RegistryStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, "sqlite:///"+filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, AutoMigrate(ctx, db))
	return NewRegistryStore(db)
}

func TestRegistryStore_SaveServiceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc := registry.NewService(0, "flight-booker",
		registry.WithDescription("books flights"),
		registry.WithStatus(registry.StatusActive),
		registry.WithToolType("api"),
		registry.WithEndpoint("https://flights.example.com"),
		registry.WithVersion("2.1.0"),
		registry.WithInteractionModes("sync", "async"),
		registry.WithAuth("api_key", map[string]any{"header": "X-Key"}),
		registry.WithOrchestrationMetadata(map[string]any{"max_parallel": float64(3)}),
		registry.WithCapabilities(
			registry.NewCapability(0, "booking", "reserve seats").
				WithSchemas(map[string]any{"seat": "string"}, nil),
		),
		registry.WithDomains("travel", "payments"),
	)

	saved, err := store.SaveService(ctx, svc)
	require.NoError(t, err)
	require.NotZero(t, saved.ID())

	got, err := store.Service(ctx, saved.ID())
	require.NoError(t, err)
	require.Equal(t, "flight-booker", got.Name())
	require.Equal(t, "books flights", got.Description())
	require.Equal(t, "api", got.ToolType())
	require.Equal(t, []string{"sync", "async"}, got.InteractionModes())
	require.Equal(t, map[string]any{"header": "X-Key"}, got.AuthConfig())
	require.Equal(t, map[string]any{"max_parallel": float64(3)}, got.OrchestrationMetadata())
	require.ElementsMatch(t, []string{"travel", "payments"}, got.Domains())

	caps := got.Capabilities()
	require.Len(t, caps, 1)
	require.Equal(t, "booking", caps[0].Name())
	require.Equal(t, map[string]any{"seat": "string"}, caps[0].InputSchema())
}

func TestRegistryStore_UpdateReplacesCapabilitiesAndDomains(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveService(ctx, registry.NewService(0, "svc",
		registry.WithCapabilities(registry.NewCapability(0, "old", "")),
		registry.WithDomains("a", "b"),
	))
	require.NoError(t, err)

	_, err = store.SaveService(ctx, registry.NewService(saved.ID(), "svc",
		registry.WithCapabilities(registry.NewCapability(0, "new", "")),
		registry.WithDomains("c"),
	))
	require.NoError(t, err)

	got, err := store.Service(ctx, saved.ID())
	require.NoError(t, err)
	require.Len(t, got.Capabilities(), 1)
	require.Equal(t, "new", got.Capabilities()[0].Name())
	require.Equal(t, []string{"c"}, got.Domains())
}

func TestRegistryStore_ActiveServicesExcludesInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveService(ctx, registry.NewService(0, "active-svc"))
	require.NoError(t, err)
	_, err = store.SaveService(ctx, registry.NewService(0, "retired-svc",
		registry.WithStatus(registry.StatusDeprecated)))
	require.NoError(t, err)

	services, err := store.ActiveServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "active-svc", services[0].Name())

	_, err = store.Service(ctx, services[0].ID()+1)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistryStore_SaveToolRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "flight-booker"))
	require.NoError(t, err)

	tool := registry.NewTool(0, svc.ID(), svc.Name(), "book_flight",
		registry.WithToolDescription("reserves a seat"),
		registry.WithInputSchema(map[string]any{"destination": "string"}),
		registry.WithExamples(registry.NewKeyedExamples(map[string]any{
			"one_way": map[string]any{"destination": "LIS"},
		})),
		registry.WithToolVersion("1.2.0"),
	)
	saved, err := store.SaveTool(ctx, tool)
	require.NoError(t, err)
	require.NotZero(t, saved.ID())

	got, err := store.Tool(ctx, saved.ID())
	require.NoError(t, err)
	require.Equal(t, "book_flight", got.Name())
	require.Equal(t, svc.ID(), got.ServiceID())
	require.Equal(t, "flight-booker", got.ServiceName())
	require.Equal(t, map[string]any{"destination": "string"}, got.InputSchema())
	require.Equal(t, "1.2.0", got.Version())

	examples := got.Examples()
	require.False(t, examples.IsEmpty())
	require.Equal(t, []string{"one_way"}, examples.Keys())
}

func TestRegistryStore_ToolOfInactiveServiceNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "retired",
		registry.WithStatus(registry.StatusInactive)))
	require.NoError(t, err)

	tool, err := store.SaveTool(ctx, registry.NewTool(0, svc.ID(), svc.Name(), "t"))
	require.NoError(t, err)

	_, err = store.Tool(ctx, tool.ID())
	require.ErrorIs(t, err, registry.ErrNotFound)

	tools, err := store.ActiveTools(ctx)
	require.NoError(t, err)
	require.Empty(t, tools)
}

func TestRegistryStore_InactiveToolNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "svc"))
	require.NoError(t, err)

	tool, err := store.SaveTool(ctx, registry.NewTool(0, svc.ID(), svc.Name(), "off",
		registry.WithActive(false)))
	require.NoError(t, err)

	_, err = store.Tool(ctx, tool.ID())
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistryStore_ActiveToolsJoinParentNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "svc"))
	require.NoError(t, err)
	_, err = store.SaveTool(ctx, registry.NewTool(0, svc.ID(), "", "b_tool"))
	require.NoError(t, err)
	_, err = store.SaveTool(ctx, registry.NewTool(0, svc.ID(), "", "a_tool"))
	require.NoError(t, err)

	tools, err := store.ActiveTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	for _, tool := range tools {
		require.Equal(t, "svc", tool.ServiceName())
	}
	// Ordered by id, not name.
	require.Equal(t, "b_tool", tools[0].Name())
}

func TestRegistryStore_DeleteServiceCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "svc",
		registry.WithDomains("x"),
		registry.WithCapabilities(registry.NewCapability(0, "c", "")),
	))
	require.NoError(t, err)
	tool, err := store.SaveTool(ctx, registry.NewTool(0, svc.ID(), svc.Name(), "t"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteService(ctx, svc.ID()))

	_, err = store.Service(ctx, svc.ID())
	require.ErrorIs(t, err, registry.ErrNotFound)
	_, err = store.Tool(ctx, tool.ID())
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistryStore_ToolsOfService(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.SaveService(ctx, registry.NewService(0, "svc"))
	require.NoError(t, err)
	_, err = store.SaveTool(ctx, registry.NewTool(0, svc.ID(), svc.Name(), "one"))
	require.NoError(t, err)
	_, err = store.SaveTool(ctx, registry.NewTool(0, svc.ID(), svc.Name(), "two",
		registry.WithActive(false)))
	require.NoError(t, err)

	tools, err := store.ToolsOfService(ctx, svc.ID())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "one", tools[0].Name())

	_, err = store.ToolsOfService(ctx, 999)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

const seedYAML = `
services:
  - name: flight-booker
    description: books flights
    domains: [travel]
    capabilities:
      - name: booking
        description: reserve seats
    tools:
      - name: book_flight
        description: reserves a seat
        example_calls:
          one_way:
            destination: LIS
  - name: invoice-parser
    description: parses invoices
    tools:
      - name: parse_invoice
        active: false
`

func TestRegistryStore_LoadSeedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	require.NoError(t, store.LoadSeed(ctx, path, logger))

	services, err := store.ActiveServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)

	tools, err := store.ActiveTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1) // parse_invoice is seeded inactive
	require.Equal(t, "book_flight", tools[0].Name())
	require.Equal(t, []string{"one_way"}, tools[0].Examples().Keys())

	// Re-running the same seed matches by name and does not duplicate.
	require.NoError(t, store.LoadSeed(ctx, path, logger))
	services, err = store.ActiveServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)

	tools, err = store.ActiveTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
}

func TestRegistryStore_LoadSeedMissingFile(t *testing.T) {
	store := newTestStore(t)
	err := store.LoadSeed(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}
