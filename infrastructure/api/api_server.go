package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kpath-ai/kpath"
	apimiddleware "github.com/kpath-ai/kpath/infrastructure/api/middleware"
	v1 "github.com/kpath-ai/kpath/infrastructure/api/v1"
	mcpinternal "github.com/kpath-ai/kpath/internal/mcp"
)

// APIServer provides an HTTP API backed by a kpath Client.
type APIServer struct {
	client       *kpath.Client
	apiKeys      []string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given kpath Client.
// apiKeys configures write-protection: the rebuild and initialize triggers
// require a valid key. Search, status, detail endpoints, MCP, health, and
// metrics remain open; a presented key still resolves the caller identity
// for telemetry.
func NewAPIServer(client *kpath.Client, apiKeys []string) *APIServer {
	return &APIServer{
		client:  client,
		apiKeys: apiKeys,
		logger:  client.Logger(),
	}
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call
// MountRoutes(). If not called, ListenAndServe creates a default router with
// all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all v1 API routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

// mountRoutes wires up all v1 API routes on the given router.
func (a *APIServer) mountRoutes(router chi.Router) {
	authConfig := apimiddleware.NewAuthConfigWithKeys(a.apiKeys)
	searchRouter := v1.NewSearchRouter(a.client.Search, a.logger).
		WithWriteGuard(apimiddleware.WriteProtect(authConfig))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(apimiddleware.Identify(authConfig))

		r.Mount("/search", searchRouter.Routes())
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	// MCP (Model Context Protocol) endpoint. No timeout middleware: MCP uses
	// streaming responses and manages its own session state via response
	// headers, which is incompatible with chi's Timeout middleware that
	// wraps the ResponseWriter.
	mcpSrv := mcpinternal.NewServer(a.client.Search, kpath.Version, a.logger)
	httpHandler := server.NewStreamableHTTPServer(mcpSrv.MCPServer())
	router.Mount("/mcp", httpHandler)
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
