// Package v1 implements the HTTP handlers of the v1 API.
package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kpath-ai/kpath/application/service"
	"github.com/kpath-ai/kpath/domain/search"
	"github.com/kpath-ai/kpath/infrastructure/api/middleware"
	"github.com/kpath-ai/kpath/infrastructure/api/v1/dto"
)

// SearchRouter handles the search API endpoints.
type SearchRouter struct {
	facade     *service.Facade
	writeGuard func(http.Handler) http.Handler
	logger     *slog.Logger
}

// NewSearchRouter creates a SearchRouter.
func NewSearchRouter(facade *service.Facade, logger *slog.Logger) *SearchRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchRouter{facade: facade, logger: logger}
}

// WithWriteGuard sets the middleware protecting the rebuild and initialize
// triggers. Search itself stays open; POST /search is a read.
func (r *SearchRouter) WithWriteGuard(guard func(http.Handler) http.Handler) *SearchRouter {
	r.writeGuard = guard
	return r
}

// Routes returns the chi router for the search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Search)
	router.Get("/", r.SearchGet)
	router.Get("/similar/{service_id}", r.Similar)
	router.Get("/tools/{tool_id}/details", r.toolSection(sectionDetails))
	router.Get("/tools/{tool_id}/schema", r.toolSection(sectionSchema))
	router.Get("/tools/{tool_id}/examples", r.toolSection(sectionExamples))
	router.Get("/tools/{tool_id}/summary", r.toolSection(sectionSummary))
	router.Get("/status", r.Status)

	router.Group(func(admin chi.Router) {
		if r.writeGuard != nil {
			admin.Use(r.writeGuard)
		}
		admin.Post("/rebuild", r.Rebuild)
		admin.Post("/initialize", r.Rebuild)
	})

	return router
}

// Search handles POST /api/v1/search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	body, err := dto.DecodeSearchRequest(req.Body)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	r.execute(w, req, body.ToQuery())
}

// SearchGet handles GET /api/v1/search with parameters in the query string.
func (r *SearchRouter) SearchGet(w http.ResponseWriter, req *http.Request) {
	body, err := dto.SearchRequestFromValues(req.URL.Query())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	r.execute(w, req, body.ToQuery())
}

func (r *SearchRouter) execute(w http.ResponseWriter, req *http.Request, q search.Query) {
	callerID := middleware.CallerID(req.Context())
	envelope, err := r.facade.Search(req.Context(), callerID, q)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, envelope)
}

// Similar handles GET /api/v1/search/similar/{service_id}.
func (r *SearchRouter) Similar(w http.ResponseWriter, req *http.Request) {
	serviceID, err := strconv.ParseInt(chi.URLParam(req, "service_id"), 10, 64)
	if err != nil {
		middleware.WriteError(w, req, search.ErrInvalidRequest("service_id must be an integer"), r.logger)
		return
	}

	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, req, search.ErrInvalidRequest("limit must be an integer"), r.logger)
			return
		}
	}

	callerID := middleware.CallerID(req.Context())
	envelope, err := r.facade.Similar(req.Context(), callerID, serviceID, limit)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, envelope)
}

// Tool detail sections served lazily for compact and minimal responses.
const (
	sectionDetails  = "details"
	sectionSchema   = "schema"
	sectionExamples = "examples"
	sectionSummary  = "summary"
)

func (r *SearchRouter) toolSection(section string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		toolID, err := strconv.ParseInt(chi.URLParam(req, "tool_id"), 10, 64)
		if err != nil {
			middleware.WriteError(w, req, search.ErrInvalidRequest("tool_id must be an integer"), r.logger)
			return
		}

		var out map[string]any
		switch section {
		case sectionDetails:
			out, err = r.facade.ToolDetails(req.Context(), toolID)
		case sectionSchema:
			out, err = r.facade.ToolSchema(req.Context(), toolID)
		case sectionExamples:
			out, err = r.facade.ToolExamples(req.Context(), toolID)
		case sectionSummary:
			out, err = r.facade.ToolSummary(req.Context(), toolID)
		}
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, out)
	}
}

// Status handles GET /api/v1/search/status.
func (r *SearchRouter) Status(w http.ResponseWriter, req *http.Request) {
	status := r.facade.Status()

	resp := dto.StatusResponse{
		State:        string(status.State()),
		Built:        status.Built(),
		ServiceCount: status.ServiceCount(),
		ToolCount:    status.ToolCount(),
		Model:        status.Model(),
		Dim:          status.Dim(),
		LastError:    status.LastError(),
	}
	if !status.LastBuiltAt().IsZero() {
		resp.LastBuiltAt = status.LastBuiltAt().UTC().Format(time.RFC3339)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Rebuild handles POST /api/v1/search/rebuild and /initialize: it triggers a
// background rebuild and returns immediately.
func (r *SearchRouter) Rebuild(w http.ResponseWriter, req *http.Request) {
	r.facade.TriggerRebuild()
	middleware.WriteJSON(w, http.StatusAccepted, dto.AcceptedResponse{Accepted: true})
}
