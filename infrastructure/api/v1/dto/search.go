// Package dto defines the request and response wire types of the v1 API.
package dto

import (
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/kpath-ai/kpath/domain/search"
)

// SearchRequest is the body of POST /api/v1/search. Unknown fields are
// rejected.
type SearchRequest struct {
	Query                string   `json:"query"`
	Limit                *int     `json:"limit,omitempty"`
	MinScore             *float64 `json:"min_score,omitempty"`
	DomainFilter         []string `json:"domain_filter,omitempty"`
	CapabilityFilter     []string `json:"capability_filter,omitempty"`
	Mode                 string   `json:"mode,omitempty"`
	ResponseMode         string   `json:"response_mode,omitempty"`
	IncludeOrchestration *bool    `json:"include_orchestration,omitempty"`
	IncludeSchemas       *bool    `json:"include_schemas,omitempty"`
	IncludeExamples      *bool    `json:"include_examples,omitempty"`
	FieldProjection      []string `json:"field_projection,omitempty"`
}

// DecodeSearchRequest parses a JSON request body, rejecting unknown fields.
func DecodeSearchRequest(body io.Reader) (SearchRequest, error) {
	var req SearchRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return SearchRequest{}, search.ErrInvalidRequest("malformed request body: " + err.Error())
	}
	return req, nil
}

// searchParams is the set of query-string parameters the GET form accepts,
// mirroring the JSON field set of SearchRequest.
var searchParams = map[string]struct{}{
	"query":                 {},
	"limit":                 {},
	"min_score":             {},
	"mode":                  {},
	"response_mode":         {},
	"domain_filter":         {},
	"capability_filter":     {},
	"field_projection":      {},
	"include_orchestration": {},
	"include_schemas":       {},
	"include_examples":      {},
}

// SearchRequestFromValues parses the GET query-string form of a search
// request. Array parameters are comma-separated. Unknown parameters are
// rejected, matching the strictness of the POST body.
func SearchRequestFromValues(values url.Values) (SearchRequest, error) {
	for key := range values {
		if _, ok := searchParams[key]; !ok {
			return SearchRequest{}, search.ErrInvalidRequest("unknown parameter: " + key)
		}
	}

	req := SearchRequest{
		Query:            values.Get("query"),
		Mode:             values.Get("mode"),
		ResponseMode:     values.Get("response_mode"),
		DomainFilter:     splitList(values.Get("domain_filter")),
		CapabilityFilter: splitList(values.Get("capability_filter")),
		FieldProjection:  splitList(values.Get("field_projection")),
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SearchRequest{}, search.ErrInvalidRequest("limit must be an integer")
		}
		req.Limit = &n
	}
	if raw := values.Get("min_score"); raw != "" {
		s, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return SearchRequest{}, search.ErrInvalidRequest("min_score must be a number")
		}
		req.MinScore = &s
	}
	for key, dst := range map[string]**bool{
		"include_orchestration": &req.IncludeOrchestration,
		"include_schemas":       &req.IncludeSchemas,
		"include_examples":      &req.IncludeExamples,
	} {
		if raw := values.Get(key); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return SearchRequest{}, search.ErrInvalidRequest(key + " must be a boolean")
			}
			*dst = &b
		}
	}
	return req, nil
}

// ToQuery maps the request onto a domain query. Validation happens in the
// facade, not here.
func (r SearchRequest) ToQuery() search.Query {
	opts := []search.QueryOption{}
	if r.Limit != nil {
		opts = append(opts, search.WithLimit(*r.Limit))
	}
	if r.MinScore != nil {
		opts = append(opts, search.WithMinScore(*r.MinScore))
	}
	if len(r.DomainFilter) > 0 {
		opts = append(opts, search.WithDomainFilter(r.DomainFilter...))
	}
	if len(r.CapabilityFilter) > 0 {
		opts = append(opts, search.WithCapabilityFilter(r.CapabilityFilter...))
	}
	if r.Mode != "" {
		opts = append(opts, search.WithMode(search.Mode(r.Mode)))
	}
	if r.ResponseMode != "" {
		opts = append(opts, search.WithResponseMode(search.ResponseMode(r.ResponseMode)))
	}
	if r.IncludeOrchestration != nil {
		opts = append(opts, search.WithOrchestration(*r.IncludeOrchestration))
	}
	if r.IncludeSchemas != nil {
		opts = append(opts, search.WithSchemas(*r.IncludeSchemas))
	}
	if r.IncludeExamples != nil {
		opts = append(opts, search.WithExamples(*r.IncludeExamples))
	}
	if len(r.FieldProjection) > 0 {
		opts = append(opts, search.WithFieldProjection(r.FieldProjection...))
	}
	return search.NewQuery(r.Query, opts...)
}

// StatusResponse is the body of GET /api/v1/search/status.
type StatusResponse struct {
	State        string `json:"state"`
	Built        bool   `json:"built"`
	ServiceCount int    `json:"service_count"`
	ToolCount    int    `json:"tool_count"`
	Model        string `json:"model"`
	Dim          int    `json:"dim"`
	LastBuiltAt  string `json:"last_built_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// AcceptedResponse is the body of the rebuild and initialize triggers.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
