package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kpath-ai/kpath/domain/registry"
	"github.com/kpath-ai/kpath/domain/search"
)

// Per-result token budgets by response mode, measured as serialized
// characters divided by four as a portable proxy.
const (
	fullBudget    = 6000
	compactBudget = 1800
	minimalBudget = 300

	tokenCharRatio = 4

	// Truncation steps applied, in order, when a result overflows its
	// budget.
	truncatedDescriptionLen  = 240
	truncatedCapabilityCount = 8
)

// Envelope is the response envelope of a search.
type Envelope struct {
	Query        string       `json:"query"`
	SearchMode   string       `json:"search_mode"`
	Results      []ResultItem `json:"results"`
	TotalResults int          `json:"total_results"`
	SearchTimeMS int64        `json:"search_time_ms"`
	Timestamp    string       `json:"timestamp"`
}

// ResultItem is one shaped result within the envelope.
type ResultItem struct {
	ServiceID        int64            `json:"service_id"`
	Score            float64          `json:"score"`
	Rank             int              `json:"rank"`
	Evidence         string           `json:"evidence"`
	Service          map[string]any   `json:"service"`
	RecommendedTool  map[string]any   `json:"recommended_tool,omitempty"`
	RecommendedTools []map[string]any `json:"recommended_tools,omitempty"`
}

// Shaper projects planned results into the response envelope, enforcing the
// per-result token budgets of the three response modes. Detail projections
// for compact and minimal responses are served lazily by the tool detail
// endpoints, which are pure projections over the registry reader.
type Shaper struct {
	reader   registry.Reader
	basePath string
}

// NewShaper creates a Shaper. basePath is the mounted search route prefix
// used to build detail links, e.g. "/api/v1/search".
func NewShaper(reader registry.Reader, basePath string) Shaper {
	return Shaper{reader: reader, basePath: basePath}
}

// Shape builds the envelope for one executed query. elapsed is end-to-end
// planner time, excluding response serialization.
func (s Shaper) Shape(ctx context.Context, q search.Query, results []PlannedResult, elapsed time.Duration) (Envelope, error) {
	items := make([]ResultItem, 0, len(results))
	for _, r := range results {
		item, err := s.shapeResult(ctx, q, r)
		if err != nil {
			return Envelope{}, err
		}
		items = append(items, item)
	}

	return Envelope{
		Query:        q.Text(),
		SearchMode:   string(q.Mode()),
		Results:      items,
		TotalResults: len(items),
		SearchTimeMS: elapsed.Milliseconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s Shaper) shapeResult(ctx context.Context, q search.Query, r PlannedResult) (ResultItem, error) {
	ranked := r.Ranked()
	item := ResultItem{
		ServiceID: ranked.ID(),
		Score:     ranked.Score(),
		Rank:      ranked.Rank(),
		Evidence:  string(ranked.Evidence()),
	}

	service, err := s.serviceProjection(ctx, q, ranked)
	if err != nil {
		return ResultItem{}, err
	}
	item.Service = service

	tools := r.Tools()
	if len(tools) > 0 {
		projections := make([]map[string]any, 0, len(tools))
		for _, rec := range tools {
			proj, err := s.toolProjection(ctx, q, rec)
			if err != nil {
				return ResultItem{}, err
			}
			if proj != nil {
				projections = append(projections, proj)
			}
		}
		switch {
		case len(projections) == 1:
			item.RecommendedTool = projections[0]
		case len(projections) > 1:
			item.RecommendedTools = projections
		}
	}

	s.enforceBudget(&item, q.ResponseMode())
	return item, nil
}

// serviceProjection builds the service map for the requested response mode.
// A service present in the index but already gone from the registry falls
// back to its index payload.
func (s Shaper) serviceProjection(ctx context.Context, q search.Query, ranked search.RankedResult) (map[string]any, error) {
	if q.ResponseMode() == search.ResponseMinimal {
		return map[string]any{
			"service_id": ranked.ID(),
			"name":       ranked.Payload().Name(),
		}, nil
	}

	svc, err := s.reader.Service(ctx, ranked.ID())
	if errors.Is(err, registry.ErrNotFound) {
		return payloadProjection(ranked), nil
	}
	if err != nil {
		return nil, err
	}

	var out map[string]any
	switch q.ResponseMode() {
	case search.ResponseCompact:
		out = map[string]any{
			"service_id":  svc.ID(),
			"name":        svc.Name(),
			"description": svc.Description(),
		}
		putNonEmpty(out, "endpoint", svc.Endpoint())
		putNonEmpty(out, "auth_type", svc.AuthType())
		if domains := svc.Domains(); len(domains) > 0 {
			out["domains"] = domains
		}
		if details := svc.IntegrationDetails(); len(details) > 0 {
			out["integration_details"] = details
		}
	default: // full
		out = map[string]any{
			"service_id":  svc.ID(),
			"name":        svc.Name(),
			"description": svc.Description(),
			"status":      string(svc.Status()),
		}
		putNonEmpty(out, "tool_type", svc.ToolType())
		putNonEmpty(out, "visibility", svc.Visibility())
		putNonEmpty(out, "endpoint", svc.Endpoint())
		putNonEmpty(out, "version", svc.Version())
		if modes := svc.InteractionModes(); len(modes) > 0 {
			out["interaction_modes"] = modes
		}
		if domains := svc.Domains(); len(domains) > 0 {
			out["domains"] = domains
		}
		if caps := svc.Capabilities(); len(caps) > 0 {
			out["capabilities"] = capabilityProjections(caps, q.IncludeSchemas())
		}
		if q.IncludeOrchestration() {
			putNonEmpty(out, "auth_type", svc.AuthType())
			putNonEmptyMap(out, "auth_config", svc.AuthConfig())
			putNonEmpty(out, "agent_protocol", svc.AgentProtocol())
			putNonEmptyMap(out, "tool_recommendations", svc.ToolRecommendations())
			putNonEmptyMap(out, "agent_capabilities", svc.AgentCapabilities())
			putNonEmptyMap(out, "communication_patterns", svc.CommunicationPatterns())
			putNonEmptyMap(out, "orchestration_metadata", svc.OrchestrationMetadata())
			putNonEmptyMap(out, "integration_details", svc.IntegrationDetails())
		}
	}

	if fields := q.FieldProjection(); len(fields) > 0 {
		out = projectFields(out, fields)
	}
	return out, nil
}

// toolProjection builds the recommended tool map for the response mode.
// Returns nil for a tool that no longer resolves in the registry.
func (s Shaper) toolProjection(ctx context.Context, q search.Query, rec RecommendedTool) (map[string]any, error) {
	tool, err := s.reader.Tool(ctx, rec.ID())
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch q.ResponseMode() {
	case search.ResponseMinimal:
		return map[string]any{
			"tool_name":            tool.Name(),
			"tool_description":     tool.Description(),
			"recommendation_score": rec.Score(),
			"details_url":          s.detailURL(tool.ID(), "details"),
		}, nil
	case search.ResponseCompact:
		out := map[string]any{
			"tool_id":          tool.ID(),
			"tool_name":        tool.Name(),
			"tool_description": tool.Description(),
			"details_url":      s.detailURL(tool.ID(), "details"),
		}
		putNonEmpty(out, "version", tool.Version())
		if keys := schemaKeys(tool.InputSchema()); len(keys) > 0 {
			out["input_schema_keys"] = keys
		}
		if keys := schemaKeys(tool.OutputSchema()); len(keys) > 0 {
			out["output_schema_keys"] = keys
		}
		out["example_count"] = tool.Examples().Count()
		return out, nil
	default: // full
		out := map[string]any{
			"tool_id":          tool.ID(),
			"tool_name":        tool.Name(),
			"tool_description": tool.Description(),
		}
		putNonEmpty(out, "version", tool.Version())
		if q.IncludeSchemas() {
			putNonEmptyMap(out, "input_schema", tool.InputSchema())
			putNonEmptyMap(out, "output_schema", tool.OutputSchema())
		}
		if q.IncludeExamples() {
			if v := tool.Examples().Value(); v != nil {
				out["example_calls"] = v
			}
		}
		return out, nil
	}
}

// ToolDetails returns the full projection of one tool.
func (s Shaper) ToolDetails(ctx context.Context, id int64) (map[string]any, error) {
	tool, err := s.lookupTool(ctx, id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"tool_id":          tool.ID(),
		"tool_name":        tool.Name(),
		"tool_description": tool.Description(),
		"service_id":       tool.ServiceID(),
		"service_name":     tool.ServiceName(),
	}
	putNonEmpty(out, "version", tool.Version())
	putNonEmptyMap(out, "input_schema", tool.InputSchema())
	putNonEmptyMap(out, "output_schema", tool.OutputSchema())
	if v := tool.Examples().Value(); v != nil {
		out["example_calls"] = v
	}
	return out, nil
}

// ToolSchema returns only the input and output schemas of one tool.
func (s Shaper) ToolSchema(ctx context.Context, id int64) (map[string]any, error) {
	tool, err := s.lookupTool(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tool_id":       tool.ID(),
		"input_schema":  tool.InputSchema(),
		"output_schema": tool.OutputSchema(),
	}, nil
}

// ToolExamples returns only the example calls of one tool.
func (s Shaper) ToolExamples(ctx context.Context, id int64) (map[string]any, error) {
	tool, err := s.lookupTool(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tool_id":       tool.ID(),
		"example_calls": tool.Examples().Value(),
	}, nil
}

// ToolSummary returns the one-line summary of one tool.
func (s Shaper) ToolSummary(ctx context.Context, id int64) (map[string]any, error) {
	tool, err := s.lookupTool(ctx, id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"tool_id":          tool.ID(),
		"tool_name":        tool.Name(),
		"tool_description": tool.Description(),
		"service_id":       tool.ServiceID(),
		"service_name":     tool.ServiceName(),
	}
	putNonEmpty(out, "version", tool.Version())
	return out, nil
}

func (s Shaper) lookupTool(ctx context.Context, id int64) (registry.Tool, error) {
	tool, err := s.reader.Tool(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return registry.Tool{}, search.ErrNotFound(fmt.Sprintf("tool %d not found", id))
	}
	if err != nil {
		return registry.Tool{}, err
	}
	return tool, nil
}

func (s Shaper) detailURL(id int64, section string) string {
	return fmt.Sprintf("%s/tools/%d/%s", s.basePath, id, section)
}

// enforceBudget trims an overflowing result in fixed priority order:
// example calls, then schemas, then the description to 240 characters, then
// the capability list to 8 entries.
func (s Shaper) enforceBudget(item *ResultItem, mode search.ResponseMode) {
	budget := fullBudget
	switch mode {
	case search.ResponseCompact:
		budget = compactBudget
	case search.ResponseMinimal:
		budget = minimalBudget
	}

	if resultTokens(*item) <= budget {
		return
	}

	eachToolMap(item, func(m map[string]any) {
		delete(m, "example_calls")
	})
	if resultTokens(*item) <= budget {
		return
	}

	eachToolMap(item, func(m map[string]any) {
		delete(m, "input_schema")
		delete(m, "output_schema")
		delete(m, "input_schema_keys")
		delete(m, "output_schema_keys")
	})
	if item.Service != nil {
		if caps, ok := item.Service["capabilities"].([]map[string]any); ok {
			for _, c := range caps {
				delete(c, "input_schema")
				delete(c, "output_schema")
			}
		}
	}
	if resultTokens(*item) <= budget {
		return
	}

	truncateDescription(item.Service, "description")
	eachToolMap(item, func(m map[string]any) {
		truncateDescription(m, "tool_description")
	})
	if resultTokens(*item) <= budget {
		return
	}

	if item.Service != nil {
		if caps, ok := item.Service["capabilities"].([]map[string]any); ok && len(caps) > truncatedCapabilityCount {
			item.Service["capabilities"] = caps[:truncatedCapabilityCount]
		}
	}
}

func resultTokens(item ResultItem) int {
	data, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(data) / tokenCharRatio
}

func eachToolMap(item *ResultItem, fn func(map[string]any)) {
	if item.RecommendedTool != nil {
		fn(item.RecommendedTool)
	}
	for _, m := range item.RecommendedTools {
		fn(m)
	}
}

func truncateDescription(m map[string]any, key string) {
	if m == nil {
		return
	}
	if desc, ok := m[key].(string); ok && len(desc) > truncatedDescriptionLen {
		m[key] = desc[:truncatedDescriptionLen]
	}
}

// payloadProjection renders a service from its index payload alone.
func payloadProjection(ranked search.RankedResult) map[string]any {
	p := ranked.Payload()
	out := map[string]any{
		"service_id":  ranked.ID(),
		"name":        p.Name(),
		"description": p.Description(),
	}
	if domains := p.Domains(); len(domains) > 0 {
		out["domains"] = domains
	}
	return out
}

func capabilityProjections(caps []registry.Capability, includeSchemas bool) []map[string]any {
	out := make([]map[string]any, len(caps))
	for i, c := range caps {
		m := map[string]any{"name": c.Name()}
		putNonEmpty(m, "description", c.Description())
		if includeSchemas {
			putNonEmptyMap(m, "input_schema", c.InputSchema())
			putNonEmptyMap(m, "output_schema", c.OutputSchema())
		}
		out[i] = m
	}
	return out
}

func schemaKeys(schema map[string]any) []string {
	if len(schema) == 0 {
		return nil
	}
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func projectFields(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

func putNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func putNonEmptyMap(m map[string]any, key string, value map[string]any) {
	if len(value) > 0 {
		m[key] = value
	}
}
