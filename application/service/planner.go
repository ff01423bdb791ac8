package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kpath-ai/kpath/domain/registry"
	"github.com/kpath-ai/kpath/domain/search"
)

const (
	// toolPropagation is the factor a tool hit contributes to its parent
	// service when merging service and tool results.
	toolPropagation = 0.9

	// workflowToolCount is how many tools a workflows-mode result bundles.
	workflowToolCount = 3
)

// RecommendedTool is one tool attached to a planned result with its own
// match score.
type RecommendedTool struct {
	id    int64
	score float64
}

// NewRecommendedTool creates a RecommendedTool.
func NewRecommendedTool(id int64, score float64) RecommendedTool {
	return RecommendedTool{id: id, score: score}
}

// ID returns the tool id.
func (r RecommendedTool) ID() int64 { return r.id }

// Score returns the tool's match score.
func (r RecommendedTool) Score() float64 { return r.score }

// PlannedResult is one ranked result with the recommended tools the planner
// attached: one for tools_only, up to three for workflows, none otherwise.
type PlannedResult struct {
	ranked search.RankedResult
	tools  []RecommendedTool
}

// Ranked returns the ranked result.
func (p PlannedResult) Ranked() search.RankedResult { return p.ranked }

// Tools returns the recommended tools, best first.
func (p PlannedResult) Tools() []RecommendedTool {
	return append([]RecommendedTool{}, p.tools...)
}

// Planner implements the five search modes over the manager's indexes,
// merging and re-ranking heterogeneous results and applying filters.
type Planner struct {
	manager  *Manager
	reader   registry.Reader
	embedder search.Embedder
	logger   *slog.Logger
}

// NewPlanner creates a Planner. The embedder should be the cache-wrapped
// one so repeated queries skip the backend.
func NewPlanner(manager *Manager, reader registry.Reader, embedder search.Embedder, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		manager:  manager,
		reader:   reader,
		embedder: embedder,
		logger:   logger,
	}
}

// Search plans and executes one query: embed, search the relevant indexes,
// merge, filter, threshold, rank. Cancellation is checked between stages.
func (p *Planner) Search(ctx context.Context, q search.Query) ([]PlannedResult, error) {
	vec, err := p.embedQuery(ctx, q.Text())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Each side fetches twice the limit so post-search filters and the
	// merge step still fill the page.
	fetch := 2 * q.Limit()

	var results []PlannedResult
	switch q.Mode() {
	case search.ModeAgentsOnly, search.ModeCapabilities:
		// Capability descriptions are part of the composed service text,
		// so capabilities mode shares the service search path.
		results, err = p.planServices(ctx, vec, fetch)
	case search.ModeToolsOnly:
		results, err = p.planTools(ctx, vec, fetch, 1)
	case search.ModeWorkflows:
		results, err = p.planTools(ctx, vec, fetch, workflowToolCount)
	case search.ModeAgentsAndTools:
		results, err = p.planMerged(ctx, vec, fetch)
	default:
		return nil, search.ErrInvalidRequest("unknown search mode: " + string(q.Mode()))
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return finalize(q, results), nil
}

// Similar searches with the composed text of one service as the query,
// excluding the service itself from the results.
func (p *Planner) Similar(ctx context.Context, serviceID int64, limit int) ([]PlannedResult, error) {
	svc, err := p.reader.Service(ctx, serviceID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, search.ErrNotFound(fmt.Sprintf("service %d not found", serviceID))
	}
	if err != nil {
		return nil, err
	}

	vec, err := p.embedQuery(ctx, search.ComposeService(svc))
	if err != nil {
		return nil, err
	}

	hits, err := p.manager.SearchServices(ctx, vec, limit+1)
	if err != nil {
		return nil, err
	}

	results := make([]PlannedResult, 0, limit)
	for _, hit := range hits {
		if hit.ID() == serviceID {
			continue
		}
		if len(results) == limit {
			break
		}
		ranked := search.NewRankedResult(search.KindService, hit.ID(), hit.Score(), len(results)+1, hit.Payload())
		results = append(results, PlannedResult{ranked: ranked})
	}
	return results, nil
}

// embedQuery embeds the query text through the (cached) backend.
func (p *Planner) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, search.ErrInternal(fmt.Errorf("embed query: got %d vectors", len(vecs)))
	}
	return vecs[0], nil
}

// planServices runs a plain service search.
func (p *Planner) planServices(ctx context.Context, vec []float32, fetch int) ([]PlannedResult, error) {
	hits, err := p.manager.SearchServices(ctx, vec, fetch)
	if err != nil {
		return nil, err
	}
	results := make([]PlannedResult, 0, len(hits))
	for _, hit := range hits {
		ranked := search.NewRankedResult(search.KindService, hit.ID(), hit.Score(), 0, hit.Payload())
		results = append(results, PlannedResult{ranked: ranked})
	}
	return results, nil
}

// planTools searches the tools index and expands each hit into its parent
// service carrying the matched tool(s) as recommendations. Hits are grouped
// by parent; the group keeps the best tool's score and position.
func (p *Planner) planTools(ctx context.Context, vec []float32, fetch, toolsPerService int) ([]PlannedResult, error) {
	hits, err := p.manager.SearchTools(ctx, vec, fetch)
	if err != nil {
		return nil, err
	}

	order := make([]int64, 0, len(hits))
	byParent := make(map[int64][]search.Hit, len(hits))
	for _, hit := range hits {
		parent := hit.Payload().ParentID()
		if _, seen := byParent[parent]; !seen {
			order = append(order, parent)
		}
		byParent[parent] = append(byParent[parent], hit)
	}

	results := make([]PlannedResult, 0, len(order))
	for _, parent := range order {
		entry, ok := p.manager.ServiceEntry(parent)
		if !ok {
			// Tool entry outlived its parent; the next rebuild compacts it.
			p.logger.Debug("skipping tool hit without live parent", "service_id", parent)
			continue
		}
		group := byParent[parent]
		best := group[0]

		ranked := search.NewRankedResult(search.KindService, parent, best.Score(), 0, entry.Payload()).
			WithRecommendedTool(best.ID()).
			WithEvidence(search.EvidenceViaTool(best.ID()))

		n := min(toolsPerService, len(group))
		tools := make([]RecommendedTool, n)
		for i := 0; i < n; i++ {
			tools[i] = NewRecommendedTool(group[i].ID(), group[i].Score())
		}
		results = append(results, PlannedResult{ranked: ranked, tools: tools})
	}
	return results, nil
}

// planMerged runs both searches and merges per the mode-normalized score:
// a service keeps its direct score, a tool propagates toolPropagation times
// its score to the parent, and a service hit by both combines with
// max(direct, toolPropagation * best_tool).
func (p *Planner) planMerged(ctx context.Context, vec []float32, fetch int) ([]PlannedResult, error) {
	svcHits, err := p.manager.SearchServices(ctx, vec, fetch)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toolHits, err := p.manager.SearchTools(ctx, vec, fetch)
	if err != nil {
		return nil, err
	}

	type merged struct {
		svcScore   float64
		hasDirect  bool
		payload    search.Payload
		hasPayload bool
		toolID     int64
		toolScore  float64
		hasTool    bool
	}

	entries := make(map[int64]*merged, len(svcHits)+len(toolHits))
	for _, hit := range svcHits {
		entries[hit.ID()] = &merged{
			svcScore:   hit.Score(),
			hasDirect:  true,
			payload:    hit.Payload(),
			hasPayload: true,
		}
	}
	for _, hit := range toolHits {
		parent := hit.Payload().ParentID()
		e := entries[parent]
		if e == nil {
			e = &merged{}
			entries[parent] = e
		}
		// Hits arrive best-first, so the first tool per parent is the best.
		if !e.hasTool {
			e.toolID = hit.ID()
			e.toolScore = hit.Score()
			e.hasTool = true
		}
	}

	results := make([]PlannedResult, 0, len(entries))
	for id, e := range entries {
		if !e.hasPayload {
			entry, ok := p.manager.ServiceEntry(id)
			if !ok {
				continue
			}
			e.payload = entry.Payload()
		}

		score := e.svcScore
		if e.hasTool && toolPropagation*e.toolScore > score {
			score = toolPropagation * e.toolScore
		}

		var evidence search.Evidence
		switch {
		case e.hasDirect && e.hasTool:
			evidence = search.EvidenceBoth
		case e.hasTool:
			evidence = search.EvidenceViaTool(e.toolID)
		default:
			evidence = search.EvidenceDirect
		}

		ranked := search.NewRankedResult(search.KindService, id, score, 0, e.payload).
			WithEvidence(evidence)
		var tools []RecommendedTool
		if e.hasTool {
			ranked = ranked.WithRecommendedTool(e.toolID)
			tools = []RecommendedTool{NewRecommendedTool(e.toolID, e.toolScore)}
		}
		results = append(results, PlannedResult{ranked: ranked, tools: tools})
	}

	sort.Slice(results, func(i, j int) bool {
		ri, rj := results[i].ranked, results[j].ranked
		if ri.Score() != rj.Score() {
			return ri.Score() > rj.Score()
		}
		return ri.ID() < rj.ID()
	})
	return results, nil
}

// finalize applies the post-search filters, the min_score threshold, the
// limit, and assigns 1-based ranks.
func finalize(q search.Query, results []PlannedResult) []PlannedResult {
	out := make([]PlannedResult, 0, q.Limit())
	for _, r := range results {
		payload := r.ranked.Payload()
		if !payload.MatchesDomains(q.DomainFilter()) {
			continue
		}
		if !payload.MatchesCapabilities(q.CapabilityFilter()) {
			continue
		}
		if r.ranked.Score() < q.MinScore() {
			continue
		}
		r.ranked = r.ranked.WithRank(len(out) + 1)
		out = append(out, r)
		if len(out) == q.Limit() {
			break
		}
	}
	return out
}
