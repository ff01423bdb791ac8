package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

// failingEmbedder always errors, for surfacing backend failures through the
// planner while the manager keeps serving a previously built index.
type failingEmbedder struct {
	axisEmbedder
}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, search.ErrEmbeddingFailed(errors.New("backend down"))
}

func newTestPlanner(t *testing.T) (*Planner, *fakeReader, *Manager) {
	t.Helper()
	reader := fixtureReader()
	m := newTestManager(t, reader, testEmbedder())
	require.NoError(t, m.BuildAll(context.Background()))
	return NewPlanner(m, reader, testEmbedder(), discardLogger()), reader, m
}

func TestPlanner_AgentsOnlyRanksByRelevance(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight", search.WithMode(search.ModeAgentsOnly), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0].Ranked()
	require.Equal(t, int64(1), top.ID())
	require.Equal(t, 1, top.Rank())
	require.Equal(t, search.EvidenceDirect, top.Evidence())
	require.Empty(t, results[0].Tools())

	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i].Ranked().Score(), results[i-1].Ranked().Score())
		require.Equal(t, i+1, results[i].Ranked().Rank())
	}
}

func TestPlanner_ToolsOnlyGroupsByParent(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight", search.WithMode(search.ModeToolsOnly), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Both flight tools share one parent; the group surfaces once with the
	// best tool attached.
	top := results[0]
	require.Equal(t, int64(1), top.Ranked().ID())
	require.Len(t, top.Tools(), 1)
	require.Equal(t, int64(101), top.Tools()[0].ID())
	require.Equal(t, search.EvidenceViaTool(101), top.Ranked().Evidence())

	seen := make(map[int64]bool)
	for _, r := range results {
		require.False(t, seen[r.Ranked().ID()], "parent surfaced twice")
		seen[r.Ranked().ID()] = true
	}
}

func TestPlanner_WorkflowsBundleTopTools(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight", search.WithMode(search.ModeWorkflows), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	require.Equal(t, int64(1), top.Ranked().ID())
	tools := top.Tools()
	require.Len(t, tools, 2)
	require.Equal(t, int64(101), tools[0].ID())
	require.Equal(t, int64(102), tools[1].ID())
	require.GreaterOrEqual(t, tools[0].Score(), tools[1].Score())
}

func TestPlanner_MergedCombinesDirectAndToolEvidence(t *testing.T) {
	p, _, m := newTestPlanner(t)

	vec := embedQueryText(t, "flight")
	svcHits, err := m.SearchServices(context.Background(), vec, 8)
	require.NoError(t, err)
	toolHits, err := m.SearchTools(context.Background(), vec, 8)
	require.NoError(t, err)
	require.Equal(t, int64(1), svcHits[0].ID())
	require.Equal(t, int64(101), toolHits[0].ID())

	q := search.NewQuery("flight", search.WithMode(search.ModeAgentsAndTools), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	require.Equal(t, int64(1), top.Ranked().ID())
	require.Equal(t, search.EvidenceBoth, top.Ranked().Evidence())
	require.Len(t, top.Tools(), 1)
	require.Equal(t, int64(101), top.Tools()[0].ID())

	want := svcHits[0].Score()
	if propagated := toolPropagation * toolHits[0].Score(); propagated > want {
		want = propagated
	}
	require.InDelta(t, want, top.Ranked().Score(), 1e-9)
}

func TestPlanner_MergedSurfacesToolOnlyParents(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	// With limit 1 the service fetch is too small to include doc-ocr
	// directly, so it can only enter through its scan_document tool.
	q := search.NewQuery("scan", search.WithMode(search.ModeAgentsAndTools), search.WithLimit(1))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)

	top := results[0]
	require.Equal(t, int64(4), top.Ranked().ID())
	require.Equal(t, search.EvidenceViaTool(401), top.Ranked().Evidence())
}

func TestPlanner_DomainFilterRestrictsResults(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight",
		search.WithMode(search.ModeAgentsOnly),
		search.WithLimit(4),
		search.WithDomainFilter("finance"),
	)
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(2), results[0].Ranked().ID())
	require.Equal(t, 1, results[0].Ranked().Rank())
}

func TestPlanner_CapabilityFilterRestrictsResults(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight",
		search.WithMode(search.ModeAgentsOnly),
		search.WithLimit(4),
		search.WithCapabilityFilter("booking"),
	)
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].Ranked().ID())
}

func TestPlanner_MinScoreThreshold(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	all, err := p.Search(context.Background(),
		search.NewQuery("flight", search.WithMode(search.ModeAgentsOnly), search.WithLimit(4)))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)

	// A threshold between the top two scores keeps only the top result.
	threshold := (all[0].Ranked().Score() + all[1].Ranked().Score()) / 2
	filtered, err := p.Search(context.Background(),
		search.NewQuery("flight",
			search.WithMode(search.ModeAgentsOnly),
			search.WithLimit(4),
			search.WithMinScore(threshold),
		))
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, all[0].Ranked().ID(), filtered[0].Ranked().ID())
}

func TestPlanner_LimitCapsAndRanksResults(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight", search.WithMode(search.ModeAgentsOnly), search.WithLimit(2))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Ranked().Rank())
	require.Equal(t, 2, results[1].Ranked().Rank())
}

func TestPlanner_CapabilitiesModeSearchesServices(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	q := search.NewQuery("flight", search.WithMode(search.ModeCapabilities), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, int64(1), results[0].Ranked().ID())
	require.Equal(t, search.EvidenceDirect, results[0].Ranked().Evidence())
}

func TestPlanner_StaleToolParentSkipped(t *testing.T) {
	p, _, m := newTestPlanner(t)

	// Drop only the service index entry, leaving its tools behind, as
	// happens between a registry delete and the next rebuild.
	m.mu.Lock()
	m.services.Remove(1)
	m.mu.Unlock()

	q := search.NewQuery("flight", search.WithMode(search.ModeToolsOnly), search.WithLimit(4))
	results, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, int64(1), r.Ranked().ID())
	}
}

func TestPlanner_SimilarExcludesSelf(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	results, err := p.Similar(context.Background(), 1, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.LessOrEqual(t, len(results), 3)
	for i, r := range results {
		require.NotEqual(t, int64(1), r.Ranked().ID())
		require.Equal(t, i+1, r.Ranked().Rank())
	}
}

func TestPlanner_SimilarUnknownServiceNotFound(t *testing.T) {
	p, _, _ := newTestPlanner(t)

	_, err := p.Similar(context.Background(), 999, 3)
	require.ErrorIs(t, err, search.ErrNotFound(""))
}

func TestPlanner_EmbedFailureSurfaces(t *testing.T) {
	reader := fixtureReader()
	m := newTestManager(t, reader, testEmbedder())
	require.NoError(t, m.BuildAll(context.Background()))

	p := NewPlanner(m, reader, failingEmbedder{}, discardLogger())
	_, err := p.Search(context.Background(), search.NewQuery("flight"))
	require.ErrorIs(t, err, search.ErrEmbeddingFailed(nil))
}

func TestPlanner_SearchBeforeBuildNotReady(t *testing.T) {
	reader := fixtureReader()
	m := newTestManager(t, reader, testEmbedder())
	p := NewPlanner(m, reader, testEmbedder(), discardLogger())

	_, err := p.Search(context.Background(), search.NewQuery("flight"))
	require.ErrorIs(t, err, search.ErrIndexNotReady(""))
}
