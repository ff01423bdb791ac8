package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

func newTestFacade(t *testing.T) (*Facade, *fakeReader, *Manager) {
	t.Helper()
	reader := fixtureReader()
	m := newTestManager(t, reader, testEmbedder())
	require.NoError(t, m.BuildAll(context.Background()))

	planner := NewPlanner(m, reader, testEmbedder(), discardLogger())
	shaper := NewShaper(reader, testBasePath)
	return NewFacade(planner, shaper, m, nil, discardLogger(), time.Second), reader, m
}

func TestFacade_SearchReturnsEnvelope(t *testing.T) {
	f, _, _ := newTestFacade(t)

	q := search.NewQuery("flight", search.WithLimit(2))
	env, err := f.Search(context.Background(), "key:abc", q)
	require.NoError(t, err)

	require.Equal(t, "flight", env.Query)
	require.Equal(t, string(search.ModeAgentsOnly), env.SearchMode)
	require.Equal(t, 2, env.TotalResults)
	require.Len(t, env.Results, 2)
	require.Equal(t, int64(1), env.Results[0].ServiceID)
	require.GreaterOrEqual(t, env.SearchTimeMS, int64(0))
	require.NotEmpty(t, env.Timestamp)
}

func TestFacade_SearchRejectsInvalidQuery(t *testing.T) {
	f, _, _ := newTestFacade(t)

	_, err := f.Search(context.Background(), "anonymous", search.NewQuery("   "))
	require.ErrorIs(t, err, search.ErrQueryEmpty())

	_, err = f.Search(context.Background(), "anonymous",
		search.NewQuery("x", search.WithMode("bogus")))
	require.ErrorIs(t, err, search.ErrInvalidRequest(""))
}

func TestFacade_SearchBeforeBuildNotReady(t *testing.T) {
	reader := fixtureReader()
	m := newTestManager(t, reader, testEmbedder())
	planner := NewPlanner(m, reader, testEmbedder(), discardLogger())
	f := NewFacade(planner, NewShaper(reader, testBasePath), m, nil, discardLogger(), time.Second)

	_, err := f.Search(context.Background(), "anonymous", search.NewQuery("flight"))
	require.ErrorIs(t, err, search.ErrIndexNotReady(""))
}

func TestFacade_SimilarExcludesSelfAndClampsLimit(t *testing.T) {
	f, _, _ := newTestFacade(t)

	env, err := f.Similar(context.Background(), "anonymous", 1, 0)
	require.NoError(t, err)
	require.Equal(t, "similar:1", env.Query)
	require.NotEmpty(t, env.Results)
	require.LessOrEqual(t, len(env.Results), search.DefaultLimit)
	for _, item := range env.Results {
		require.NotEqual(t, int64(1), item.ServiceID)
	}
}

func TestFacade_SimilarUnknownServiceNotFound(t *testing.T) {
	f, _, _ := newTestFacade(t)

	_, err := f.Similar(context.Background(), "anonymous", 999, 3)
	require.ErrorIs(t, err, search.ErrNotFound(""))
}

func TestFacade_StatusReflectsManager(t *testing.T) {
	f, _, _ := newTestFacade(t)

	st := f.Status()
	require.Equal(t, StateReady, st.State())
	require.Equal(t, 4, st.ServiceCount())
}

func TestFacade_TriggerRebuildRunsInBackground(t *testing.T) {
	f, reader, m := newTestFacade(t)

	reader.removeService(3)
	f.TriggerRebuild()

	require.Eventually(t, func() bool {
		return m.Status().ServiceCount() == 3
	}, 5*time.Second, 5*time.Millisecond)
}

func TestFacade_ToolDetailPassthrough(t *testing.T) {
	f, _, _ := newTestFacade(t)
	ctx := context.Background()

	details, err := f.ToolDetails(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, "book_flight", details["tool_name"])

	_, err = f.ToolDetails(ctx, 999)
	require.ErrorIs(t, err, search.ErrNotFound(""))

	summary, err := f.ToolSummary(ctx, 101)
	require.NoError(t, err)
	require.NotContains(t, summary, "input_schema")
}
