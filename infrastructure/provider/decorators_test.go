package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

// stubEmbedder returns a fixed vector per text and counts calls. failures
// is decremented per call until it reaches zero.
type stubEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int
	block    chan struct{}
}

func (s *stubEmbedder) Identifier() search.ModelID {
	return search.NewModelID("stub", 2)
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, errors.New("backend down")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	stub := &stubEmbedder{failures: 2}
	r := NewRetry(stub, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond})

	vecs, err := r.Embed(context.Background(), []string{"ab"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 3, stub.callCount())
}

func TestRetry_ExhaustionSurfacesEmbeddingFailed(t *testing.T) {
	stub := &stubEmbedder{failures: 10}
	r := NewRetry(stub, []time.Duration{time.Millisecond})

	_, err := r.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, search.ErrEmbeddingFailed(nil))
	require.Equal(t, 2, stub.callCount())
}

func TestRetry_CancelledContextAbortsImmediately(t *testing.T) {
	stub := &stubEmbedder{failures: 10}
	r := NewRetry(stub, DefaultRetrySchedule())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Embed(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, stub.callCount())
}

func TestQueued_SaturationReturnsOverloaded(t *testing.T) {
	block := make(chan struct{})
	stub := &stubEmbedder{block: block}
	q := NewQueued(stub, 1)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = q.Embed(context.Background(), []string{"a"})
	}()
	// Wait for the first call to hold the only slot.
	require.Eventually(t, func() bool {
		return stub.callCount() == 1
	}, time.Second, time.Millisecond)

	_, err := q.Embed(context.Background(), []string{"b"})
	require.ErrorIs(t, err, search.ErrOverloaded())

	close(block)
	wg.Wait()
	require.NoError(t, firstErr)

	// Slot released, calls succeed again.
	_, err = q.Embed(context.Background(), []string{"c"})
	require.NoError(t, err)
}

func TestCached_SecondCallSkipsBackend(t *testing.T) {
	stub := &stubEmbedder{}
	c := NewCached(stub, 8)

	first, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, 1, stub.callCount())

	second, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, 1, stub.callCount())
	require.Equal(t, first, second)
}

func TestCached_PartialHitsSingleBackendCall(t *testing.T) {
	stub := &stubEmbedder{}
	c := NewCached(stub, 8)

	_, err := c.Embed(context.Background(), []string{"aa"})
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"bbb", "aa", "cccc"})
	require.NoError(t, err)
	require.Equal(t, 2, stub.callCount())

	// Order preserved: vector encodes text length in the stub.
	require.Equal(t, float32(3), vecs[0][0])
	require.Equal(t, float32(2), vecs[1][0])
	require.Equal(t, float32(4), vecs[2][0])
}

func TestCached_EmptyInput(t *testing.T) {
	stub := &stubEmbedder{}
	c := NewCached(stub, 8)

	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, vecs)
	require.Equal(t, 0, stub.callCount())
}

func TestQueued_ConcurrentWithinDepth(t *testing.T) {
	stub := &stubEmbedder{}
	q := NewQueued(stub, 4)

	var errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Embed(context.Background(), []string{"x"}); err != nil {
				errCount.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, errCount.Load())
}
