package provider

import (
	"context"
	"time"

	"github.com/kpath-ai/kpath/domain/search"
)

// DefaultRetrySchedule returns the backoff delays applied between embed
// attempts: three retries at 100 ms, 400 ms, and 1.6 s.
func DefaultRetrySchedule() []time.Duration {
	return []time.Duration{
		100 * time.Millisecond,
		400 * time.Millisecond,
		1600 * time.Millisecond,
	}
}

// Retry wraps an Embedder with bounded retries on transient failure. The
// schedule holds the delay before each retry; exhaustion surfaces the last
// error. Context cancellation aborts immediately.
type Retry struct {
	inner    search.Embedder
	schedule []time.Duration
}

// NewRetry creates a retrying Embedder.
func NewRetry(inner search.Embedder, schedule []time.Duration) *Retry {
	return &Retry{inner: inner, schedule: schedule}
}

// Identifier returns the inner backend's model identity.
func (r *Retry) Identifier() search.ModelID {
	return r.inner.Identifier()
}

// Embed attempts the inner embed, retrying per the schedule.
func (r *Retry) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt >= len(r.schedule) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.schedule[attempt]):
		}
	}
	return nil, search.ErrEmbeddingFailed(lastErr)
}

var _ search.Embedder = (*Retry)(nil)
