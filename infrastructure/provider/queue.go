package provider

import (
	"context"

	"github.com/kpath-ai/kpath/domain/search"
)

// Queued bounds concurrent access to an embedding backend with a semaphore
// of fixed depth. When the queue is saturated an Overloaded error is
// returned instead of blocking; callers may retry.
type Queued struct {
	inner search.Embedder
	slots chan struct{}
}

// NewQueued creates a bounded-queue Embedder with the given depth.
func NewQueued(inner search.Embedder, depth int) *Queued {
	if depth <= 0 {
		depth = 256
	}
	return &Queued{
		inner: inner,
		slots: make(chan struct{}, depth),
	}
}

// Identifier returns the inner backend's model identity.
func (q *Queued) Identifier() search.ModelID {
	return q.inner.Identifier()
}

// Embed acquires a queue slot and delegates to the inner backend.
func (q *Queued) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case q.slots <- struct{}{}:
	default:
		return nil, search.ErrOverloaded()
	}
	defer func() { <-q.slots }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.inner.Embed(ctx, texts)
}

var _ search.Embedder = (*Queued)(nil)
