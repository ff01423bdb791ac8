package search

import (
	"context"
	"fmt"
)

// ModelID identifies an embedding model and its output dimension. It is
// recorded in snapshot metadata; a mismatch between the persisted and the
// current identifier forces a full rebuild rather than silent mixing.
type ModelID struct {
	name string
	dim  int
}

// NewModelID creates a ModelID.
func NewModelID(name string, dim int) ModelID {
	return ModelID{name: name, dim: dim}
}

// Name returns the model name.
func (m ModelID) Name() string { return m.name }

// Dim returns the output vector dimension.
func (m ModelID) Dim() int { return m.dim }

// String renders the identifier as "name/dim".
func (m ModelID) String() string {
	return fmt.Sprintf("%s/%d", m.name, m.dim)
}

// Embedder converts text into fixed-dimension embedding vectors.
// Implementations are shared, thread-safe, and batched internally.
type Embedder interface {
	// Embed returns one vector per input text, each of Identifier().Dim()
	// length, L2-normalized.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Identifier returns the model identity used for snapshot
	// compatibility checks.
	Identifier() ModelID
}
