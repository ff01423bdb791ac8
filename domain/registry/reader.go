package registry

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested record does not exist or is not active.
var ErrNotFound = errors.New("registry: record not found")

// Reader is the read contract over the external registry. It is the only
// place that talks to the registry; every other component takes records by
// value.
type Reader interface {
	// ActiveServices returns each active service with capabilities and
	// domains pre-joined.
	ActiveServices(ctx context.Context) ([]Service, error)

	// ActiveTools returns each active tool of each active service with its
	// parent reference resolved.
	ActiveTools(ctx context.Context) ([]Tool, error)

	// Service returns one active service by id. Returns ErrNotFound for
	// missing or non-active services.
	Service(ctx context.Context, id int64) (Service, error)

	// Tool returns one active tool by id. Returns ErrNotFound for missing
	// or inactive tools, or tools of non-active services.
	Tool(ctx context.Context, id int64) (Tool, error)
}
