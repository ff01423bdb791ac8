package provider

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kpath-ai/kpath/domain/search"
)

// remoteDims maps known embedding models to their output dimensions.
var remoteDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// RemoteConfig holds configuration for the remote embedding backend.
type RemoteConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	// Dim overrides the model's output dimension for endpoints serving
	// models not in the known table.
	Dim int
}

// Remote generates embeddings through an OpenAI-compatible endpoint.
type Remote struct {
	client *openai.Client
	model  string
	dim    int
}

// NewRemote creates a Remote backend.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Model == "" {
		return nil, errors.New("remote embedding model is required")
	}
	dim := cfg.Dim
	if dim == 0 {
		dim = remoteDims[cfg.Model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("unknown output dimension for model %q; set EMBEDDING_DIM", cfg.Model)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Remote{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dim:    dim,
	}, nil
}

// Identifier returns the model identity for snapshot compatibility checks.
func (r *Remote) Identifier() search.ModelID {
	return search.NewModelID(r.model, r.dim)
}

// Embed requests embeddings for the given texts in one API call.
func (r *Remote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := r.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(r.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if len(item.Embedding) != r.dim {
			return nil, fmt.Errorf("unexpected embedding dimension %d, want %d", len(item.Embedding), r.dim)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

var _ search.Embedder = (*Remote)(nil)
