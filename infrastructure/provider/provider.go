// Package provider implements the embedding backends: a local neural
// transformer (hugot), a lexical TF-IDF/SVD fallback, and an
// OpenAI-compatible remote endpoint, plus the retry, bounded-queue, and
// cache decorators shared by all of them.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kpath-ai/kpath/domain/search"
	"github.com/kpath-ai/kpath/internal/config"
)

// CorpusFitter is implemented by backends that must be fitted on the
// document corpus before they can embed (the lexical backend). The search
// manager fits during a full rebuild.
type CorpusFitter interface {
	Fit(ctx context.Context, documents []string) error
}

// New creates the configured embedding backend wrapped with retry and a
// bounded work queue. The backend choice is made once at startup and is
// recorded in snapshot metadata via Identifier. The second return value is
// the backend's CorpusFitter when it needs corpus fitting before embedding
// (the lexical backend); nil otherwise.
func New(cfg config.AppConfig, logger *slog.Logger) (search.Embedder, CorpusFitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		backend search.Embedder
		fitter  CorpusFitter
		err     error
	)
	switch cfg.EmbeddingBackend() {
	case config.BackendNeural:
		backend = NewHugot(cfg.ModelDir())
	case config.BackendLexical:
		lexical, lerr := NewLexical(cfg.EmbeddingDim(), cfg.ModelDir(), logger)
		backend, fitter, err = lexical, lexical, lerr
	case config.BackendRemote:
		backend, err = NewRemote(RemoteConfig{
			BaseURL: cfg.RemoteBaseURL(),
			Model:   cfg.RemoteModel(),
			APIKey:  cfg.RemoteAPIKey(),
		})
	default:
		err = fmt.Errorf("unknown embedding backend %q", cfg.EmbeddingBackend())
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("embedding backend selected",
		"backend", string(cfg.EmbeddingBackend()),
		"model", backend.Identifier().String(),
	)

	retried := NewRetry(backend, DefaultRetrySchedule())
	return NewQueued(retried, cfg.EmbedQueueDepth()), fitter, nil
}
