package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/kpath-ai/kpath/domain/search"
)

const (
	hugotModelName = "all-MiniLM-L6-v2"
	hugotDim       = 384
	hugotBatchMax  = 32
)

// hugotSingleton holds the process-wide runtime session and pipeline.
// The runtime only allows one active session per process, so all Hugot
// instances share it; the mutex serializes initialization and inference.
var hugotSingleton struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.Mutex
	ready    bool
}

// Hugot provides local embedding generation with the all-MiniLM-L6-v2
// sentence transformer (384 dimensions, L2-normalized output). Model files
// are looked up as a subdirectory of modelDir containing tokenizer.json.
type Hugot struct {
	modelDir string
}

// NewHugot creates a Hugot backend that looks for model files in modelDir.
func NewHugot(modelDir string) *Hugot {
	return &Hugot{modelDir: modelDir}
}

// Identifier returns the model identity for snapshot compatibility checks.
func (h *Hugot) Identifier() search.ModelID {
	return search.NewModelID(hugotModelName, hugotDim)
}

// Available reports whether model files exist on disk.
func (h *Hugot) Available() bool {
	_, err := h.modelPath()
	return err == nil
}

// Embed generates embeddings for the given texts using the local model.
// Inference is serialized on the process-wide session; texts are processed
// in batches internally.
func (h *Hugot) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.initialize(); err != nil {
		return nil, fmt.Errorf("initialize hugot: %w", err)
	}

	hugotSingleton.mu.Lock()
	defer hugotSingleton.mu.Unlock()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += hugotBatchMax {
		end := min(start+hugotBatchMax, len(texts))
		result, err := hugotSingleton.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("run embedding pipeline: %w", err)
		}
		for _, vec := range result.Embeddings {
			if len(vec) != hugotDim {
				return nil, fmt.Errorf("unexpected embedding dimension %d, want %d", len(vec), hugotDim)
			}
			out = append(out, vec)
		}
	}

	if len(out) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d vectors for %d texts", len(out), len(texts))
	}
	return out, nil
}

func (h *Hugot) initialize() error {
	hugotSingleton.mu.Lock()
	defer hugotSingleton.mu.Unlock()

	if hugotSingleton.ready {
		return nil
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	modelPath, err := h.modelPath()
	if err != nil {
		_ = session.Destroy()
		return err
	}

	cfg := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "kpath-embeddings",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create feature extraction pipeline: %w", err)
	}

	hugotSingleton.session = session
	hugotSingleton.pipeline = pipeline
	hugotSingleton.ready = true
	return nil
}

// modelPath looks for a model subdirectory containing tokenizer.json inside
// modelDir.
func (h *Hugot) modelPath() (string, error) {
	entries, err := os.ReadDir(h.modelDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.modelDir, entry.Name())
		if _, statErr := os.Stat(filepath.Join(candidate, "tokenizer.json")); statErr == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model subdirectory with tokenizer.json found in %s", h.modelDir)
}

var _ search.Embedder = (*Hugot)(nil)
