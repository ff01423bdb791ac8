package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kpath-ai/kpath/domain/search"
)

const (
	lexicalModelName = "lexical-tfidf-svd"
	lexicalModelFile = "lexical.json"

	// svdIterations is the number of subspace iterations used to converge
	// the truncated SVD basis. The corpora here are small; 15 sweeps is
	// well past convergence.
	svdIterations = 15
)

// ErrLexicalNotFitted indicates Embed was called before Fit (or before a
// persisted model was loaded).
var ErrLexicalNotFitted = errors.New("provider: lexical model not fitted")

// Lexical is the TF-IDF + truncated-SVD fallback backend. It exists so the
// system works without the ML stack; it is not intended for production
// ranking quality. Fit must run over the current corpus before Embed; the
// fitted vocabulary, IDF table, and SVD basis are persisted under the model
// directory and reloaded on startup.
type Lexical struct {
	dim      int
	modelDir string
	logger   *slog.Logger

	mu    sync.RWMutex
	model *lexicalModel
}

// lexicalModel is the persisted artifact: vocabulary, IDF table, and the
// projection basis (vocab x dim).
type lexicalModel struct {
	Dim   int            `json:"dim"`
	Vocab map[string]int `json:"vocab"`
	IDF   []float64      `json:"idf"`
	Basis [][]float64    `json:"basis"`
}

// NewLexical creates a Lexical backend with the given output dimension,
// loading a previously fitted model from modelDir if one exists.
func NewLexical(dim int, modelDir string, logger *slog.Logger) (*Lexical, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("lexical dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Lexical{dim: dim, modelDir: modelDir, logger: logger}

	model, err := loadLexicalModel(filepath.Join(modelDir, lexicalModelFile))
	switch {
	case err == nil && model.Dim == dim:
		l.model = model
	case err == nil:
		logger.Warn("discarding lexical model with stale dimension",
			"persisted_dim", model.Dim, "configured_dim", dim)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("load lexical model: %w", err)
	}
	return l, nil
}

// Identifier returns the model identity for snapshot compatibility checks.
func (l *Lexical) Identifier() search.ModelID {
	return search.NewModelID(lexicalModelName, l.dim)
}

// Fit builds the vocabulary, IDF table, and SVD basis from the corpus and
// persists them. Deterministic for a fixed corpus.
func (l *Lexical) Fit(ctx context.Context, documents []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(documents) == 0 {
		return errors.New("lexical fit requires at least one document")
	}

	docTerms := make([]map[string]int, len(documents))
	df := map[string]int{}
	for i, doc := range documents {
		counts := termCounts(doc)
		docTerms[i] = counts
		for term := range counts {
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(documents))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make([][]float64, len(documents))
	for i, counts := range docTerms {
		rows[i] = tfidfRow(counts, vocab, idf)
	}

	basis := truncatedSVDBasis(rows, len(terms), l.dim)

	model := &lexicalModel{Dim: l.dim, Vocab: vocab, IDF: idf, Basis: basis}

	if err := saveLexicalModel(filepath.Join(l.modelDir, lexicalModelFile), model); err != nil {
		return fmt.Errorf("persist lexical model: %w", err)
	}

	l.mu.Lock()
	l.model = model
	l.mu.Unlock()

	l.logger.Info("lexical model fitted",
		"documents", len(documents), "vocabulary", len(terms), "dim", l.dim)
	return nil
}

// Embed projects each text's TF-IDF vector through the fitted SVD basis.
func (l *Lexical) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	model := l.model
	l.mu.RUnlock()
	if model == nil {
		return nil, ErrLexicalNotFitted
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		row := tfidfRow(termCounts(text), model.Vocab, model.IDF)
		vec := make([]float32, l.dim)
		for t, w := range row {
			if w == 0 {
				continue
			}
			for j := 0; j < l.dim; j++ {
				vec[j] += float32(w * model.Basis[t][j])
			}
		}
		normalizeInPlace(vec)
		out[i] = vec
	}
	return out, nil
}

// termCounts lowercases and splits on non-alphanumeric runes.
func termCounts(text string) map[string]int {
	counts := map[string]int{}
	for _, term := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[term]++
	}
	return counts
}

// tfidfRow builds an L2-normalized dense TF-IDF row over the vocabulary.
// Terms outside the vocabulary are ignored.
func tfidfRow(counts map[string]int, vocab map[string]int, idf []float64) []float64 {
	row := make([]float64, len(vocab))
	var norm float64
	for term, count := range counts {
		idx, ok := vocab[term]
		if !ok {
			continue
		}
		w := float64(count) * idf[idx]
		row[idx] = w
		norm += w * w
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range row {
			row[i] *= inv
		}
	}
	return row
}

// truncatedSVDBasis computes the top-dim right singular vectors of the
// document-term matrix by orthogonal subspace iteration. The random start
// uses a fixed seed so fitting is deterministic for a fixed corpus.
func truncatedSVDBasis(rows [][]float64, vocabSize, dim int) [][]float64 {
	rng := rand.New(rand.NewSource(1))

	// basis is vocabSize x dim, column-orthonormal after each sweep.
	basis := make([][]float64, vocabSize)
	for t := range basis {
		col := make([]float64, dim)
		for j := range col {
			col[j] = rng.NormFloat64()
		}
		basis[t] = col
	}
	orthonormalizeColumns(basis, dim)

	proj := make([][]float64, len(rows))
	for it := 0; it < svdIterations; it++ {
		// proj = A * basis  (docs x dim)
		for i, row := range rows {
			p := make([]float64, dim)
			for t, w := range row {
				if w == 0 {
					continue
				}
				for j := 0; j < dim; j++ {
					p[j] += w * basis[t][j]
				}
			}
			proj[i] = p
		}

		// basis = A^T * proj  (vocab x dim)
		for t := range basis {
			for j := 0; j < dim; j++ {
				basis[t][j] = 0
			}
		}
		for i, row := range rows {
			p := proj[i]
			for t, w := range row {
				if w == 0 {
					continue
				}
				for j := 0; j < dim; j++ {
					basis[t][j] += w * p[j]
				}
			}
		}

		orthonormalizeColumns(basis, dim)
	}
	return basis
}

// orthonormalizeColumns applies modified Gram-Schmidt over the dim columns
// of the vocab x dim matrix. Rank-deficient columns become zero.
func orthonormalizeColumns(m [][]float64, dim int) {
	for j := 0; j < dim; j++ {
		for k := 0; k < j; k++ {
			var d float64
			for t := range m {
				d += m[t][j] * m[t][k]
			}
			for t := range m {
				m[t][j] -= d * m[t][k]
			}
		}
		var norm float64
		for t := range m {
			norm += m[t][j] * m[t][j]
		}
		if norm <= 1e-12 {
			for t := range m {
				m[t][j] = 0
			}
			continue
		}
		inv := 1 / math.Sqrt(norm)
		for t := range m {
			m[t][j] *= inv
		}
	}
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func saveLexicalModel(path string, model *lexicalModel) error {
	data, err := json.Marshal(model)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadLexicalModel(path string) (*lexicalModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model lexicalModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

var _ search.Embedder = (*Lexical)(nil)
var _ CorpusFitter = (*Lexical)(nil)
