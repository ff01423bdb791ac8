// Package search provides the domain types of the semantic discovery core:
// queries and modes, ranked results, the text composer, and the embedding
// and index contracts.
package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Mode selects which indexes a query searches and how results are shaped.
type Mode string

// Search modes.
const (
	ModeAgentsOnly     Mode = "agents_only"
	ModeToolsOnly      Mode = "tools_only"
	ModeAgentsAndTools Mode = "agents_and_tools"
	ModeWorkflows      Mode = "workflows"
	ModeCapabilities   Mode = "capabilities"
)

// IsValid reports whether m is a recognised search mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeAgentsOnly, ModeToolsOnly, ModeAgentsAndTools, ModeWorkflows, ModeCapabilities:
		return true
	}
	return false
}

// ResponseMode controls the projection size of each result.
type ResponseMode string

// Response modes.
const (
	ResponseFull    ResponseMode = "full"
	ResponseCompact ResponseMode = "compact"
	ResponseMinimal ResponseMode = "minimal"
)

// IsValid reports whether r is a recognised response mode.
func (r ResponseMode) IsValid() bool {
	switch r {
	case ResponseFull, ResponseCompact, ResponseMinimal:
		return true
	}
	return false
}

// DefaultResponseMode returns the response mode used when the request does
// not specify one: compact for tools_only, full otherwise.
func DefaultResponseMode(m Mode) ResponseMode {
	if m == ModeToolsOnly {
		return ResponseCompact
	}
	return ResponseFull
}

// Query limits.
const (
	MinLimit      = 1
	MaxLimit      = 100
	DefaultLimit  = 10
	MaxQueryBytes = 1024
)

// Query is a validated, normalized search request.
type Query struct {
	text                 string
	limit                int
	minScore             float64
	domainFilter         []string
	capabilityFilter     []string
	mode                 Mode
	responseMode         ResponseMode
	includeOrchestration bool
	includeSchemas       bool
	includeExamples      bool
	fieldProjection      []string
}

// QueryOption is a functional option for Query.
type QueryOption func(*Query)

// WithLimit sets the maximum number of results.
func WithLimit(n int) QueryOption {
	return func(q *Query) { q.limit = n }
}

// WithMinScore sets the minimum score threshold on the [0,1] rescaled score.
func WithMinScore(s float64) QueryOption {
	return func(q *Query) { q.minScore = s }
}

// WithDomainFilter retains only results whose domain set intersects domains.
func WithDomainFilter(domains ...string) QueryOption {
	return func(q *Query) { q.domainFilter = append([]string{}, domains...) }
}

// WithCapabilityFilter retains only results with a matching capability.
func WithCapabilityFilter(capabilities ...string) QueryOption {
	return func(q *Query) { q.capabilityFilter = append([]string{}, capabilities...) }
}

// WithMode sets the search mode.
func WithMode(m Mode) QueryOption {
	return func(q *Query) { q.mode = m }
}

// WithResponseMode sets the response projection mode.
func WithResponseMode(r ResponseMode) QueryOption {
	return func(q *Query) { q.responseMode = r }
}

// WithOrchestration includes orchestration blobs in full responses.
func WithOrchestration(include bool) QueryOption {
	return func(q *Query) { q.includeOrchestration = include }
}

// WithSchemas includes tool schemas in responses.
func WithSchemas(include bool) QueryOption {
	return func(q *Query) { q.includeSchemas = include }
}

// WithExamples includes tool example calls in responses.
func WithExamples(include bool) QueryOption {
	return func(q *Query) { q.includeExamples = include }
}

// WithFieldProjection restricts service projections to the named fields.
func WithFieldProjection(fields ...string) QueryOption {
	return func(q *Query) { q.fieldProjection = append([]string{}, fields...) }
}

// NewQuery creates a Query with the given text and options, normalizing the
// text (trim, NFC) and clamping limit and min_score to their legal ranges.
// Validation of the normalized query is separate; see Validate.
func NewQuery(text string, opts ...QueryOption) Query {
	q := Query{
		text:                 Normalize(text),
		limit:                DefaultLimit,
		mode:                 ModeAgentsOnly,
		includeOrchestration: true,
		includeSchemas:       true,
		includeExamples:      true,
	}
	for _, opt := range opts {
		opt(&q)
	}
	if q.limit < MinLimit {
		q.limit = MinLimit
	}
	if q.limit > MaxLimit {
		q.limit = MaxLimit
	}
	if q.minScore < 0 {
		q.minScore = 0
	}
	if q.minScore > 1 {
		q.minScore = 1
	}
	if q.responseMode == "" {
		q.responseMode = DefaultResponseMode(q.mode)
	}
	return q
}

// Normalize trims whitespace and applies Unicode NFC normalization.
func Normalize(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Validate checks the normalized query against the request grammar.
func (q Query) Validate() error {
	if q.text == "" {
		return ErrQueryEmpty()
	}
	if len(q.text) > MaxQueryBytes {
		return ErrInvalidRequest("query exceeds 1024 bytes")
	}
	if !q.mode.IsValid() {
		return ErrInvalidRequest("unknown search mode: " + string(q.mode))
	}
	if !q.responseMode.IsValid() {
		return ErrInvalidRequest("unknown response mode: " + string(q.responseMode))
	}
	return nil
}

// Text returns the normalized query text.
func (q Query) Text() string { return q.text }

// Limit returns the result limit, clamped to [1,100].
func (q Query) Limit() int { return q.limit }

// MinScore returns the minimum score threshold, clamped to [0,1].
func (q Query) MinScore() float64 { return q.minScore }

// DomainFilter returns the domain filter set.
func (q Query) DomainFilter() []string {
	return append([]string{}, q.domainFilter...)
}

// CapabilityFilter returns the capability filter set.
func (q Query) CapabilityFilter() []string {
	return append([]string{}, q.capabilityFilter...)
}

// Mode returns the search mode.
func (q Query) Mode() Mode { return q.mode }

// ResponseMode returns the response projection mode.
func (q Query) ResponseMode() ResponseMode { return q.responseMode }

// IncludeOrchestration reports whether orchestration blobs are requested.
func (q Query) IncludeOrchestration() bool { return q.includeOrchestration }

// IncludeSchemas reports whether tool schemas are requested.
func (q Query) IncludeSchemas() bool { return q.includeSchemas }

// IncludeExamples reports whether example calls are requested.
func (q Query) IncludeExamples() bool { return q.includeExamples }

// FieldProjection returns the requested field projection, if any.
func (q Query) FieldProjection() []string {
	return append([]string{}, q.fieldProjection...)
}

// HasFilters reports whether any post-search filter is set.
func (q Query) HasFilters() bool {
	return len(q.domainFilter) > 0 || len(q.capabilityFilter) > 0
}
