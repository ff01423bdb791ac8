package search

import (
	"fmt"
	"strings"
)

// Kind discriminates which index an entry or result came from.
type Kind string

// Entity kinds.
const (
	KindService Kind = "service"
	KindTool    Kind = "tool"
)

// CapabilityTag is the capability projection carried in index payloads so
// capability filters evaluate without a registry read.
type CapabilityTag struct {
	name        string
	description string
}

// NewCapabilityTag creates a CapabilityTag.
func NewCapabilityTag(name, description string) CapabilityTag {
	return CapabilityTag{name: name, description: description}
}

// Name returns the capability name.
func (c CapabilityTag) Name() string { return c.name }

// Description returns the capability description.
func (c CapabilityTag) Description() string { return c.description }

// Payload is the small projection stored beside each vector: enough to
// render and filter a result without another registry read. Tool payloads
// reference their parent service by id only.
type Payload struct {
	name         string
	description  string
	parentID     int64
	domains      []string
	capabilities []CapabilityTag
}

// NewServicePayload creates a service index payload.
func NewServicePayload(name, description string, domains []string, capabilities []CapabilityTag) Payload {
	return Payload{
		name:         name,
		description:  description,
		domains:      append([]string{}, domains...),
		capabilities: append([]CapabilityTag{}, capabilities...),
	}
}

// NewToolPayload creates a tool index payload referencing the parent service.
func NewToolPayload(name, description string, parentID int64) Payload {
	return Payload{name: name, description: description, parentID: parentID}
}

// Name returns the entity name.
func (p Payload) Name() string { return p.name }

// Description returns the entity description.
func (p Payload) Description() string { return p.description }

// ParentID returns the parent service id for tool payloads, 0 otherwise.
func (p Payload) ParentID() int64 { return p.parentID }

// Domains returns the domain tag set.
func (p Payload) Domains() []string {
	return append([]string{}, p.domains...)
}

// Capabilities returns the capability tags.
func (p Payload) Capabilities() []CapabilityTag {
	return append([]CapabilityTag{}, p.capabilities...)
}

// MatchesDomains reports whether the payload's domain set intersects filter.
// An empty filter matches everything.
func (p Payload) MatchesDomains(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range p.domains {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// MatchesCapabilities reports whether at least one capability matches:
// case-insensitive equality on the name, else substring match on the
// description. An empty filter matches everything.
func (p Payload) MatchesCapabilities(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		lower := strings.ToLower(want)
		for _, cap := range p.capabilities {
			if strings.EqualFold(cap.name, want) {
				return true
			}
			if strings.Contains(strings.ToLower(cap.description), lower) {
				return true
			}
		}
	}
	return false
}

// Evidence records which index(es) contributed to a merged result.
type Evidence string

// Evidence values. Tool-derived evidence carries the contributing tool id
// as "via_tool:<id>".
const (
	EvidenceDirect Evidence = "direct"
	EvidenceBoth   Evidence = "both"
)

// EvidenceViaTool builds the via_tool evidence marker for a tool id.
func EvidenceViaTool(toolID int64) Evidence {
	return Evidence(fmt.Sprintf("via_tool:%d", toolID))
}

// RankedResult is one scored entry of a search response before shaping.
type RankedResult struct {
	kind              Kind
	id                int64
	score             float64
	rank              int
	payload           Payload
	recommendedToolID int64
	evidence          Evidence
}

// NewRankedResult creates a RankedResult.
func NewRankedResult(kind Kind, id int64, score float64, rank int, payload Payload) RankedResult {
	return RankedResult{
		kind:     kind,
		id:       id,
		score:    score,
		rank:     rank,
		payload:  payload,
		evidence: EvidenceDirect,
	}
}

// WithRecommendedTool returns a copy carrying a recommended tool id.
func (r RankedResult) WithRecommendedTool(toolID int64) RankedResult {
	r.recommendedToolID = toolID
	return r
}

// WithEvidence returns a copy with the given evidence marker.
func (r RankedResult) WithEvidence(e Evidence) RankedResult {
	r.evidence = e
	return r
}

// WithRank returns a copy with the given 1-based rank.
func (r RankedResult) WithRank(rank int) RankedResult {
	r.rank = rank
	return r
}

// WithScore returns a copy with the given score.
func (r RankedResult) WithScore(score float64) RankedResult {
	r.score = score
	return r
}

// Kind returns the entity kind.
func (r RankedResult) Kind() Kind { return r.kind }

// ID returns the entity id.
func (r RankedResult) ID() int64 { return r.id }

// Score returns the [0,1] similarity score.
func (r RankedResult) Score() float64 { return r.score }

// Rank returns the 1-based rank within the response.
func (r RankedResult) Rank() int { return r.rank }

// Payload returns the index payload.
func (r RankedResult) Payload() Payload { return r.payload }

// RecommendedToolID returns the recommended tool id, 0 if none.
func (r RankedResult) RecommendedToolID() int64 { return r.recommendedToolID }

// Evidence returns the evidence marker.
func (r RankedResult) Evidence() Evidence { return r.evidence }
