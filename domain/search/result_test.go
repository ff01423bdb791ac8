package search

import "testing"

func TestPayload_MatchesDomains(t *testing.T) {
	p := NewServicePayload("svc", "", []string{"Travel", "finance"}, nil)

	if !p.MatchesDomains(nil) {
		t.Error("empty filter should match everything")
	}
	if !p.MatchesDomains([]string{"travel"}) {
		t.Error("domain match should be case-insensitive")
	}
	if !p.MatchesDomains([]string{"health", "finance"}) {
		t.Error("any intersecting domain should match")
	}
	if p.MatchesDomains([]string{"health"}) {
		t.Error("disjoint filter should not match")
	}
}

func TestPayload_MatchesCapabilities(t *testing.T) {
	p := NewServicePayload("svc", "", nil, []CapabilityTag{
		NewCapabilityTag("Booking", "reserve airline seats"),
	})

	if !p.MatchesCapabilities(nil) {
		t.Error("empty filter should match everything")
	}
	if !p.MatchesCapabilities([]string{"booking"}) {
		t.Error("name equality should be case-insensitive")
	}
	if !p.MatchesCapabilities([]string{"airline"}) {
		t.Error("description substring should match")
	}
	if p.MatchesCapabilities([]string{"refunds"}) {
		t.Error("unrelated capability should not match")
	}
}

func TestEvidenceViaTool(t *testing.T) {
	if got := EvidenceViaTool(42); got != "via_tool:42" {
		t.Errorf("EvidenceViaTool = %q, want via_tool:42", got)
	}
}

func TestRankedResult_DefaultsToDirectEvidence(t *testing.T) {
	r := NewRankedResult(KindService, 1, 0.8, 1, Payload{})
	if r.Evidence() != EvidenceDirect {
		t.Errorf("Evidence = %q, want %q", r.Evidence(), EvidenceDirect)
	}
}
