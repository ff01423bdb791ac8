package search

import (
	"errors"
	"strings"
	"testing"
)

func TestNewQuery_Defaults(t *testing.T) {
	q := NewQuery("find flights")

	if q.Mode() != ModeAgentsOnly {
		t.Errorf("Mode = %q, want %q", q.Mode(), ModeAgentsOnly)
	}
	if q.ResponseMode() != ResponseFull {
		t.Errorf("ResponseMode = %q, want %q", q.ResponseMode(), ResponseFull)
	}
	if q.Limit() != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit(), DefaultLimit)
	}
	if q.MinScore() != 0 {
		t.Errorf("MinScore = %f, want 0", q.MinScore())
	}
	if !q.IncludeOrchestration() || !q.IncludeSchemas() || !q.IncludeExamples() {
		t.Error("include flags should default to true")
	}
}

func TestNewQuery_ToolsOnlyDefaultsToCompact(t *testing.T) {
	q := NewQuery("parse invoices", WithMode(ModeToolsOnly))
	if q.ResponseMode() != ResponseCompact {
		t.Errorf("ResponseMode = %q, want %q", q.ResponseMode(), ResponseCompact)
	}
}

func TestNewQuery_ClampsLimitAndMinScore(t *testing.T) {
	cases := []struct {
		name      string
		limit     int
		minScore  float64
		wantLimit int
		wantScore float64
	}{
		{"below range", 0, -0.5, MinLimit, 0},
		{"above range", 500, 1.5, MaxLimit, 1},
		{"in range", 25, 0.4, 25, 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQuery("x", WithLimit(tc.limit), WithMinScore(tc.minScore))
			if q.Limit() != tc.wantLimit {
				t.Errorf("Limit = %d, want %d", q.Limit(), tc.wantLimit)
			}
			if q.MinScore() != tc.wantScore {
				t.Errorf("MinScore = %f, want %f", q.MinScore(), tc.wantScore)
			}
		})
	}
}

func TestNewQuery_NormalizesText(t *testing.T) {
	q := NewQuery("  book a flight\n")
	if q.Text() != "book a flight" {
		t.Errorf("Text = %q, want trimmed", q.Text())
	}
}

func TestQuery_Validate(t *testing.T) {
	var target *Error

	err := NewQuery("   ").Validate()
	if !errors.As(err, &target) || target.Code() != CodeQueryEmpty {
		t.Errorf("blank query: got %v, want QueryEmpty", err)
	}

	err = NewQuery(strings.Repeat("a", MaxQueryBytes+1)).Validate()
	if !errors.As(err, &target) || target.Code() != CodeInvalidRequest {
		t.Errorf("oversized query: got %v, want InvalidRequest", err)
	}

	err = NewQuery("ok", WithMode("bogus")).Validate()
	if !errors.As(err, &target) || target.Code() != CodeInvalidRequest {
		t.Errorf("bad mode: got %v, want InvalidRequest", err)
	}

	err = NewQuery("ok", WithResponseMode("huge")).Validate()
	if !errors.As(err, &target) || target.Code() != CodeInvalidRequest {
		t.Errorf("bad response mode: got %v, want InvalidRequest", err)
	}

	if err := NewQuery("ok", WithMode(ModeWorkflows)).Validate(); err != nil {
		t.Errorf("valid query: got %v, want nil", err)
	}
}
