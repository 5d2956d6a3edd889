package dedupe

import (
	"math"
	"reflect"
	"testing"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

func colorConfig() Config { return Config{Threshold: 4.0} }

func TestMergeNearDuplicateColors(t *testing.T) {
	// Spec fixture: two near-identical colors, higher confidence wins the
	// value, provenance accumulates both sources.
	toks, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), []domain.Candidate{
		{Value: "#FF5733", Confidence: 0.9, SourceID: "cv"},
		{Value: "#FE5734", Confidence: 0.6, SourceID: "ai"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 1 {
		t.Fatalf("expected 1 merged token, got %d", len(toks))
	}
	if toks[0].Value != "#FF5733" {
		t.Fatalf("expected value #FF5733, got %q", toks[0].Value)
	}
	if !reflect.DeepEqual(toks[0].Attributes.Provenance, []string{"cv", "ai"}) {
		t.Fatalf("expected provenance [cv ai], got %v", toks[0].Attributes.Provenance)
	}
	if toks[0].Attributes.Confidence != 0.9 {
		t.Fatalf("expected max confidence 0.9, got %v", toks[0].Attributes.Confidence)
	}
}

func TestMergeCarriesWinningCandidateAttributes(t *testing.T) {
	toks, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), []domain.Candidate{
		{Value: "#FF5733", Confidence: 0.9, SourceID: "cv", Attributes: map[string]any{"pixel_coverage": 0.4}},
		{Value: "#FE5734", Confidence: 0.6, SourceID: "ai", Attributes: map[string]any{"pixel_fraction": 0.1}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 1 {
		t.Fatalf("expected 1 merged token, got %d", len(toks))
	}
	extra := toks[0].Attributes.Extra
	if extra["pixel_coverage"] != 0.4 {
		t.Fatalf("winner's attributes missing from token: %v", extra)
	}
	if _, loser := extra["pixel_fraction"]; loser {
		t.Fatalf("loser's attributes leaked into token: %v", extra)
	}
	if extra["cluster_size"] != float64(2) {
		t.Fatalf("cluster size wrong: %v", extra)
	}
}

func TestMergeKeepsDistantColorsApart(t *testing.T) {
	toks, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), []domain.Candidate{
		{Value: "#FF5733", Confidence: 0.9, SourceID: "cv"},
		{Value: "#3357FF", Confidence: 0.9, SourceID: "cv"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(toks))
	}
}

func TestMergeIdempotent(t *testing.T) {
	cands := []domain.Candidate{
		{Value: "#FF5733", Confidence: 0.9, SourceID: "cv"},
		{Value: "#FE5734", Confidence: 0.6, SourceID: "ai"},
		{Value: "#3357FF", Confidence: 0.8, SourceID: "cv"},
		{Value: "#3458fe", Confidence: 0.7, SourceID: "ai"},
	}
	first, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), cands)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Output tokens are pairwise at least threshold apart...
	for i := range first {
		for j := i + 1; j < len(first); j++ {
			if d := Distance(domain.TypeColor, first[i].Value, first[j].Value); d < colorConfig().Threshold {
				t.Fatalf("outputs %q and %q closer than threshold (%v)", first[i].Value, first[j].Value, d)
			}
		}
	}

	// ...so re-merging the output is a no-op.
	again := make([]domain.Candidate, 0, len(first))
	for _, tok := range first {
		again = append(again, domain.Candidate{Value: tok.Value, Confidence: tok.Attributes.Confidence, SourceID: "remerge"})
	}
	second, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), again)
	if err != nil {
		t.Fatalf("re-merge: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("re-merge changed cluster count: %d -> %d", len(first), len(second))
	}
}

func TestTieBreakPrefersEarliestArrival(t *testing.T) {
	toks, err := Merge(domain.TypeColor, colorConfig(), logger.NewNop(), []domain.Candidate{
		{Value: "#FF5733", Confidence: 0.8, SourceID: "zeta"},
		{Value: "#FE5734", Confidence: 0.8, SourceID: "alpha"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 1 || toks[0].Value != "#FF5733" {
		t.Fatalf("exact confidence tie must keep earliest arrival, got %+v", toks)
	}
}

func TestThresholdIsRequired(t *testing.T) {
	if _, err := NewMerger(domain.TypeColor, Config{}, logger.NewNop()); err == nil {
		t.Fatalf("expected error without explicit threshold")
	}
	if _, err := NewMerger(domain.TypeColor, Config{Threshold: -1}, logger.NewNop()); err == nil {
		t.Fatalf("expected error for negative threshold")
	}
}

func TestZeroCandidatesYieldsNoTokens(t *testing.T) {
	toks, err := Merge(domain.TypeDimension, Config{Threshold: 0.05}, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 0 {
		t.Fatalf("expected no tokens, got %v", toks)
	}
}

func TestWeightedMeanConfidence(t *testing.T) {
	toks, err := Merge(domain.TypeColor, Config{Threshold: 4.0, Confidence: ConfidenceWeightedMean}, logger.NewNop(), []domain.Candidate{
		{Value: "#FF5733", Confidence: 1.0, Weight: 3, SourceID: "cv"},
		{Value: "#FE5734", Confidence: 0.5, Weight: 1, SourceID: "ai"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := (1.0*3 + 0.5*1) / 4
	if math.Abs(toks[0].Attributes.Confidence-want) > 1e-9 {
		t.Fatalf("weighted mean = %v, want %v", toks[0].Attributes.Confidence, want)
	}
}

func TestDimensionMerging(t *testing.T) {
	toks, err := Merge(domain.TypeDimension, Config{Threshold: 0.05}, logger.NewNop(), []domain.Candidate{
		{Value: "16px", Confidence: 0.9, SourceID: "cv"},
		{Value: "16.2px", Confidence: 0.5, SourceID: "ai"},
		{Value: "32px", Confidence: 0.9, SourceID: "cv"},
		{Value: "16em", Confidence: 0.9, SourceID: "css"}, // unit mismatch never merges
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %+v", len(toks), toks)
	}
	if toks[0].Value != "16px" {
		t.Fatalf("higher confidence 16px should win its cluster, got %q", toks[0].Value)
	}
}

func TestDistanceScales(t *testing.T) {
	if d := Distance(domain.TypeColor, "#FF5733", "#FF5733"); d != 0 {
		t.Fatalf("identical colors distance %v", d)
	}
	if d := Distance(domain.TypeColor, "not-a-color", "#FF5733"); !math.IsInf(d, 1) {
		t.Fatalf("unparseable color should be infinitely far, got %v", d)
	}
	if d := Distance(domain.TypeFontFamily, `"Inter"`, "inter"); d != 0 {
		t.Fatalf("quoted/case variants should normalize, got %v", d)
	}
	if d := Distance(domain.TypeShadow, "0px 2px 4px #000000", "0px 2px 4px #000000"); d != 0 {
		t.Fatalf("identical shadows distance %v", d)
	}
	if d := Distance(domain.TypeShadow, "0px 2px", "0px 2px 4px"); !math.IsInf(d, 1) {
		t.Fatalf("arity mismatch should be infinite, got %v", d)
	}
}
