package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joshband/copy-that-sub005/internal/config"
	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

type stubExtractor struct {
	id       string
	category domain.TokenType
	delay    time.Duration
	cands    []domain.Candidate
	err      error
}

func (s *stubExtractor) ID() string                 { return s.id }
func (s *stubExtractor) Category() domain.TokenType { return s.category }

func (s *stubExtractor) Extract(ctx context.Context, _ extraction.Input) ([]domain.Candidate, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.cands, s.err
}

func testConfig() config.Config {
	return config.Config{
		Extraction: config.ExtractionConfig{MaxWorkers: 4, QueueSize: 8},
		Dedupe: config.DedupeConfig{
			Confidence: "max",
			Thresholds: map[string]float64{"color": 2.5, "dimension": 0.1},
		},
	}
}

func newEngine(t *testing.T, exts ...extraction.Extractor) *Engine {
	t.Helper()
	reg := extraction.NewRegistry()
	for _, e := range exts {
		if err := reg.Register(e); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return New(testConfig(), logger.NewNop(), reg)
}

func artifact() extraction.Input {
	return extraction.Input{Name: "screen.png", MIME: "image/png", Artifact: []byte{1, 2, 3}}
}

func TestRunMergesAcrossExtractorsAndCommits(t *testing.T) {
	// Two sources find the same brand orange within the color threshold; the
	// graph must end up with one token carrying both provenances.
	cv := &stubExtractor{id: "cv", category: domain.TypeColor,
		cands: []domain.Candidate{{Value: "#FF5733", SourceID: "cv", Confidence: 0.9}}}
	ai := &stubExtractor{id: "ai", category: domain.TypeColor, delay: 10 * time.Millisecond,
		cands: []domain.Candidate{{Value: "#FE5734", SourceID: "ai", Confidence: 0.6}}}

	e := newEngine(t, cv, ai)
	report, err := e.Run(context.Background(), artifact(), []domain.TokenType{domain.TypeColor})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	cr := report.Categories[domain.TypeColor]
	if cr.Candidates != 2 || cr.Tokens != 1 || !cr.Committed {
		t.Fatalf("report wrong: %+v", cr)
	}
	toks := e.Graph().GetByType(domain.TypeColor)
	if len(toks) != 1 {
		t.Fatalf("graph holds %d color tokens, want 1", len(toks))
	}
	if toks[0].Value != "#FF5733" {
		t.Fatalf("merged value = %q, want the higher-confidence #FF5733", toks[0].Value)
	}
	if len(toks[0].Attributes.Provenance) != 2 {
		t.Fatalf("provenance = %v, want both sources", toks[0].Attributes.Provenance)
	}
}

func TestRunFailedExtractorDegradesNotAborts(t *testing.T) {
	bad := &stubExtractor{id: "bad", category: domain.TypeColor, err: errors.New("lens cap on")}
	good := &stubExtractor{id: "good", category: domain.TypeColor,
		cands: []domain.Candidate{{Value: "#112233", SourceID: "good", Confidence: 0.8}}}

	e := newEngine(t, bad, good)
	report, err := e.Run(context.Background(), artifact(), []domain.TokenType{domain.TypeColor})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	cr := report.Categories[domain.TypeColor]
	if len(cr.ExtractorErrors) != 1 {
		t.Fatalf("expected 1 extractor error, got %v", cr.ExtractorErrors)
	}
	if !cr.Committed || cr.Tokens != 1 {
		t.Fatalf("surviving extractor's output must commit: %+v", cr)
	}
	if report.Metrics.Failed != 1 || report.Metrics.Completed != 2 {
		t.Fatalf("metrics wrong: %+v", report.Metrics)
	}
}

func TestRunCancellationLeavesGraphUntouched(t *testing.T) {
	slow := &stubExtractor{id: "slow", category: domain.TypeColor, delay: 5 * time.Second,
		cands: []domain.Candidate{{Value: "#ffffff", SourceID: "slow", Confidence: 0.9}}}

	e := newEngine(t, slow)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.Run(ctx, artifact(), []domain.TokenType{domain.TypeColor})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.Graph().Len() != 0 {
		t.Fatalf("cancelled run committed %d tokens", e.Graph().Len())
	}
}

func TestRunRequiresExtractorsAndThresholds(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Run(context.Background(), artifact(), []domain.TokenType{domain.TypeColor}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty registry, got %v", err)
	}

	reg := extraction.NewRegistry()
	if err := reg.Register(&stubExtractor{id: "s", category: domain.TypeShadow}); err != nil {
		t.Fatalf("register: %v", err)
	}
	noThreshold := New(testConfig(), logger.NewNop(), reg)
	if _, err := noThreshold.Run(context.Background(), artifact(), []domain.TokenType{domain.TypeShadow}); err == nil {
		t.Fatalf("category without threshold must be rejected before dispatch")
	}
}

func TestStagedExtractMergeCommit(t *testing.T) {
	cv := &stubExtractor{id: "cv", category: domain.TypeColor,
		cands: []domain.Candidate{{Value: "#FF5733", SourceID: "cv", Confidence: 0.9}}}
	bad := &stubExtractor{id: "bad", category: domain.TypeColor, err: errors.New("nope")}

	e := newEngine(t, cv, bad)
	ch, _, err := e.Extract(context.Background(), artifact(), []domain.TokenType{domain.TypeColor})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var outcomes []extraction.Outcome
	for oc := range ch {
		outcomes = append(outcomes, oc)
	}
	toks, err := e.MergeOutcomes(domain.TypeColor, outcomes)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(toks) != 1 {
		t.Fatalf("expected 1 merged token, got %d", len(toks))
	}
	if err := e.Commit(toks); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if e.Graph().Len() != 1 {
		t.Fatalf("graph holds %d tokens", e.Graph().Len())
	}
}

func TestEngineImportResolveExport(t *testing.T) {
	doc := []byte(`{
		"color": {
			"primary": {"$type": "color", "$value": "#000000"},
			"button": {"$type": "color", "$value": "{color.primary}"}
		}
	}`)
	e := newEngine(t, &stubExtractor{id: "cv", category: domain.TypeColor})
	if err := e.Import(doc); err != nil {
		t.Fatalf("import: %v", err)
	}
	res, err := e.Resolve(context.Background(), "color.button")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Value != "#000000" {
		t.Fatalf("resolved value = %q", res.Value)
	}
	out, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("empty export")
	}
	if got := e.Summary()["color"]; got != 2 {
		t.Fatalf("summary counts %d color tokens, want 2", got)
	}
}
