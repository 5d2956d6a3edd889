// Package engine wires the pipeline end to end: dispatch extractors, fold
// their candidate streams through per-category dedup, and commit the merged
// tokens to the graph in one batch per category.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/joshband/copy-that-sub005/internal/config"
	"github.com/joshband/copy-that-sub005/internal/dedupe"
	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/graph"
	"github.com/joshband/copy-that-sub005/internal/interchange"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
	"github.com/joshband/copy-that-sub005/internal/resolver"
)

type Engine struct {
	cfg      config.Config
	log      *logger.Logger
	registry *extraction.Registry
	orch     *extraction.Orchestrator
	store    *graph.Store
	resolver *resolver.Resolver
}

func New(cfg config.Config, log *logger.Logger, registry *extraction.Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log.With("component", "Engine"),
		registry: registry,
		orch:     extraction.NewOrchestrator(cfg.Extraction, log),
		store:    graph.NewStore(log),
		resolver: resolver.New(log),
	}
}

// CategoryReport describes one category's trip through the pipeline.
type CategoryReport struct {
	Candidates int
	Tokens     int
	Committed  bool
	// ExtractorErrors carries per-extractor failures; they degrade the
	// category, never abort it.
	ExtractorErrors []string
	CommitError     string
}

type Report struct {
	Categories map[domain.TokenType]*CategoryReport
	Metrics    extraction.MetricsSnapshot
}

// Run executes the full pipeline for one artifact. Extractor failures land
// in the report; a cancelled context discards all uncommitted work and
// returns the context error, leaving the graph exactly as it was.
func (e *Engine) Run(ctx context.Context, in extraction.Input, categories []domain.TokenType) (*Report, error) {
	if len(categories) == 0 {
		categories = e.registry.Categories()
	}
	if err := e.cfg.Verify(categories); err != nil {
		return nil, err
	}

	extractors := e.registry.ForCategories(categories)
	if len(extractors) == 0 {
		return nil, fmt.Errorf("%w: no extractors registered for %v", domain.ErrInvalidInput, categories)
	}

	outcomes, metrics, err := e.orch.Run(ctx, in, extractors)
	if err != nil {
		return nil, err
	}

	report := &Report{Categories: map[domain.TokenType]*CategoryReport{}}
	for _, cat := range categories {
		report.Categories[cat] = &CategoryReport{}
	}

	byCategory := map[domain.TokenType][]domain.Candidate{}
	for oc := range outcomes {
		cr := report.Categories[oc.Category]
		if cr == nil {
			cr = &CategoryReport{}
			report.Categories[oc.Category] = cr
		}
		if oc.Err != nil {
			cr.ExtractorErrors = append(cr.ExtractorErrors, fmt.Sprintf("%s: %v", oc.ExtractorID, oc.Err))
			continue
		}
		cr.Candidates += len(oc.Candidates)
		byCategory[oc.Category] = append(byCategory[oc.Category], oc.Candidates...)
	}
	if err := ctx.Err(); err != nil {
		// partial streams are never merged or committed
		return nil, err
	}

	for _, cat := range categories {
		cr := report.Categories[cat]
		toks, err := dedupe.Merge(cat, e.cfg.MergerConfig(cat), e.log, byCategory[cat])
		if err != nil {
			return nil, err
		}
		cr.Tokens = len(toks)
		if len(toks) == 0 {
			continue
		}
		if err := e.store.UpsertBatch(toks); err != nil {
			cr.CommitError = err.Error()
			e.log.Error("category commit rejected", "category", string(cat), "error", err)
			continue
		}
		cr.Committed = true
	}

	report.Metrics = metrics.Snapshot()
	e.log.Info("run complete",
		"completed", report.Metrics.Completed,
		"failed", report.Metrics.Failed,
		"graph_tokens", e.store.Len(),
	)
	return report, nil
}

// Extract is the staged form of Run: it dispatches the extractors for the
// given categories and hands back the raw outcome stream plus run metrics.
// Callers own consumption, merging and commit.
func (e *Engine) Extract(ctx context.Context, in extraction.Input, categories []domain.TokenType) (<-chan extraction.Outcome, *extraction.RunMetrics, error) {
	if len(categories) == 0 {
		categories = e.registry.Categories()
	}
	if err := e.cfg.Verify(categories); err != nil {
		return nil, nil, err
	}
	extractors := e.registry.ForCategories(categories)
	if len(extractors) == 0 {
		return nil, nil, fmt.Errorf("%w: no extractors registered for %v", domain.ErrInvalidInput, categories)
	}
	return e.orch.Run(ctx, in, extractors)
}

// MergeOutcomes folds one category's successful outcomes into merged tokens.
// Failed outcomes are skipped; they were already reported on the stream.
func (e *Engine) MergeOutcomes(category domain.TokenType, outcomes []extraction.Outcome) ([]domain.Token, error) {
	var cands []domain.Candidate
	for _, oc := range outcomes {
		if oc.Err != nil || oc.Category != category {
			continue
		}
		cands = append(cands, oc.Candidates...)
	}
	return dedupe.Merge(category, e.cfg.MergerConfig(category), e.log, cands)
}

// Commit writes merged tokens to the graph as one batch; rejection lists
// every offender and leaves the graph untouched.
func (e *Engine) Commit(tokens []domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	return e.store.UpsertBatch(tokens)
}

// Graph exposes the underlying store for direct queries and mutation.
func (e *Engine) Graph() *graph.Store { return e.store }

// Resolve follows alias and embedded references to a concrete value.
func (e *Engine) Resolve(ctx context.Context, id string) (resolver.Resolution, error) {
	return e.resolver.Resolve(ctx, e.store.Snapshot(), id)
}

// Export serializes the current graph as an interchange document.
func (e *Engine) Export() ([]byte, error) {
	return interchange.Export(e.store.Snapshot())
}

// Import loads an interchange document into the graph; a rejected document
// leaves the graph untouched and the error lists every offender.
func (e *Engine) Import(data []byte) error {
	return interchange.ImportInto(e.store, data)
}

// Summary is a compact, sorted description of graph contents for logs and
// CLI output.
func (e *Engine) Summary() map[string]int {
	sn := e.store.Snapshot()
	out := map[string]int{}
	ids := sn.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		tok, ok := sn.Get(id)
		if !ok {
			continue
		}
		out[string(tok.Type)]++
	}
	return out
}
