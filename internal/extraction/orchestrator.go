package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/joshband/copy-that-sub005/internal/config"
	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/observability"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// Orchestrator dispatches extractors onto a bounded pool and streams each
// outcome the moment it completes. A slow extractor never delays delivery
// of its siblings; a failing one degrades to an error outcome.
type Orchestrator struct {
	cfg config.ExtractionConfig
	log *logger.Logger
}

func NewOrchestrator(cfg config.ExtractionConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg: cfg,
		log: log.With("component", "ExtractionOrchestrator"),
	}
}

// Run validates the input, then dispatches every extractor. The returned
// channel delivers outcomes in completion order and closes when all work is
// done or the context is cancelled. Precondition failures abort before any
// extractor starts and are reported once, as the returned error.
//
// The channel is bounded by QueueSize: a consumer that lags applies
// backpressure to extractor goroutines rather than buffering unboundedly.
func (o *Orchestrator) Run(ctx context.Context, in Input, extractors []Extractor) (<-chan Outcome, *RunMetrics, error) {
	if len(in.Artifact) == 0 {
		return nil, nil, fmt.Errorf("%w: empty artifact", domain.ErrInvalidInput)
	}

	runID := uuid.New()
	metrics := newRunMetrics(runID)
	log := o.log.With("run_id", runID.String())
	log.Info("extraction run starting", "extractors", len(extractors), "artifact_bytes", len(in.Artifact))

	out := make(chan Outcome, o.cfg.QueueSize)
	sem := semaphore.NewWeighted(int64(o.cfg.MaxWorkers))

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		for _, ext := range extractors {
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Warn("dispatch stopped", "error", err)
				break
			}
			wg.Add(1)
			go func(ext Extractor) {
				defer wg.Done()
				defer sem.Release(1)
				oc := o.runOne(ctx, ext, in)
				metrics.record(oc)
				select {
				case out <- oc:
				case <-ctx.Done():
					log.Warn("outcome dropped on cancellation", "extractor", oc.ExtractorID)
				}
			}(ext)
		}
		wg.Wait()
	}()

	return out, metrics, nil
}

func (o *Orchestrator) runOne(ctx context.Context, ext Extractor, in Input) (oc Outcome) {
	oc = Outcome{ExtractorID: ext.ID(), Category: ext.Category()}

	if o.cfg.ExtractorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ExtractorTimeout)
		defer cancel()
	}

	ctx, span := observability.Tracer().Start(ctx, "extractor.run")
	span.SetAttributes(
		attribute.String("extractor.id", ext.ID()),
		attribute.String("extractor.category", string(ext.Category())),
	)
	defer span.End()

	if ce, ok := ext.(CostEstimator); ok {
		oc.Cost = ce.EstimateCost(in)
	}

	start := time.Now()
	defer func() {
		oc.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			oc.Candidates = nil
			oc.Err = fmt.Errorf("extractor %s panicked: %v", ext.ID(), r)
		}
		if oc.Err != nil {
			span.SetStatus(codes.Error, oc.Err.Error())
			o.log.Warn("extractor failed", "extractor", ext.ID(), "error", oc.Err)
		} else {
			span.SetAttributes(attribute.Int("extractor.candidates", len(oc.Candidates)))
		}
	}()

	cands, err := ext.Extract(ctx, in)
	if err != nil {
		oc.Err = err
		return oc
	}
	oc.Candidates = cands
	return oc
}
