// Package extraction runs registered extractors concurrently against an
// input artifact and streams their outcomes in completion order.
package extraction

import (
	"context"
	"time"

	"github.com/joshband/copy-that-sub005/internal/domain"
)

// Input is the artifact handed to every extractor in a run.
type Input struct {
	Name     string
	MIME     string
	Artifact []byte
	Meta     map[string]any
}

// Extractor produces raw candidates for exactly one category. The engine is
// agnostic to how: pixel scans and hosted AI calls implement the same
// contract.
type Extractor interface {
	ID() string
	Category() domain.TokenType
	Extract(ctx context.Context, in Input) ([]domain.Candidate, error)
}

// CostEstimator is implemented by extractors with a per-call price (hosted
// AI APIs); local extractors simply don't implement it.
type CostEstimator interface {
	EstimateCost(in Input) float64
}

// Outcome is one extractor's result. A failed extractor yields Err set and
// no candidates; its siblings are unaffected.
type Outcome struct {
	ExtractorID string
	Category    domain.TokenType
	Candidates  []domain.Candidate
	Elapsed     time.Duration
	Cost        float64
	Err         error
}
