// Package dedupe clusters raw extractor candidates into canonical tokens.
//
// The algorithm keeps open clusters and folds each new candidate into the
// nearest one under the category's perceptual distance, O(n·k) for k live
// clusters. Conflicts resolve toward strictly higher confidence; exact ties
// keep the earliest arrival, then the lexicographically smaller sourceId.
// Both the distance threshold and the merged-confidence policy are explicit
// configuration, never defaulted.
package dedupe

import (
	"fmt"
	"time"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// ConfidencePolicy selects how a merged token's confidence is derived from
// its contributors.
type ConfidencePolicy string

const (
	ConfidenceMax          ConfidencePolicy = "max"
	ConfidenceWeightedMean ConfidencePolicy = "weighted_mean"
)

type Config struct {
	// Threshold is the maximum perceptual distance at which two candidates
	// are considered the same token. Required, no default.
	Threshold float64
	// Confidence policy for merged tokens; defaults to max.
	Confidence ConfidencePolicy
}

type cluster struct {
	value       string  // canonical value, owned by the winning candidate
	bestConf    float64
	bestArrival int
	bestSource  string
	confidences []float64
	weights     []float64
	provenance  []string // every contributing sourceId, arrival order
	attrs       map[string]any
	size        int
}

// Merger consumes one category's candidate stream. Not safe for concurrent
// use; the engine feeds each merger from a single consumer goroutine.
type Merger struct {
	category domain.TokenType
	cfg      Config
	log      *logger.Logger
	clusters []*cluster
	arrival  int
}

func NewMerger(category domain.TokenType, cfg Config, log *logger.Logger) (*Merger, error) {
	if !category.Known() {
		return nil, fmt.Errorf("dedupe: unknown category %q", category)
	}
	if cfg.Threshold <= 0 {
		return nil, fmt.Errorf("dedupe: category %s requires an explicit positive distance threshold", category)
	}
	switch cfg.Confidence {
	case "":
		cfg.Confidence = ConfidenceMax
	case ConfidenceMax, ConfidenceWeightedMean:
	default:
		return nil, fmt.Errorf("dedupe: unknown confidence policy %q", cfg.Confidence)
	}
	return &Merger{
		category: category,
		cfg:      cfg,
		log:      log.With("component", "Deduplicator", "category", string(category)),
	}, nil
}

// Add folds one candidate into the nearest open cluster, or opens a new one.
func (m *Merger) Add(c domain.Candidate) {
	arrival := m.arrival
	m.arrival++

	best := -1
	bestDist := m.cfg.Threshold
	for i, cl := range m.clusters {
		d := Distance(m.category, cl.value, c.Value)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		m.clusters = append(m.clusters, &cluster{
			value:       c.Value,
			bestConf:    c.Confidence,
			bestArrival: arrival,
			bestSource:  c.SourceID,
			confidences: []float64{c.Confidence},
			weights:     []float64{weightOf(c)},
			provenance:  []string{c.SourceID},
			attrs:       c.Attributes,
			size:        1,
		})
		return
	}

	cl := m.clusters[best]
	cl.size++
	cl.confidences = append(cl.confidences, c.Confidence)
	cl.weights = append(cl.weights, weightOf(c))
	if !containsStr(cl.provenance, c.SourceID) {
		cl.provenance = append(cl.provenance, c.SourceID)
	}
	if candidateWins(c, arrival, cl) {
		m.log.Debug("merge conflict resolved",
			"kept_value", c.Value, "dropped_value", cl.value,
			"kept_confidence", c.Confidence, "dropped_confidence", cl.bestConf,
		)
		cl.value = c.Value
		cl.bestConf = c.Confidence
		cl.bestArrival = arrival
		cl.bestSource = c.SourceID
		cl.attrs = c.Attributes
	}
}

// candidateWins applies the conflict policy: strictly higher confidence,
// then earliest arrival, then lexicographic sourceId.
func candidateWins(c domain.Candidate, arrival int, cl *cluster) bool {
	if c.Confidence != cl.bestConf {
		return c.Confidence > cl.bestConf
	}
	if arrival != cl.bestArrival {
		return arrival < cl.bestArrival
	}
	return c.SourceID < cl.bestSource
}

// Tokens closes the merger and materializes one token per cluster, ready
// for a graph upsert. Zero candidates yields zero tokens, not an error.
func (m *Merger) Tokens() []domain.Token {
	now := time.Now().UTC()
	used := map[string]bool{}
	out := make([]domain.Token, 0, len(m.clusters))
	for _, cl := range m.clusters {
		id := tokenID(m.category, cl.value, used)
		// The winning candidate's attributes travel with the token.
		extra := make(map[string]any, len(cl.attrs)+1)
		for k, v := range cl.attrs {
			extra[k] = v
		}
		extra["cluster_size"] = float64(cl.size)
		out = append(out, domain.Token{
			ID:    id,
			Type:  m.category,
			Value: cl.value,
			Attributes: domain.Attributes{
				Confidence:  m.mergedConfidence(cl),
				Provenance:  append([]string(nil), cl.provenance...),
				ExtractedAt: now,
				Extra:       extra,
			},
		})
	}
	return out
}

// Merge is the one-shot form used for a complete per-category batch.
func Merge(category domain.TokenType, cfg Config, log *logger.Logger, candidates []domain.Candidate) ([]domain.Token, error) {
	m, err := NewMerger(category, cfg, log)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		m.Add(c)
	}
	return m.Tokens(), nil
}

func (m *Merger) mergedConfidence(cl *cluster) float64 {
	switch m.cfg.Confidence {
	case ConfidenceWeightedMean:
		var sum, wsum float64
		for i, c := range cl.confidences {
			w := cl.weights[i]
			sum += c * w
			wsum += w
		}
		if wsum == 0 {
			return cl.bestConf
		}
		return clamp01(sum / wsum)
	default:
		var max float64
		for _, c := range cl.confidences {
			if c > max {
				max = c
			}
		}
		return clamp01(max)
	}
}

func tokenID(category domain.TokenType, value string, used map[string]bool) string {
	slug := domain.SlugSegment(value)
	if slug == "" {
		slug = "token"
	}
	base := fmt.Sprintf("%s.%s", domain.SlugSegment(string(category)), slug)
	id := base
	for n := 2; used[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	used[id] = true
	return id
}

func weightOf(c domain.Candidate) float64 {
	if c.Weight > 0 {
		return c.Weight
	}
	return 1
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
