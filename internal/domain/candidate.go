package domain

// Candidate is one unmerged extractor output. Candidates are ephemeral: the
// deduplicator consumes them destructively and only merged tokens survive.
//
// Value uses the same string form as Token.Value. Weight is a category
// specific prior (pixel coverage for colors, occurrence count for
// dimensions) used when merged confidence is computed as a weighted mean.
type Candidate struct {
	Value      string         `json:"value"`
	SourceID   string         `json:"source_id"`
	Confidence float64        `json:"confidence"`
	Weight     float64        `json:"weight,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
