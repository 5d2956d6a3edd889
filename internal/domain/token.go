package domain

import (
	"strings"
	"time"
)

// TokenType discriminates the value payload a token carries. The set is
// closed; extractors and the interchange adapter reject anything else.
type TokenType string

const (
	TypeColor      TokenType = "color"
	TypeDimension  TokenType = "dimension"
	TypeShadow     TokenType = "shadow"
	TypeTypography TokenType = "typography"
	TypeFontFamily TokenType = "fontFamily"
	TypeFontWeight TokenType = "fontWeight"
	TypeDuration   TokenType = "duration"
	TypeNumber     TokenType = "number"
)

var knownTypes = map[TokenType]bool{
	TypeColor:      true,
	TypeDimension:  true,
	TypeShadow:     true,
	TypeTypography: true,
	TypeFontFamily: true,
	TypeFontWeight: true,
	TypeDuration:   true,
	TypeNumber:     true,
}

func (t TokenType) Known() bool { return knownTypes[t] }

// Composite reports whether values of this type are usually carried as a
// part map (exported as a `$value` object) rather than a single string.
func (t TokenType) Composite() bool {
	return t == TypeShadow || t == TypeTypography
}

// ParseTokenType normalizes a `$type` string from an interchange document.
func ParseTokenType(s string) (TokenType, bool) {
	t := TokenType(strings.TrimSpace(s))
	if t.Known() {
		return t, true
	}
	// Interchange documents in the wild vary the casing of compound types.
	switch strings.ToLower(string(t)) {
	case "fontfamily", "font-family":
		return TypeFontFamily, true
	case "fontweight", "font-weight":
		return TypeFontWeight, true
	}
	return "", false
}

// RelationKind is the type of a directed edge between two tokens.
type RelationKind string

const (
	RelationAlias        RelationKind = "alias"
	RelationComposes     RelationKind = "composes"
	RelationBaseMultiple RelationKind = "base_multiple"
	RelationReferences   RelationKind = "references"
)

func (k RelationKind) Known() bool {
	switch k {
	case RelationAlias, RelationComposes, RelationBaseMultiple, RelationReferences:
		return true
	}
	return false
}

// ReferenceGroup reports which acyclicity group the edge kind belongs to.
// Alias/references edges must stay acyclic together; composes/base-multiple
// edges form the component-to-primitive DAG.
func (k RelationKind) ReferenceGroup() bool {
	return k == RelationAlias || k == RelationReferences
}

// Relation is one outgoing typed edge of a token. Order matters: relations
// are kept in insertion order and round-trip through the interchange format.
type Relation struct {
	Kind     RelationKind   `json:"kind"`
	TargetID string         `json:"target_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Attributes carries extraction metadata attached to a merged token.
type Attributes struct {
	Confidence  float64        `json:"confidence"`
	Provenance  []string       `json:"provenance,omitempty"`
	ExtractedAt time.Time      `json:"extracted_at,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Token is a canonical named design value in the graph.
//
// Value holds the string form ("#ff5733", "16px", "{color.primary}").
// Composite types additionally carry Parts, a named sub-value map whose
// entries may themselves embed `{path}` references.
type Token struct {
	ID         string            `json:"id"`
	Type       TokenType         `json:"type"`
	Value      string            `json:"value"`
	Parts      map[string]string `json:"parts,omitempty"`
	Attributes Attributes        `json:"attributes"`
	Relations  []Relation        `json:"relations,omitempty"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

// Clone returns a deep copy; graph snapshots hand out clones so readers can
// never mutate committed state.
func (t Token) Clone() Token {
	out := t
	if t.Parts != nil {
		out.Parts = make(map[string]string, len(t.Parts))
		for k, v := range t.Parts {
			out.Parts[k] = v
		}
	}
	if t.Attributes.Provenance != nil {
		out.Attributes.Provenance = append([]string(nil), t.Attributes.Provenance...)
	}
	if t.Attributes.Extra != nil {
		out.Attributes.Extra = cloneAnyMap(t.Attributes.Extra)
	}
	if t.Relations != nil {
		out.Relations = make([]Relation, len(t.Relations))
		for i, r := range t.Relations {
			out.Relations[i] = r
			if r.Meta != nil {
				out.Relations[i].Meta = cloneAnyMap(r.Meta)
			}
		}
	}
	if t.Meta != nil {
		out.Meta = cloneAnyMap(t.Meta)
	}
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
