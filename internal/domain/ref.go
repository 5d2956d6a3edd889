package domain

import (
	"regexp"
	"sort"
	"strings"
)

var refPattern = regexp.MustCompile(`\{([a-z0-9_.\-]+)\}`)

// IsReference reports whether s is a single whole-value reference.
func IsReference(s string) bool {
	s = strings.TrimSpace(s)
	m := refPattern.FindStringSubmatch(s)
	return m != nil && m[0] == s
}

// ReferenceTarget extracts the referenced id from a whole-value reference.
func ReferenceTarget(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := refPattern.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return "", false
	}
	return m[1], true
}

// EmbeddedReferences lists every id referenced anywhere in s, in order.
func EmbeddedReferences(s string) []string {
	out := []string{}
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

// ReplaceReferences rewrites every `{id}` in s with repl's result; the first
// error aborts the whole substitution.
func ReplaceReferences(s string, repl func(target string) (string, error)) (string, error) {
	if !strings.Contains(s, "{") {
		return s, nil
	}
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		sub, err := repl(m[1 : len(m)-1])
		if err != nil {
			firstErr = err
			return m
		}
		return sub
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ImpliedRelations derives the edges a token's value text encodes: a
// whole-value `{ref}` is an ALIAS, embedded refs in the value or in
// composite parts are REFERENCES. Deduped, parts in sorted order. This is
// the single source of truth shared by the graph store and the interchange
// importer so that value text and edges can never disagree.
func ImpliedRelations(tok Token) []Relation {
	rels := []Relation{}
	seen := map[string]bool{}

	if target, ok := ReferenceTarget(tok.Value); ok {
		rels = append(rels, Relation{Kind: RelationAlias, TargetID: target})
		seen[target] = true
	} else {
		for _, target := range EmbeddedReferences(tok.Value) {
			if !seen[target] {
				seen[target] = true
				rels = append(rels, Relation{Kind: RelationReferences, TargetID: target})
			}
		}
	}

	partNames := make([]string, 0, len(tok.Parts))
	for name := range tok.Parts {
		partNames = append(partNames, name)
	}
	sort.Strings(partNames)
	for _, name := range partNames {
		for _, target := range EmbeddedReferences(tok.Parts[name]) {
			if !seen[target] {
				seen[target] = true
				rels = append(rels, Relation{Kind: RelationReferences, TargetID: target})
			}
		}
	}
	return rels
}
