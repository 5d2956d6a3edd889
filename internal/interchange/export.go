package interchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/graph"
)

// Export serializes the snapshot as an indented interchange document.
// Output is deterministic: stdlib JSON sorts object keys.
func Export(sn *graph.Snapshot) ([]byte, error) {
	tree, err := ExportTree(sn)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(tree, "", "  ")
}

// ExportTree groups tokens by path segment into nested objects.
func ExportTree(sn *graph.Snapshot) (map[string]any, error) {
	root := map[string]any{}
	for _, id := range sn.IDs() {
		tok, _ := sn.Get(id)
		leaf, err := exportToken(tok)
		if err != nil {
			return nil, err
		}
		if err := placeAt(root, id, leaf); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func placeAt(root map[string]any, id string, leaf map[string]any) error {
	segs := strings.Split(id, ".")
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok || m["$value"] != nil {
			return fmt.Errorf("interchange: path %q collides with an existing token", id)
		}
		cur = m
	}
	last := segs[len(segs)-1]
	if _, exists := cur[last]; exists {
		return fmt.Errorf("interchange: path %q collides with an existing group", id)
	}
	cur[last] = leaf
	return nil
}

func exportToken(tok domain.Token) (map[string]any, error) {
	leaf := map[string]any{"$type": string(tok.Type)}

	// Alias tokens export the reference string, never the resolved value.
	value := any(tok.Value)
	if target, ok := aliasTarget(tok); ok {
		value = "{" + target + "}"
	} else if len(tok.Parts) > 0 {
		parts := make(map[string]any, len(tok.Parts))
		for k, v := range tok.Parts {
			parts[k] = v
		}
		value = parts
	}
	leaf["$value"] = value

	if desc, ok := tok.Meta["description"].(string); ok && desc != "" {
		leaf["$description"] = desc
	}

	ext := map[string]any{}
	extraction := map[string]any{}
	if tok.Attributes.Confidence != 0 {
		extraction["confidence"] = tok.Attributes.Confidence
	}
	if len(tok.Attributes.Provenance) > 0 {
		extraction["provenance"] = tok.Attributes.Provenance
	}
	if !tok.Attributes.ExtractedAt.IsZero() {
		extraction["extracted_at"] = tok.Attributes.ExtractedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(tok.Attributes.Extra) > 0 {
		extraction["extra"] = tok.Attributes.Extra
	}
	if len(extraction) > 0 {
		ext[ExtensionExtraction] = extraction
	}

	// Structural relations not derivable from the value text.
	structural := []any{}
	for _, rel := range tok.Relations {
		if rel.Kind == domain.RelationAlias || rel.Kind == domain.RelationReferences {
			continue
		}
		entry := map[string]any{"kind": string(rel.Kind), "target": rel.TargetID}
		if len(rel.Meta) > 0 {
			entry["meta"] = rel.Meta
		}
		structural = append(structural, entry)
	}
	if len(structural) > 0 {
		ext[ExtensionRelations] = structural
	}
	if len(ext) > 0 {
		leaf["$extensions"] = ext
	}
	return leaf, nil
}

func aliasTarget(tok domain.Token) (string, bool) {
	for _, rel := range tok.Relations {
		if rel.Kind == domain.RelationAlias {
			return rel.TargetID, true
		}
	}
	return "", false
}
