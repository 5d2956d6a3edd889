package interchange

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/graph"
)

// ImportIssue names one offending token path inside a rejected document.
type ImportIssue struct {
	Path string
	Err  error
}

// ImportError lists every offender, not just the first encountered.
type ImportError struct {
	Issues []ImportIssue
}

func (e *ImportError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %v", is.Path, is.Err))
	}
	return fmt.Sprintf("import rejected (%d offending tokens): %s", len(e.Issues), strings.Join(parts, "; "))
}

// Parse flattens an interchange document into tokens without touching any
// store. Parse-level problems (unknown type, malformed value) are collected
// per path and returned as an *ImportError.
func Parse(data []byte) ([]domain.Token, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("interchange: parse document: %w", err)
	}

	toks := []domain.Token{}
	issues := []ImportIssue{}
	walk(root, nil, &toks, &issues)

	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		return nil, &ImportError{Issues: issues}
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i].ID < toks[j].ID })
	return toks, nil
}

// ImportInto parses and commits in one transaction against st. A document
// that would introduce a cycle, dangling reference or type mismatch is
// rejected wholesale with the full offender list; the store is unchanged.
func ImportInto(st *graph.Store, data []byte) error {
	toks, err := Parse(data)
	if err != nil {
		return err
	}
	if err := st.UpsertBatch(toks); err != nil {
		if be, ok := err.(*graph.BatchError); ok {
			out := &ImportError{}
			for _, is := range be.Issues {
				out.Issues = append(out.Issues, ImportIssue{Path: is.ID, Err: is.Err})
			}
			return out
		}
		return err
	}
	return nil
}

func walk(nodeMap map[string]any, segs []string, toks *[]domain.Token, issues *[]ImportIssue) {
	if _, isToken := nodeMap["$value"]; isToken {
		path := strings.Join(segs, ".")
		tok, err := importToken(path, nodeMap)
		if err != nil {
			*issues = append(*issues, ImportIssue{Path: path, Err: err})
			return
		}
		*toks = append(*toks, tok)
		return
	}
	for key, child := range nodeMap {
		if strings.HasPrefix(key, "$") {
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			*issues = append(*issues, ImportIssue{
				Path: strings.Join(append(segs, key), "."),
				Err:  fmt.Errorf("expected object, got %T", child),
			})
			continue
		}
		walk(childMap, append(segs, key), toks, issues)
	}
}

func importToken(path string, leaf map[string]any) (domain.Token, error) {
	typeStr, _ := leaf["$type"].(string)
	typ, ok := domain.ParseTokenType(typeStr)
	if !ok {
		return domain.Token{}, &domain.GraphError{Kind: domain.KindTypeMismatch, ID: path, Detail: fmt.Sprintf("unknown $type %q", typeStr)}
	}

	tok := domain.Token{ID: path, Type: typ}

	switch v := leaf["$value"].(type) {
	case string:
		tok.Value = v
	case map[string]any:
		tok.Parts = make(map[string]string, len(v))
		for k, pv := range v {
			s, ok := pv.(string)
			if !ok {
				return domain.Token{}, &domain.GraphError{Kind: domain.KindTypeMismatch, ID: path, Detail: fmt.Sprintf("composite $value part %q is %T, want string", k, pv)}
			}
			tok.Parts[k] = s
		}
	default:
		return domain.Token{}, &domain.GraphError{Kind: domain.KindTypeMismatch, ID: path, Detail: fmt.Sprintf("$value is %T, want string or object", v)}
	}

	if desc, ok := leaf["$description"].(string); ok && desc != "" {
		tok.Meta = map[string]any{"description": desc}
	}

	// The same derivation the graph store applies at upsert, so an imported
	// document and a directly built graph agree edge for edge.
	tok.Relations = domain.ImpliedRelations(tok)

	if ext, ok := leaf["$extensions"].(map[string]any); ok {
		importExtensions(&tok, ext)
	}
	return tok, nil
}

func importExtensions(tok *domain.Token, ext map[string]any) {
	if extraction, ok := ext[ExtensionExtraction].(map[string]any); ok {
		if c, ok := extraction["confidence"].(float64); ok {
			tok.Attributes.Confidence = c
		}
		if provAny, ok := extraction["provenance"].([]any); ok {
			for _, p := range provAny {
				if s, ok := p.(string); ok {
					tok.Attributes.Provenance = append(tok.Attributes.Provenance, s)
				}
			}
		}
		if ts, ok := extraction["extracted_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				tok.Attributes.ExtractedAt = t
			}
		}
		if extra, ok := extraction["extra"].(map[string]any); ok {
			tok.Attributes.Extra = extra
		}
	}

	if relsAny, ok := ext[ExtensionRelations].([]any); ok {
		for _, rAny := range relsAny {
			rm, ok := rAny.(map[string]any)
			if !ok {
				continue
			}
			kind, _ := rm["kind"].(string)
			target, _ := rm["target"].(string)
			if kind == "" || target == "" {
				continue
			}
			rel := domain.Relation{Kind: domain.RelationKind(kind), TargetID: target}
			if meta, ok := rm["meta"].(map[string]any); ok {
				rel.Meta = meta
			}
			tok.Relations = append(tok.Relations, rel)
		}
	}
}
