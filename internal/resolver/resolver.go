// Package resolver substitutes `{path.to.token}` references in token values.
//
// Resolution runs against a graph snapshot and never writes back: resolved
// sub-results are memoized per call only, so shared references cost one
// traversal each without polluting stored tokens.
package resolver

import (
	"context"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// Source is the read surface resolution needs; *graph.Snapshot satisfies it.
type Source interface {
	Get(id string) (domain.Token, bool)
}

// Resolution is a fully substituted value plus the traversal path that
// produced it (for diagnostics). Parts is set for composite tokens.
type Resolution struct {
	Value string
	Parts map[string]string
	Path  []string
}

type Resolver struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Resolver {
	return &Resolver{log: log.With("component", "ReferenceResolver")}
}

// Resolve produces the fully substituted value of the token at id.
// All-or-nothing: a missing target anywhere in the chain fails the whole
// call with a dangling_reference naming the missing id, and a revisit of a
// node on the active path fails with cycle_detected carrying the full path.
func (r *Resolver) Resolve(ctx context.Context, src Source, id string) (Resolution, error) {
	c := &call{
		src:    src,
		memo:   map[string]Resolution{},
		active: map[string]bool{},
	}
	res, err := c.resolve(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	res.Path = c.order
	return res, nil
}

type call struct {
	src    Source
	memo   map[string]Resolution
	active map[string]bool
	stack  []string
	order  []string // visit order for diagnostics
}

func (c *call) resolve(ctx context.Context, id string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	if res, ok := c.memo[id]; ok {
		return res, nil
	}
	if c.active[id] {
		// Close the path at the revisited node: [a b a].
		start := 0
		for i, sid := range c.stack {
			if sid == id {
				start = i
				break
			}
		}
		path := append(append([]string{}, c.stack[start:]...), id)
		return Resolution{}, &domain.GraphError{Kind: domain.KindCycleDetected, ID: id, Path: path}
	}

	tok, ok := c.src.Get(id)
	if !ok {
		return Resolution{}, &domain.GraphError{
			Kind: domain.KindDanglingReference, ID: id,
			Path: append(append([]string{}, c.stack...), id),
		}
	}

	c.active[id] = true
	c.stack = append(c.stack, id)
	c.order = append(c.order, id)
	defer func() {
		delete(c.active, id)
		c.stack = c.stack[:len(c.stack)-1]
	}()

	res := Resolution{}

	// Whole-value alias: inherit the target's resolved form entirely.
	if target, isRef := domain.ReferenceTarget(tok.Value); isRef && len(tok.Parts) == 0 {
		sub, err := c.resolve(ctx, target)
		if err != nil {
			return Resolution{}, err
		}
		c.memo[id] = Resolution{Value: sub.Value, Parts: sub.Parts}
		return c.memo[id], nil
	}

	v, err := c.substitute(ctx, tok.Value)
	if err != nil {
		return Resolution{}, err
	}
	res.Value = v

	if len(tok.Parts) > 0 {
		res.Parts = make(map[string]string, len(tok.Parts))
		for name, pv := range tok.Parts {
			sv, err := c.substitute(ctx, pv)
			if err != nil {
				return Resolution{}, err
			}
			res.Parts[name] = sv
		}
	}

	c.memo[id] = res
	return res, nil
}

// substitute replaces every embedded reference in s with the referenced
// token's resolved string value.
func (c *call) substitute(ctx context.Context, s string) (string, error) {
	return domain.ReplaceReferences(s, func(target string) (string, error) {
		sub, err := c.resolve(ctx, target)
		if err != nil {
			return "", err
		}
		return sub.Value, nil
	})
}
