package graph

import (
	"fmt"

	"github.com/joshband/copy-that-sub005/internal/domain"
)

// validateToken checks the node payload: id format, known type, confidence
// bounds. Payload violations (confidence, unknown type) report as
// type_mismatch; malformed paths report as invalid_token_id.
func validateToken(tok domain.Token) error {
	if !domain.ValidateID(tok.ID) {
		return &domain.GraphError{Kind: domain.KindInvalidTokenID, ID: tok.ID}
	}
	if !tok.Type.Known() {
		return &domain.GraphError{Kind: domain.KindTypeMismatch, ID: tok.ID, Detail: fmt.Sprintf("unknown token type %q", tok.Type)}
	}
	if c := tok.Attributes.Confidence; c < 0 || c > 1 {
		return &domain.GraphError{Kind: domain.KindTypeMismatch, ID: tok.ID, Detail: fmt.Sprintf("confidence %v outside [0,1]", c)}
	}
	return nil
}

// aliasMismatches lists every alias edge whose endpoint types differ.
// addEdge checks the pair at insertion time, but a later retyping upsert of
// the target can invalidate inbound aliases; mutations re-verify the whole
// candidate state before the swap.
func (sn *Snapshot) aliasMismatches() []*domain.GraphError {
	out := []*domain.GraphError{}
	for _, n := range sn.nodes {
		if n.dead {
			continue
		}
		for _, e := range n.out {
			t := sn.nodes[e.to]
			if e.kind != domain.RelationAlias || t.dead {
				continue
			}
			if n.tok.Type != t.tok.Type {
				out = append(out, &domain.GraphError{
					Kind: domain.KindTypeMismatch, ID: n.id, Target: t.id,
					Detail: fmt.Sprintf("alias %s -> %s", n.tok.Type, t.tok.Type),
				})
			}
		}
	}
	return out
}

func (sn *Snapshot) verifyAliasTypes() error {
	if ms := sn.aliasMismatches(); len(ms) > 0 {
		return ms[0]
	}
	return nil
}
