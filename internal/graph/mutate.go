package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshband/copy-that-sub005/internal/domain"
)

// Upsert inserts or replaces one token. The token's embedded relations
// replace any existing edge set; relations implied by the value text
// (whole-value alias, embedded references) are derived and stored as edges
// so the graph always round-trips through interchange unchanged.
// All-or-nothing: on any validation failure the committed snapshot is
// unchanged.
func (s *Store) Upsert(tok domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok = withImpliedRelations(tok)
	next := s.snap.Load().clone()
	if err := next.applyToken(tok); err != nil {
		return err
	}
	if err := next.applyEdges(tok); err != nil {
		return err
	}
	if err := next.verifyGroups(); err != nil {
		return err
	}
	if err := next.verifyAliasTypes(); err != nil {
		return err
	}
	s.snap.Store(next)
	return nil
}

// BatchIssue names one offending token inside a rejected batch.
type BatchIssue struct {
	ID  string
	Err *domain.GraphError
}

// BatchError aggregates every offender in a rejected batch commit, not just
// the first one encountered.
type BatchError struct {
	Issues []BatchIssue
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.ID, is.Err.Error()))
	}
	return fmt.Sprintf("batch rejected (%d offending tokens): %s", len(e.Issues), strings.Join(parts, "; "))
}

// UpsertBatch commits a set of tokens in one transaction. Relation targets
// may be satisfied by other members of the batch. On rejection the error is
// a *BatchError listing every offending token.
func (s *Store) UpsertBatch(toks []domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	issues := []BatchIssue{}

	// Pass 1: nodes, so edges inside the batch can resolve in pass 2.
	accepted := make([]domain.Token, 0, len(toks))
	for _, tok := range toks {
		tok = withImpliedRelations(tok)
		if err := next.applyToken(tok); err != nil {
			issues = append(issues, BatchIssue{ID: tok.ID, Err: asGraph(err)})
			continue
		}
		accepted = append(accepted, tok)
	}

	// Pass 2: edges.
	for _, tok := range accepted {
		if err := next.applyEdges(tok); err != nil {
			issues = append(issues, BatchIssue{ID: tok.ID, Err: asGraph(err)})
		}
	}

	// Pass 3: group acyclicity across the whole candidate state. Every node
	// on a cycle is an offender.
	if len(issues) == 0 {
		if err := next.verifyGroups(); err != nil {
			ge := asGraph(err)
			for _, id := range uniquePath(ge.Path) {
				issues = append(issues, BatchIssue{ID: id, Err: ge})
			}
		}
	}

	// Pass 4: alias endpoint types across the whole candidate state; a
	// retyping upsert can invalidate aliases that were valid when added.
	if len(issues) == 0 {
		for _, ge := range next.aliasMismatches() {
			issues = append(issues, BatchIssue{ID: ge.ID, Err: ge})
		}
	}

	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
		return &BatchError{Issues: issues}
	}
	s.snap.Store(next)
	return nil
}

// Remove deletes a token by explicit edit. Inbound edges of surviving tokens
// are kept in place, leaving the graph in the flagged dangling state rather
// than silently dropping them.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	h, ok := next.handle(id)
	if !ok {
		return &domain.GraphError{Kind: domain.KindDanglingReference, ID: id, Detail: "no such token"}
	}
	n := next.nodes[h]
	n.dead = true
	n.out = nil
	next.nodes[h] = n
	delete(next.index, id)
	s.snap.Store(next)

	if deps := next.FindDanglingRefs(); len(deps) > 0 && s.log != nil {
		s.log.Warn("graph left dangling by removal", "removed", id, "dangling_edges", len(deps))
	}
	return nil
}

// AddRelation appends one edge. Target must exist, the kind must be known,
// alias targets must share the source token's type, and the edge may not
// close a cycle within its acyclicity group.
func (s *Store) AddRelation(fromID string, rel domain.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	if err := next.addEdge(fromID, rel); err != nil {
		return err
	}
	if err := next.verifyGroup(rel.Kind.ReferenceGroup()); err != nil {
		return err
	}
	s.snap.Store(next)
	return nil
}

// RemoveRelation removes the first edge matching kind+target. Removing an
// edge that is not there is a no-op. An edge implied by the token's value
// text cannot be removed on its own: the value is the source of truth, so
// the edit must go through Upsert with a new value.
func (s *Store) RemoveRelation(fromID string, kind domain.RelationKind, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	h, ok := next.handle(fromID)
	if !ok {
		return &domain.GraphError{Kind: domain.KindDanglingReference, ID: fromID, Detail: "no such token"}
	}
	n := next.nodes[h]
	for _, rel := range domain.ImpliedRelations(n.tok) {
		if rel.Kind == kind && rel.TargetID == targetID {
			return fmt.Errorf("%w: relation %s %s -> %s is implied by the token's value text",
				domain.ErrInvalidInput, kind, fromID, targetID)
		}
	}
	for i, e := range n.out {
		if e.kind != kind || next.nodes[e.to].id != targetID {
			continue
		}
		out := make([]edge, 0, len(n.out)-1)
		out = append(out, n.out[:i]...)
		out = append(out, n.out[i+1:]...)
		n.out = out
		next.nodes[h] = n
		s.snap.Store(next)
		return nil
	}
	return nil
}

// --- writer-side helpers on the candidate snapshot ---

// withImpliedRelations appends the relations the token's value text encodes;
// addEdge drops exact duplicates of explicitly supplied edges.
func withImpliedRelations(tok domain.Token) domain.Token {
	implied := domain.ImpliedRelations(tok)
	if len(implied) == 0 {
		return tok
	}
	rels := make([]domain.Relation, 0, len(tok.Relations)+len(implied))
	rels = append(rels, tok.Relations...)
	rels = append(rels, implied...)
	tok.Relations = rels
	return tok
}

// applyToken validates and writes the node payload, without edges.
func (sn *Snapshot) applyToken(tok domain.Token) error {
	if err := validateToken(tok); err != nil {
		return err
	}
	stored := tok.Clone()
	stored.Relations = nil

	if h, ok := sn.handle(tok.ID); ok {
		n := sn.nodes[h]
		n.tok = stored
		n.out = nil // replaced by applyEdges
		sn.nodes[h] = n
		return nil
	}
	// A reused id revives its tombstone: inbound edges kept through Remove
	// bind to the same node again instead of dangling forever.
	for h, n := range sn.nodes {
		if !n.dead || n.id != tok.ID {
			continue
		}
		n.dead = false
		n.tok = stored
		n.out = nil
		sn.nodes[h] = n
		sn.index[tok.ID] = int32(h)
		return nil
	}
	sn.nodes = append(sn.nodes, node{id: tok.ID, tok: stored})
	sn.index[tok.ID] = int32(len(sn.nodes) - 1)
	return nil
}

func (sn *Snapshot) applyEdges(tok domain.Token) error {
	for _, rel := range tok.Relations {
		if err := sn.addEdge(tok.ID, rel); err != nil {
			return err
		}
	}
	return nil
}

func (sn *Snapshot) addEdge(fromID string, rel domain.Relation) error {
	from, ok := sn.handle(fromID)
	if !ok {
		return &domain.GraphError{Kind: domain.KindDanglingReference, ID: fromID, Detail: "no such token"}
	}
	if !rel.Kind.Known() {
		return &domain.GraphError{Kind: domain.KindTypeMismatch, ID: fromID, Detail: fmt.Sprintf("unknown relation kind %q", rel.Kind)}
	}
	to, ok := sn.handle(rel.TargetID)
	if !ok {
		return &domain.GraphError{Kind: domain.KindDanglingReference, ID: fromID, Target: rel.TargetID}
	}
	if rel.Kind == domain.RelationAlias {
		if st, tt := sn.nodes[from].tok.Type, sn.nodes[to].tok.Type; st != tt {
			return &domain.GraphError{
				Kind: domain.KindTypeMismatch, ID: fromID, Target: rel.TargetID,
				Detail: fmt.Sprintf("alias %s -> %s", st, tt),
			}
		}
	}

	n := sn.nodes[from]
	for _, e := range n.out {
		if e.kind == rel.Kind && e.to == to {
			return nil // identical edge already present
		}
	}
	out := make([]edge, 0, len(n.out)+1)
	out = append(out, n.out...)
	var meta map[string]any
	if rel.Meta != nil {
		meta = make(map[string]any, len(rel.Meta))
		for k, v := range rel.Meta {
			meta[k] = v
		}
	}
	n.out = append(out, edge{kind: rel.Kind, to: to, meta: meta})
	sn.nodes[from] = n
	return nil
}

func asGraph(err error) *domain.GraphError {
	if ge, ok := domain.AsGraphError(err); ok {
		return ge
	}
	return &domain.GraphError{Kind: domain.KindTypeMismatch, Detail: err.Error()}
}

func uniquePath(path []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, id := range path {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
