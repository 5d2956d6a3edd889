// Package graph holds the canonical mutable token graph.
//
// Tokens live in an arena indexed by integer handle with a path-string index
// on top; relation edges are handle pairs. Every mutation builds a new
// snapshot and swaps it in atomically: readers always observe a fully-old or
// fully-new graph, a failed mutation leaves the committed snapshot untouched.
package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

type edge struct {
	kind domain.RelationKind
	to   int32
	meta map[string]any
}

type node struct {
	id   string
	dead bool
	tok  domain.Token // relations excluded; edges are authoritative
	out  []edge
}

// Snapshot is an immutable view of the graph at one commit. Handles are
// stable across snapshots of the same store; removed tokens leave a
// tombstone so inbound edges can still name their target.
type Snapshot struct {
	nodes   []node
	index   map[string]int32
	version uint64
}

// Store serializes writers over a copy-on-write snapshot chain.
type Store struct {
	mu   sync.Mutex // single in-flight writer
	snap atomic.Pointer[Snapshot]
	log  *logger.Logger
}

func NewStore(log *logger.Logger) *Store {
	s := &Store{log: log.With("component", "TokenGraph")}
	s.snap.Store(&Snapshot{index: map[string]int32{}})
	return s
}

// Snapshot returns the last committed view. It is safe to hold across
// writes; it will simply get stale.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load() }

func (s *Store) Get(id string) (domain.Token, bool)      { return s.Snapshot().Get(id) }
func (s *Store) GetByType(t domain.TokenType) []domain.Token {
	return s.Snapshot().GetByType(t)
}
func (s *Store) Len() int      { return s.Snapshot().Len() }
func (s *Store) IDs() []string { return s.Snapshot().IDs() }

func (s *Store) Relations(id string, kinds ...domain.RelationKind) ([]domain.Relation, error) {
	return s.Snapshot().Relations(id, kinds...)
}

func (s *Store) Dependents(id string) ([]string, error) {
	return s.Snapshot().Dependents(id)
}

func (s *Store) DetectCycles(kinds ...domain.RelationKind) [][]string {
	return s.Snapshot().DetectCycles(kinds...)
}

func (s *Store) FindDanglingRefs() []DanglingRef { return s.Snapshot().FindDanglingRefs() }
func (s *Store) Dangling() bool                  { return s.Snapshot().Dangling() }

// --- snapshot reads ---

func (sn *Snapshot) handle(id string) (int32, bool) {
	h, ok := sn.index[id]
	return h, ok
}

func (sn *Snapshot) Len() int { return len(sn.index) }

func (sn *Snapshot) Version() uint64 { return sn.version }

func (sn *Snapshot) IDs() []string {
	out := make([]string, 0, len(sn.index))
	for id := range sn.index {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (sn *Snapshot) Get(id string) (domain.Token, bool) {
	h, ok := sn.handle(id)
	if !ok {
		return domain.Token{}, false
	}
	return sn.materialize(h), true
}

func (sn *Snapshot) GetByType(t domain.TokenType) []domain.Token {
	out := []domain.Token{}
	for _, id := range sn.IDs() {
		h := sn.index[id]
		if sn.nodes[h].tok.Type == t {
			out = append(out, sn.materialize(h))
		}
	}
	return out
}

func (sn *Snapshot) Relations(id string, kinds ...domain.RelationKind) ([]domain.Relation, error) {
	h, ok := sn.handle(id)
	if !ok {
		return nil, &domain.GraphError{Kind: domain.KindDanglingReference, ID: id, Detail: "no such token"}
	}
	want := kindSet(kinds)
	out := []domain.Relation{}
	for _, e := range sn.nodes[h].out {
		if want != nil && !want[e.kind] {
			continue
		}
		out = append(out, domain.Relation{Kind: e.kind, TargetID: sn.nodes[e.to].id, Meta: e.meta})
	}
	return out, nil
}

// Dependents returns ids of tokens with an edge pointing at id, sorted.
func (sn *Snapshot) Dependents(id string) ([]string, error) {
	h, ok := sn.handle(id)
	if !ok {
		return nil, &domain.GraphError{Kind: domain.KindDanglingReference, ID: id, Detail: "no such token"}
	}
	seen := map[string]bool{}
	for _, n := range sn.nodes {
		if n.dead {
			continue
		}
		for _, e := range n.out {
			if e.to == h {
				seen[n.id] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// materialize rebuilds the public Token, including relations, from the arena.
func (sn *Snapshot) materialize(h int32) domain.Token {
	n := sn.nodes[h]
	tok := n.tok.Clone()
	tok.ID = n.id
	for _, e := range n.out {
		rel := domain.Relation{Kind: e.kind, TargetID: sn.nodes[e.to].id}
		if e.meta != nil {
			rel.Meta = make(map[string]any, len(e.meta))
			for k, v := range e.meta {
				rel.Meta[k] = v
			}
		}
		tok.Relations = append(tok.Relations, rel)
	}
	return tok
}

// DanglingRef names one edge whose target no longer exists.
type DanglingRef struct {
	FromID   string
	Kind     domain.RelationKind
	TargetID string
}

// FindDanglingRefs lists edges pointing at removed tokens. Removal keeps
// inbound edges in place so the condition is visible, never silently fixed.
func (sn *Snapshot) FindDanglingRefs() []DanglingRef {
	out := []DanglingRef{}
	for _, id := range sn.IDs() {
		n := sn.nodes[sn.index[id]]
		for _, e := range n.out {
			if sn.nodes[e.to].dead {
				out = append(out, DanglingRef{FromID: n.id, Kind: e.kind, TargetID: sn.nodes[e.to].id})
			}
		}
	}
	return out
}

// Dangling reports the explicitly flagged dangling state.
func (sn *Snapshot) Dangling() bool { return len(sn.FindDanglingRefs()) > 0 }

func kindSet(kinds []domain.RelationKind) map[domain.RelationKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[domain.RelationKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// clone produces a mutable copy for a writer. Node structs are copied by
// value; edge slices are re-sliced copy-on-append, so the writer deep-copies
// any edge slice it actually mutates.
func (sn *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		nodes:   make([]node, len(sn.nodes)),
		index:   make(map[string]int32, len(sn.index)),
		version: sn.version + 1,
	}
	copy(next.nodes, sn.nodes)
	for k, v := range sn.index {
		next.index[k] = v
	}
	return next
}
