package graph

import "github.com/joshband/copy-that-sub005/internal/domain"

// Acyclicity is enforced per edge group: alias+references together, and
// composes+base_multiple together (the component-to-primitive DAG).

var (
	refGroup  = []domain.RelationKind{domain.RelationAlias, domain.RelationReferences}
	compGroup = []domain.RelationKind{domain.RelationComposes, domain.RelationBaseMultiple}
)

// DetectCycles returns every cycle reachable over the given edge kinds, each
// as a full path with the entry node repeated at the end ([a b a]). With no
// kinds it checks all edges.
func (sn *Snapshot) DetectCycles(kinds ...domain.RelationKind) [][]string {
	want := kindSet(kinds)
	cycles := [][]string{}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make([]byte, len(sn.nodes))
	var stack []int32

	var visit func(h int32)
	visit = func(h int32) {
		color[h] = grey
		stack = append(stack, h)
		for _, e := range sn.nodes[h].out {
			if want != nil && !want[e.kind] {
				continue
			}
			if sn.nodes[e.to].dead {
				continue
			}
			switch color[e.to] {
			case white:
				visit(e.to)
			case grey:
				// back edge: slice the active path from the first occurrence
				start := 0
				for i, sh := range stack {
					if sh == e.to {
						start = i
						break
					}
				}
				path := make([]string, 0, len(stack)-start+1)
				for _, sh := range stack[start:] {
					path = append(path, sn.nodes[sh].id)
				}
				path = append(path, sn.nodes[e.to].id)
				cycles = append(cycles, path)
			}
		}
		stack = stack[:len(stack)-1]
		color[h] = black
	}

	for _, id := range sn.IDs() {
		h := sn.index[id]
		if color[h] == white {
			visit(h)
		}
	}
	return cycles
}

// verifyGroup checks one acyclicity group; refs selects alias+references.
func (sn *Snapshot) verifyGroup(refs bool) error {
	group := compGroup
	if refs {
		group = refGroup
	}
	if cycles := sn.DetectCycles(group...); len(cycles) > 0 {
		return &domain.GraphError{Kind: domain.KindCycleDetected, Path: cycles[0]}
	}
	return nil
}

// verifyGroups checks both groups; used after bulk edge application.
func (sn *Snapshot) verifyGroups() error {
	if err := sn.verifyGroup(true); err != nil {
		return err
	}
	return sn.verifyGroup(false)
}
