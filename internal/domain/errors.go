package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is the pre-dispatch failure class: the artifact handed to
// an extraction run is unusable and no extractor was started.
var ErrInvalidInput = errors.New("invalid input")

// GraphErrorKind enumerates the integrity failures the graph store and the
// resolver surface. They are never auto-repaired.
type GraphErrorKind string

const (
	KindInvalidTokenID    GraphErrorKind = "invalid_token_id"
	KindTypeMismatch      GraphErrorKind = "type_mismatch"
	KindDanglingReference GraphErrorKind = "dangling_reference"
	KindCycleDetected     GraphErrorKind = "cycle_detected"
)

// GraphError reports one rejected graph or resolution operation.
// Path is populated for cycles (full traversal, first node repeated at the
// end) and for resolution failures (the chain that led to the missing id).
type GraphError struct {
	Kind   GraphErrorKind
	ID     string
	Target string
	Path   []string
	Detail string
}

func (e *GraphError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%s", e.ID)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, " target=%s", e.Target)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " path=[%s]", strings.Join(e.Path, " "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// AsGraphError unwraps err to a *GraphError if one is in the chain.
func AsGraphError(err error) (*GraphError, bool) {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsGraphErrorKind reports whether err carries the given integrity kind.
func IsGraphErrorKind(err error, kind GraphErrorKind) bool {
	ge, ok := AsGraphError(err)
	return ok && ge.Kind == kind
}
