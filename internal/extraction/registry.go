package extraction

import (
	"fmt"
	"sort"

	"github.com/joshband/copy-that-sub005/internal/domain"
)

// Registry is an explicit extractor registry, injected where needed. No
// package-level registration, no reflection discovery.
type Registry struct {
	byID       map[string]Extractor
	byCategory map[domain.TokenType][]Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byID:       map[string]Extractor{},
		byCategory: map[domain.TokenType][]Extractor{},
	}
}

func (r *Registry) Register(e Extractor) error {
	if e == nil || e.ID() == "" {
		return fmt.Errorf("registry: extractor must carry an id")
	}
	if !e.Category().Known() {
		return fmt.Errorf("registry: extractor %s has unknown category %q", e.ID(), e.Category())
	}
	if _, dup := r.byID[e.ID()]; dup {
		return fmt.Errorf("registry: duplicate extractor id %q", e.ID())
	}
	r.byID[e.ID()] = e
	r.byCategory[e.Category()] = append(r.byCategory[e.Category()], e)
	return nil
}

// ForCategories returns every registered extractor serving one of the given
// categories, in registration order per category.
func (r *Registry) ForCategories(cats []domain.TokenType) []Extractor {
	out := []Extractor{}
	for _, cat := range cats {
		out = append(out, r.byCategory[cat]...)
	}
	return out
}

// Categories lists categories with at least one extractor, sorted.
func (r *Registry) Categories() []domain.TokenType {
	out := make([]domain.TokenType, 0, len(r.byCategory))
	for cat := range r.byCategory {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int { return len(r.byID) }
