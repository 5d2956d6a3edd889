package resolver

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/joshband/copy-that-sub005/internal/domain"
	"github.com/joshband/copy-that-sub005/internal/graph"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

func seedStore(t *testing.T, toks ...domain.Token) *graph.Store {
	t.Helper()
	st := graph.NewStore(logger.NewNop())
	if err := st.UpsertBatch(toks); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func tok(id string, typ domain.TokenType, value string, rels ...domain.Relation) domain.Token {
	return domain.Token{ID: id, Type: typ, Value: value, Attributes: domain.Attributes{Confidence: 1}, Relations: rels}
}

func alias(target string) domain.Relation {
	return domain.Relation{Kind: domain.RelationAlias, TargetID: target}
}

func TestResolveAliasChain(t *testing.T) {
	st := seedStore(t,
		tok("color.black", domain.TypeColor, "#000000"),
		tok("color.primary", domain.TypeColor, "{color.black}", alias("color.black")),
		tok("color.button", domain.TypeColor, "{color.primary}", alias("color.primary")),
	)
	r := New(logger.NewNop())
	res, err := r.Resolve(context.Background(), st.Snapshot(), "color.button")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Value != "#000000" {
		t.Fatalf("expected #000000, got %q", res.Value)
	}
	if strings.Contains(res.Value, "{") {
		t.Fatalf("residual reference syntax in %q", res.Value)
	}
	if !reflect.DeepEqual(res.Path, []string{"color.button", "color.primary", "color.black"}) {
		t.Fatalf("unexpected traversal path %v", res.Path)
	}
}

func TestResolveEmbeddedReferences(t *testing.T) {
	st := seedStore(t,
		tok("color.shadow", domain.TypeColor, "#00000033"),
		tok("dimension.sm", domain.TypeDimension, "4px"),
		tok("shadow.card", domain.TypeShadow, "0px {dimension.sm} 8px {color.shadow}"),
	)
	r := New(logger.NewNop())
	res, err := r.Resolve(context.Background(), st.Snapshot(), "shadow.card")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Value != "0px 4px 8px #00000033" {
		t.Fatalf("unexpected value %q", res.Value)
	}
}

func TestResolveCompositeParts(t *testing.T) {
	st := seedStore(t,
		tok("fontfamily.base", domain.TypeFontFamily, "Inter"),
		tok("dimension.lg", domain.TypeDimension, "32px"),
		domain.Token{
			ID: "typography.h1", Type: domain.TypeTypography,
			Parts:      map[string]string{"fontFamily": "{fontfamily.base}", "fontSize": "{dimension.lg}", "fontWeight": "700"},
			Attributes: domain.Attributes{Confidence: 1},
		},
	)
	r := New(logger.NewNop())
	res, err := r.Resolve(context.Background(), st.Snapshot(), "typography.h1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]string{"fontFamily": "Inter", "fontSize": "32px", "fontWeight": "700"}
	if !reflect.DeepEqual(res.Parts, want) {
		t.Fatalf("parts = %v, want %v", res.Parts, want)
	}
}

// mapSource stands in for a snapshot so the resolver's own guards can be
// exercised on states the graph store refuses to commit.
type mapSource map[string]domain.Token

func (m mapSource) Get(id string) (domain.Token, bool) {
	t, ok := m[id]
	return t, ok
}

func TestResolveCyclePath(t *testing.T) {
	// The store derives edges from value text and rejects the cycle up
	// front, so feed the resolver a raw source: its guard must still hold.
	src := mapSource{
		"color.a": tok("color.a", domain.TypeColor, "{color.b}"),
		"color.b": tok("color.b", domain.TypeColor, "{color.a}"),
	}
	r := New(logger.NewNop())
	_, err := r.Resolve(context.Background(), src, "color.a")
	ge, ok := domain.AsGraphError(err)
	if !ok || ge.Kind != domain.KindCycleDetected {
		t.Fatalf("expected cycle_detected, got %v", err)
	}
	if !reflect.DeepEqual(ge.Path, []string{"color.a", "color.b", "color.a"}) {
		t.Fatalf("expected path [color.a color.b color.a], got %v", ge.Path)
	}
}

func TestResolveDanglingNamesMissingID(t *testing.T) {
	src := mapSource{"color.a": tok("color.a", domain.TypeColor, "{color.ghost}")}
	r := New(logger.NewNop())
	_, err := r.Resolve(context.Background(), src, "color.a")
	ge, ok := domain.AsGraphError(err)
	if !ok || ge.Kind != domain.KindDanglingReference {
		t.Fatalf("expected dangling_reference, got %v", err)
	}
	if ge.ID != "color.ghost" {
		t.Fatalf("error must name the missing id, got %q", ge.ID)
	}
}

func TestResolveSharedReferenceMemoized(t *testing.T) {
	// base is referenced via two branches; memoization keeps the traversal
	// linear and both branches agree.
	st := seedStore(t,
		tok("color.base", domain.TypeColor, "#123456"),
		tok("color.left", domain.TypeColor, "{color.base}", alias("color.base")),
		tok("color.right", domain.TypeColor, "{color.base}", alias("color.base")),
		tok("shadow.pair", domain.TypeShadow, "{color.left} {color.right}"),
	)
	r := New(logger.NewNop())
	res, err := r.Resolve(context.Background(), st.Snapshot(), "shadow.pair")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Value != "#123456 #123456" {
		t.Fatalf("unexpected value %q", res.Value)
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	st := seedStore(t, tok("color.a", domain.TypeColor, "#111111"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(logger.NewNop())
	if _, err := r.Resolve(ctx, st.Snapshot(), "color.a"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestResolveDoesNotMutateStore(t *testing.T) {
	st := seedStore(t,
		tok("color.base", domain.TypeColor, "#000000"),
		tok("color.brand", domain.TypeColor, "{color.base}", alias("color.base")),
	)
	r := New(logger.NewNop())
	if _, err := r.Resolve(context.Background(), st.Snapshot(), "color.brand"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stored, _ := st.Get("color.brand")
	if stored.Value != "{color.base}" {
		t.Fatalf("resolver wrote back into the store: %q", stored.Value)
	}
}
