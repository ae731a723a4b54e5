package plugins

import (
	"strings"
	"testing"
)

func candidate(id string, priority int, deps ...string) Candidate {
	return Candidate{
		Manifest: Manifest{
			ID:           id,
			Name:         id,
			Version:      "1.0.0",
			Priority:     priority,
			Dependencies: deps,
		},
		Source: SourceBuiltin,
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Manifest.ID
	}
	return out
}

func TestOrder_DependenciesFirst(t *testing.T) {
	ordered, err := Order([]Candidate{
		candidate("c", 0, "b"),
		candidate("b", 0, "a"),
		candidate("a", 0),
	})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	got := ids(ordered)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrder_TiesByPriorityThenID(t *testing.T) {
	ordered, err := Order([]Candidate{
		candidate("zeta", 10),
		candidate("beta", 20),
		candidate("alpha", 20),
	})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	got := ids(ordered)
	want := []string{"zeta", "alpha", "beta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrder_CycleIsFatal(t *testing.T) {
	_, err := Order([]Candidate{
		candidate("b", 0, "a"),
		candidate("a", 0, "b"),
		candidate("standalone", 0),
	})
	if err == nil {
		t.Fatal("cycle should be fatal")
	}
	// The message names the cycle members ascending.
	if !strings.Contains(err.Error(), "a, b") {
		t.Errorf("cycle error = %q, want ascending ids", err)
	}
	if strings.Contains(err.Error(), "standalone") {
		t.Errorf("cycle error %q names a plugin outside the cycle", err)
	}
}

func TestOrder_CycleErrorSparesDownstreamDependents(t *testing.T) {
	// "leaf" depends on a cycle member but is not itself on the cycle.
	_, err := Order([]Candidate{
		candidate("b", 0, "a"),
		candidate("a", 0, "b"),
		candidate("leaf", 0, "a"),
	})
	if err == nil {
		t.Fatal("cycle should be fatal")
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Errorf("cycle error = %q, want the cycle members", err)
	}
	if strings.Contains(err.Error(), "leaf") {
		t.Errorf("cycle error %q names a dependent outside the cycle", err)
	}
}

func TestOrder_SelfDependencyIsACycle(t *testing.T) {
	_, err := Order([]Candidate{
		candidate("narcissus", 0, "narcissus"),
		candidate("other", 0),
	})
	if err == nil {
		t.Fatal("self-dependency should be fatal")
	}
	if !strings.Contains(err.Error(), "narcissus") {
		t.Errorf("cycle error = %q, want the self-dependent id", err)
	}
	if strings.Contains(err.Error(), "other") {
		t.Errorf("cycle error %q names an uninvolved plugin", err)
	}
}

func TestOrder_UnknownDependencyDoesNotBlockOrdering(t *testing.T) {
	ordered, err := Order([]Candidate{candidate("a", 0, "ghost")})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(ordered) != 1 {
		t.Fatalf("ordered = %v", ids(ordered))
	}
}
