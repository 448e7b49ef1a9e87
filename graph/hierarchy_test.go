package graph

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

func foodRelations() taxonomy.RelationSet {
	return taxonomy.RelationSet{
		{Parent: "Food", Child: "Fruit"},
		{Parent: "Fruit", Child: "Apple"},
		{Parent: "Fruit", Child: "Pear"},
		{Parent: "Food", Child: "Grain"},
		{Parent: "Grain", Child: "Rice"},
		{Parent: "Fruit", Child: "Apple"}, // duplicate
		{Parent: "Drink", Child: "Juice"},
		{Parent: "Fruit", Child: "Juice"},
	}
}

func TestHierarchyBasics(t *testing.T) {
	h := New(foodRelations())

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"terms", h.Terms(), []string{"Food", "Fruit", "Apple", "Pear", "Grain", "Rice", "Drink", "Juice"}},
		{"roots", h.Roots(), []string{"Food", "Drink"}},
		{"leaves", h.Leaves(), []string{"Apple", "Pear", "Rice", "Juice"}},
		{"children of Fruit", h.Children("Fruit"), []string{"Apple", "Pear", "Juice"}},
		{"parents of Juice", h.Parents("Juice"), []string{"Drink", "Fruit"}},
		{"unknown", h.Children("Stone"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if !h.Has("Rice") || h.Has("Stone") {
		t.Error("Has reports wrong membership")
	}
}

func TestDescendantsAndAncestors(t *testing.T) {
	h := New(foodRelations())

	if diff := cmp.Diff([]string{"Fruit", "Grain", "Apple", "Pear", "Rice", "Juice"}, h.Descendants("Food", 0)); diff != "" {
		t.Errorf("Descendants(Food) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Fruit", "Grain"}, h.Descendants("Food", 1)); diff != "" {
		t.Errorf("Descendants(Food, 1) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Fruit", "Drink", "Food"}, h.Ancestors("Juice", 0)); diff != "" {
		t.Errorf("Ancestors(Juice) mismatch (-want +got):\n%s", diff)
	}
	if got := h.Descendants("Stone", 0); got != nil {
		t.Errorf("Descendants(Stone) = %v, want nil", got)
	}
}

func TestComponents(t *testing.T) {
	h := New(taxonomy.RelationSet{
		{Parent: "A", Child: "B"},
		{Parent: "X", Child: "Y"},
		{Parent: "C", Child: "B"},
	})
	want := [][]string{{"A", "B", "C"}, {"X", "Y"}}
	if diff := cmp.Diff(want, h.Components()); diff != "" {
		t.Errorf("Components mismatch (-want +got):\n%s", diff)
	}
}

func TestCycles(t *testing.T) {
	h := New(taxonomy.RelationSet{
		{Parent: "A", Child: "B"},
		{Parent: "B", Child: "C"},
		{Parent: "C", Child: "A"},
		{Parent: "C", Child: "D"},
		{Parent: "E", Child: "F"},
	})
	want := [][]string{{"A", "B", "C"}}
	if diff := cmp.Diff(want, h.Cycles()); diff != "" {
		t.Errorf("Cycles mismatch (-want +got):\n%s", diff)
	}

	overlapping := New(taxonomy.RelationSet{
		{Parent: "A", Child: "B"},
		{Parent: "B", Child: "A"},
		{Parent: "B", Child: "C"},
		{Parent: "C", Child: "B"},
	})
	if diff := cmp.Diff([][]string{{"A", "B"}, {"B", "C"}}, overlapping.Cycles()); diff != "" {
		t.Errorf("overlapping Cycles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"A", "B", "C"}}, overlapping.Components()); diff != "" {
		t.Errorf("overlapping Components mismatch (-want +got):\n%s", diff)
	}
	if New(foodRelations()).Cycles() != nil {
		t.Error("acyclic hierarchy reported cycles")
	}
}

func TestStats(t *testing.T) {
	got := New(foodRelations()).Stats()
	want := Stats{Terms: 8, Edges: 7, Duplicates: 1, Roots: 2, Leaves: 4, Components: 1, Cycles: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeAndRender(t *testing.T) {
	h := New(foodRelations())

	var buf bytes.Buffer
	if err := Render(&buf, h.Tree()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `Food
  Fruit
    Apple
    Pear
    Juice
  Grain
    Rice
Drink
  Juice (see above)
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeCycleOnly(t *testing.T) {
	h := New(taxonomy.RelationSet{{Parent: "A", Child: "B"}, {Parent: "B", Child: "A"}})

	forest := h.Tree()
	if len(forest) != 1 || forest[0].Term != "A" {
		t.Fatalf("forest = %+v", forest)
	}
	b := forest[0].Children[0]
	if b.Term != "B" || len(b.Children) != 1 || !b.Children[0].Ref {
		t.Errorf("cycle not cut: %+v", b)
	}
}

func TestEmptyHierarchy(t *testing.T) {
	h := New(nil)
	if h.Roots() != nil || h.Tree() != nil || h.Components() != nil {
		t.Error("empty hierarchy produced nodes")
	}
}
