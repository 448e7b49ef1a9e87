package taxonomy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemorySnapshots(t *testing.T) {
	mem := newMemory()
	in := NewCategoryMap()
	in.Set("Fruit", []string{"Apple"})
	mem.addCategories(in)
	mem.addRelations(RelationSet{{"Food", "Fruit"}})

	cats := mem.Categories()
	cats.Set("Fruit", append(cats.Get("Fruit"), "Pear"))
	cats.Set("Vegetable", []string{"Carrot"})
	rels := mem.Relations()
	_ = append(rels, Relation{"Fruit", "Apple"})

	if diff := cmp.Diff([]string{"Fruit"}, mem.Categories().Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Apple"}, mem.Categories().Get("Fruit")); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(RelationSet{{"Food", "Fruit"}}, mem.Relations()); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}
}
