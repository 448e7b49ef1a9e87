package taxonomy

// Memory is the accumulated state of a run as seen by prompt construction.
// It is owned by the builder goroutine; prompt builders only receive
// read-only snapshots.
type Memory struct {
	relations  RelationSet
	categories *CategoryMap
}

func newMemory() *Memory {
	return &Memory{relations: RelationSet{}, categories: NewCategoryMap()}
}

// Relations returns every relation merged so far. The slice is capacity
// clipped so appending to it cannot reach the accumulator.
func (m *Memory) Relations() RelationSet {
	return m.relations[:len(m.relations):len(m.relations)]
}

// Categories returns a copy of the category map merged so far.
func (m *Memory) Categories() *CategoryMap {
	return m.categories.Clone()
}

func (m *Memory) addRelations(rs RelationSet) {
	m.relations = AppendRelations(m.relations, rs)
}

func (m *Memory) addCategories(c *CategoryMap) {
	m.categories.Merge(c)
}

// terms returns the set of every term named by a remembered relation.
func (m *Memory) terms() map[string]struct{} {
	out := make(map[string]struct{}, 2*len(m.relations))
	for _, r := range m.relations {
		out[r.Parent] = struct{}{}
		out[r.Child] = struct{}{}
	}
	return out
}
