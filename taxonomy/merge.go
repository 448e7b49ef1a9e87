package taxonomy

// Merge folds src into m key by key: a category already present gets src's
// terms appended after its own, a new category is appended with src's
// terms. Merging a map into itself doubles every term list.
func (m *CategoryMap) Merge(src *CategoryMap) {
	if src == nil {
		return
	}
	// Snapshot src first so that m.Merge(m) sees the pre-merge lists.
	keys := src.Keys()
	incoming := make([][]string, len(keys))
	for i, k := range keys {
		incoming[i] = src.terms[k]
	}

	for i, k := range keys {
		existing, ok := m.terms[k]
		if !ok {
			t := make([]string, len(incoming[i]))
			copy(t, incoming[i])
			m.Set(k, t)
			continue
		}
		merged := make([]string, 0, len(existing)+len(incoming[i]))
		merged = append(merged, existing...)
		merged = append(merged, incoming[i]...)
		m.terms[k] = merged
	}
}

// MergeCategories returns a new map holding a merged with b. Neither input
// is modified.
func MergeCategories(a, b *CategoryMap) *CategoryMap {
	out := a.Clone()
	out.Merge(b)
	return out
}

// AppendRelations returns set with rs appended in order.
func AppendRelations(set RelationSet, rs RelationSet) RelationSet {
	return append(set, rs...)
}
