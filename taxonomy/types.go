package taxonomy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultCatchAll is the category that collects terms fitting nowhere else.
const DefaultCatchAll = "Other"

// Relation is a directed "is-a" edge: Child is a kind of Parent.
type Relation struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// NewRelation returns the relation and true when parent and child are
// distinct non-empty strings.
func NewRelation(parent, child string) (Relation, bool) {
	if parent == "" || child == "" || parent == child {
		return Relation{}, false
	}
	return Relation{Parent: parent, Child: child}, true
}

func (r Relation) String() string {
	return r.Parent + ">" + r.Child
}

// RelationSet is an ordered, append-only sequence of relations. Duplicates
// are kept.
type RelationSet []Relation

// CategoryMap maps category names to ordered term lists. Keys keep the order
// in which they were first inserted, and that order survives JSON encoding.
// The zero value is an empty map ready for use.
type CategoryMap struct {
	keys  []string
	terms map[string][]string
}

// NewCategoryMap returns an empty map.
func NewCategoryMap() *CategoryMap {
	return &CategoryMap{terms: make(map[string][]string)}
}

// Keys returns the category names in insertion order.
func (m *CategoryMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len reports the number of categories.
func (m *CategoryMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Has reports whether category is present.
func (m *CategoryMap) Has(category string) bool {
	if m == nil {
		return false
	}
	_, ok := m.terms[category]
	return ok
}

// Get returns the terms of category. The slice is capacity clipped; callers
// must not modify its elements.
func (m *CategoryMap) Get(category string) []string {
	if m == nil {
		return nil
	}
	t := m.terms[category]
	return t[:len(t):len(t)]
}

// Set replaces the terms of category, appending the key if it is new.
func (m *CategoryMap) Set(category string, terms []string) {
	if m.terms == nil {
		m.terms = make(map[string][]string)
	}
	if _, ok := m.terms[category]; !ok {
		m.keys = append(m.keys, category)
	}
	m.terms[category] = terms
}

// TermCount is the total number of terms over all categories.
func (m *CategoryMap) TermCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, t := range m.terms {
		n += len(t)
	}
	return n
}

// Clone returns a deep copy.
func (m *CategoryMap) Clone() *CategoryMap {
	out := NewCategoryMap()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		t := make([]string, len(m.terms[k]))
		copy(t, m.terms[k])
		out.Set(k, t)
	}
	return out
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m *CategoryMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			t := m.terms[k]
			if t == nil {
				t = []string{}
			}
			vb, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object whose values are string arrays. A JSON
// null decodes to an empty map. A repeated key keeps its first position and
// its last value.
func (m *CategoryMap) UnmarshalJSON(data []byte) error {
	*m = CategoryMap{terms: make(map[string][]string)}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("category map: expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("category map: unexpected key %v", tok)
		}
		var terms []string
		if err := dec.Decode(&terms); err != nil {
			return fmt.Errorf("category map: category %q: %w", key, err)
		}
		if terms == nil {
			return fmt.Errorf("category map: category %q: value is not an array of strings", key)
		}
		m.Set(key, terms)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("category map: trailing data after object")
	}
	return nil
}
