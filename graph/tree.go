package graph

import (
	"fmt"
	"io"
	"strings"
)

// Node is one term in a rendered tree.
type Node struct {
	Term     string  `json:"term"`
	Children []*Node `json:"children,omitempty"`
	// Ref marks a term already expanded elsewhere in the tree.
	Ref bool `json:"ref,omitempty"`
}

// Tree lays the hierarchy out as a forest rooted at Roots. A term with
// several parents is expanded under the first one reached and appears as a
// Ref leaf under the others. Terms reachable only through a cycle start
// trees of their own.
func (h *Hierarchy) Tree() []*Node {
	expanded := make([]bool, len(h.terms))

	var build func(id int) *Node
	build = func(id int) *Node {
		n := &Node{Term: h.terms[id]}
		if expanded[id] {
			n.Ref = true
			return n
		}
		expanded[id] = true
		for _, c := range h.children[id] {
			n.Children = append(n.Children, build(c))
		}
		return n
	}

	var forest []*Node
	for i := range h.terms {
		if len(h.parents[i]) == 0 {
			forest = append(forest, build(i))
		}
	}
	for i := range h.terms {
		if !expanded[i] {
			forest = append(forest, build(i))
		}
	}
	return forest
}

// Render writes forest as an indented outline, two spaces per level.
// Ref nodes are suffixed with " (see above)".
func Render(w io.Writer, forest []*Node) error {
	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		suffix := ""
		if n.Ref {
			suffix = " (see above)"
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), n.Term, suffix); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range forest {
		if err := walk(n, 0); err != nil {
			return err
		}
	}
	return nil
}
