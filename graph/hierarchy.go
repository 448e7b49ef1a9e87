package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dfs"

	"github.com/brunobiangulo/gotaxon/store"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// Hierarchy is a read-only directed view over a relation set. Terms are
// nodes in order of first appearance; repeated relations collapse into one
// edge.
type Hierarchy struct {
	terms      []string
	index      map[string]int
	children   [][]int
	parents    [][]int
	edges      int
	duplicates int

	// down follows child edges, up parent edges; links ignores direction.
	down, up, links *core.Graph
}

// New builds the hierarchy of rs.
func New(rs taxonomy.RelationSet) *Hierarchy {
	h := &Hierarchy{
		index: make(map[string]int),
		down:  core.NewGraph(core.WithDirected(true)),
		up:    core.NewGraph(core.WithDirected(true)),
		links: core.NewGraph(),
	}
	seen := make(map[[2]int]bool, len(rs))
	for _, r := range rs {
		p := h.node(r.Parent)
		c := h.node(r.Child)
		key := [2]int{p, c}
		if seen[key] {
			h.duplicates++
			continue
		}
		seen[key] = true
		h.children[p] = append(h.children[p], c)
		h.parents[c] = append(h.parents[c], p)
		h.edges++
		h.link(r.Parent, r.Child, seen[[2]int{c, p}])
	}
	return h
}

// link mirrors one new edge into the traversal graphs. Relations carry no
// empty term or self-loop, so only the reverse of an existing edge needs
// care: links already holds it.
func (h *Hierarchy) link(parent, child string, reverseSeen bool) {
	if _, err := h.down.AddEdge(parent, child, 0); err != nil {
		slog.Warn("graph: adding edge", "parent", parent, "child", child, "error", err)
	}
	if _, err := h.up.AddEdge(child, parent, 0); err != nil {
		slog.Warn("graph: adding edge", "parent", parent, "child", child, "error", err)
	}
	if reverseSeen {
		return
	}
	if _, err := h.links.AddEdge(parent, child, 0); err != nil {
		slog.Warn("graph: adding edge", "parent", parent, "child", child, "error", err)
	}
}

// FromRun loads the relations of a stored run.
func FromRun(ctx context.Context, s *store.Store, runID string) (*Hierarchy, error) {
	rs, err := s.GetRelations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("graph.FromRun: loading relations: %w", err)
	}
	return New(rs), nil
}

func (h *Hierarchy) node(term string) int {
	if i, ok := h.index[term]; ok {
		return i
	}
	i := len(h.terms)
	h.index[term] = i
	h.terms = append(h.terms, term)
	h.children = append(h.children, nil)
	h.parents = append(h.parents, nil)
	return i
}

func (h *Hierarchy) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = h.terms[id]
	}
	return out
}

// Terms returns every node in order of first appearance.
func (h *Hierarchy) Terms() []string {
	out := make([]string, len(h.terms))
	copy(out, h.terms)
	return out
}

// Has reports whether term takes part in any relation.
func (h *Hierarchy) Has(term string) bool {
	_, ok := h.index[term]
	return ok
}

// Roots returns the terms that are never a child.
func (h *Hierarchy) Roots() []string {
	var out []string
	for i, t := range h.terms {
		if len(h.parents[i]) == 0 {
			out = append(out, t)
		}
	}
	return out
}

// Leaves returns the terms that are never a parent.
func (h *Hierarchy) Leaves() []string {
	var out []string
	for i, t := range h.terms {
		if len(h.children[i]) == 0 {
			out = append(out, t)
		}
	}
	return out
}

// Children returns the direct children of term.
func (h *Hierarchy) Children(term string) []string {
	i, ok := h.index[term]
	if !ok {
		return nil
	}
	return h.names(h.children[i])
}

// Parents returns the direct parents of term.
func (h *Hierarchy) Parents(term string) []string {
	i, ok := h.index[term]
	if !ok {
		return nil
	}
	return h.names(h.parents[i])
}

// Descendants walks child edges breadth first, up to maxDepth hops (no limit
// when maxDepth <= 0). Nearer terms come first, ties in order of first
// appearance. The start term is not included.
func (h *Hierarchy) Descendants(term string, maxDepth int) []string {
	return h.walk(h.down, term, maxDepth)
}

// Ancestors walks parent edges breadth first, like Descendants.
func (h *Hierarchy) Ancestors(term string, maxDepth int) []string {
	return h.walk(h.up, term, maxDepth)
}

func (h *Hierarchy) walk(g *core.Graph, term string, maxDepth int) []string {
	start, ok := h.index[term]
	if !ok {
		return nil
	}
	res, err := bfs.BFS(g, term, bfs.WithMaxDepth(max(maxDepth, 0)))
	if err != nil {
		slog.Warn("graph: walk failed", "term", term, "error", err)
		return nil
	}

	var out []int
	for _, t := range res.Order {
		if id := h.index[t]; id != start {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b int) int {
		if d := res.Depth[h.terms[a]] - res.Depth[h.terms[b]]; d != 0 {
			return d
		}
		return a - b
	})
	return h.names(out)
}

// Components returns the weakly connected components, each in order of
// first appearance.
func (h *Hierarchy) Components() [][]string {
	visited := make([]bool, len(h.terms))
	var comps [][]string

	for i, t := range h.terms {
		if visited[i] {
			continue
		}
		res, err := bfs.BFS(h.links, t)
		if err != nil {
			slog.Warn("graph: component walk failed", "term", t, "error", err)
			return comps
		}
		comp := make([]int, 0, len(res.Order))
		for _, m := range res.Order {
			id := h.index[m]
			visited[id] = true
			comp = append(comp, id)
		}
		slices.Sort(comp)
		comps = append(comps, h.names(comp))
	}
	return comps
}

// Cycles returns the distinct cycles a depth-first search meets along child
// edges, each as its terms in order of first appearance. Self-loops cannot
// occur since relations never relate a term to itself.
func (h *Hierarchy) Cycles() [][]string {
	found, cycles, err := dfs.DetectCycles(h.down)
	if err != nil {
		slog.Warn("graph: cycle detection failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	out := make([][]string, 0, len(cycles))
	for _, c := range cycles {
		// Detected cycles are closed: the first term repeats at the end.
		ids := make([]int, 0, len(c))
		for _, t := range c[:len(c)-1] {
			ids = append(ids, h.index[t])
		}
		slices.Sort(ids)
		out = append(out, h.names(ids))
	}
	slices.SortStableFunc(out, func(a, b []string) int {
		return h.index[a[0]] - h.index[b[0]]
	})
	return out
}

// Stats summarises the shape of a hierarchy.
type Stats struct {
	Terms      int `json:"terms"`
	Edges      int `json:"edges"`
	Duplicates int `json:"duplicates"`
	Roots      int `json:"roots"`
	Leaves     int `json:"leaves"`
	Components int `json:"components"`
	Cycles     int `json:"cycles"`
}

func (h *Hierarchy) Stats() Stats {
	return Stats{
		Terms:      len(h.terms),
		Edges:      h.edges,
		Duplicates: h.duplicates,
		Roots:      len(h.Roots()),
		Leaves:     len(h.Leaves()),
		Components: len(h.Components()),
		Cycles:     len(h.Cycles()),
	}
}
