// Package graph builds the validated adjacency structure the sequencer
// consumes. Build is a pure function: bad edges are collected as
// ValidationErrors and never abort the run.
package graph

import (
	"fmt"

	"docweave/internal/model"
)

// ValidationError describes one rejected relationship. Non-fatal: the graph
// is still built from the remaining valid edges.
type ValidationError struct {
	Edge   model.Relationship
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("relationship %s -> %s (%q): %s", e.Edge.SourceID, e.Edge.TargetID, e.Edge.Label, e.Reason)
}

// Edge is one accepted directed edge.
type Edge struct {
	SourceID string
	TargetID string
	Label    string
}

// Node is one abstraction plus its position in extraction order. The index
// is the primary tie-break key for deterministic sequencing.
type Node struct {
	Abstraction model.Abstraction
	Index       int
}

// Graph is the adjacency view over one run's abstractions and relationships.
type Graph struct {
	nodes    []Node
	byID     map[string]int // abstraction ID -> index into nodes
	out      map[string][]Edge
	inDegree map[string]int
	edges    int
}

// Build deduplicates and validates the extracted data into a Graph.
// Self-edges are dropped silently (they carry no ordering information),
// exact (source, target, label) duplicates are collapsed, and edges whose
// endpoints are unknown are reported and skipped.
func Build(abstractions []model.Abstraction, relationships []model.Relationship) (*Graph, []ValidationError) {
	g := &Graph{
		byID:     make(map[string]int, len(abstractions)),
		out:      make(map[string][]Edge),
		inDegree: make(map[string]int, len(abstractions)),
	}
	var errs []ValidationError

	for _, a := range abstractions {
		if _, dup := g.byID[a.ID]; dup {
			errs = append(errs, ValidationError{
				Edge:   model.Relationship{SourceID: a.ID},
				Reason: "duplicate abstraction id",
			})
			continue
		}
		g.byID[a.ID] = len(g.nodes)
		g.nodes = append(g.nodes, Node{Abstraction: a, Index: len(g.nodes)})
		g.inDegree[a.ID] = 0
	}

	seen := make(map[model.Relationship]bool, len(relationships))
	for _, r := range relationships {
		if r.SourceID == r.TargetID {
			continue
		}
		if _, ok := g.byID[r.SourceID]; !ok {
			errs = append(errs, ValidationError{Edge: r, Reason: "unknown source abstraction"})
			continue
		}
		if _, ok := g.byID[r.TargetID]; !ok {
			errs = append(errs, ValidationError{Edge: r, Reason: "unknown target abstraction"})
			continue
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		g.out[r.SourceID] = append(g.out[r.SourceID], Edge{SourceID: r.SourceID, TargetID: r.TargetID, Label: r.Label})
		g.inDegree[r.TargetID]++
		g.edges++
	}

	return g, errs
}

// Nodes returns the nodes in extraction order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Node looks up a node by abstraction ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// OutEdges returns the accepted out-edges of the given node.
func (g *Graph) OutEdges(id string) []Edge { return g.out[id] }

// InDegree returns the number of accepted in-edges of the given node.
func (g *Graph) InDegree(id string) int { return g.inDegree[id] }

// InNeighbors returns the distinct source IDs of edges pointing at id,
// in extraction order of the sources.
func (g *Graph) InNeighbors(id string) []string {
	var in []string
	for _, n := range g.nodes {
		src := n.Abstraction.ID
		if src == id {
			continue
		}
		for _, e := range g.out[src] {
			if e.TargetID == id {
				in = append(in, src)
				break
			}
		}
	}
	return in
}

// Edges returns every accepted edge, grouped by source in extraction order.
func (g *Graph) Edges() []Edge {
	all := make([]Edge, 0, g.edges)
	for _, n := range g.nodes {
		all = append(all, g.out[n.Abstraction.ID]...)
	}
	return all
}

// NodeCount returns the number of abstractions in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of accepted edges.
func (g *Graph) EdgeCount() int { return g.edges }
