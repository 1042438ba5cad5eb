// Package sequence computes the chapter order from the abstraction graph.
//
// The algorithm is a Kahn topological sort with two policies layered on top:
// a stable tie-break (extraction index, then ID) so equal candidates always
// come out in the same order, and forced placement when a cycle starves the
// ready set. Forced placement picks the unplaced node with the highest
// remaining in-degree: the abstraction most depended upon makes the best
// early chapter. The result is total and deterministic for any finite
// input, cyclic or not.
package sequence

import (
	"sort"

	"docweave/internal/graph"
	"docweave/internal/model"
)

// Sequence produces one ChapterPlan per node. It never fails: malformed
// graphs only degrade into more forced placements.
func Sequence(g *graph.Graph) []model.ChapterPlan {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return nil
	}

	index := make(map[string]int, n) // extraction index, the stable tie-break key
	remaining := make(map[string]int, n)
	for _, nd := range nodes {
		id := nd.Abstraction.ID
		index[id] = nd.Index
		remaining[id] = g.InDegree(id)
	}

	less := func(a, b string) bool {
		ia, ib := index[a], index[b]
		if ia != ib {
			return ia < ib
		}
		return a < b
	}

	var ready []string
	for _, nd := range nodes {
		if remaining[nd.Abstraction.ID] == 0 {
			ready = append(ready, nd.Abstraction.ID)
		}
	}

	placed := make(map[string]bool, n)
	orderOf := make(map[string]int, n)
	sequence := make([]string, 0, n)

	place := func(id string) {
		placed[id] = true
		orderOf[id] = len(sequence) + 1
		sequence = append(sequence, id)
		for _, e := range g.OutEdges(id) {
			if placed[e.TargetID] {
				continue
			}
			remaining[e.TargetID]--
			if remaining[e.TargetID] == 0 {
				ready = append(ready, e.TargetID)
			}
		}
	}

	for len(sequence) < n {
		if len(ready) > 0 {
			rs := ready
			sort.SliceStable(rs, func(i, j int) bool { return less(rs[i], rs[j]) })
			id := ready[0]
			ready = ready[1:]
			if placed[id] {
				continue
			}
			place(id)
			continue
		}
		// Cycle: every unplaced node still has in-edges. Force the most
		// depended-upon one and treat its remaining in-edges as satisfied.
		forced := ""
		for _, nd := range nodes {
			id := nd.Abstraction.ID
			if placed[id] {
				continue
			}
			if forced == "" || remaining[id] > remaining[forced] ||
				(remaining[id] == remaining[forced] && less(id, forced)) {
				forced = id
			}
		}
		place(forced)
	}

	plans := make([]model.ChapterPlan, 0, n)
	for _, id := range sequence {
		plans = append(plans, model.ChapterPlan{
			Order:               orderOf[id],
			AbstractionID:       id,
			DependsOnChapterIDs: dependsOn(g, id, orderOf),
		})
	}
	return plans
}

// dependsOn collects the in-neighbors of id that ended up earlier in the
// chosen order, sorted by their order. Forced placement can leave this empty
// even for nodes with in-edges; that is expected.
func dependsOn(g *graph.Graph, id string, orderOf map[string]int) []string {
	var deps []string
	for _, src := range g.InNeighbors(id) {
		if orderOf[src] < orderOf[id] {
			deps = append(deps, src)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return orderOf[deps[i]] < orderOf[deps[j]] })
	return deps
}
