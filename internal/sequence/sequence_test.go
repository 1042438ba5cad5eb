package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docweave/internal/graph"
	"docweave/internal/model"
)

func buildGraph(t *testing.T, ids []string, rels []model.Relationship) *graph.Graph {
	t.Helper()
	abs := make([]model.Abstraction, 0, len(ids))
	for _, id := range ids {
		abs = append(abs, model.Abstraction{ID: id, Title: id, Summary: id})
	}
	g, errs := graph.Build(abs, rels)
	require.Empty(t, errs)
	return g
}

func orderIDs(plans []model.ChapterPlan) []string {
	out := make([]string, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.AbstractionID)
	}
	return out
}

func TestSequenceLinearChain(t *testing.T) {
	g := buildGraph(t, []string{"a", "b", "c"}, []model.Relationship{
		{SourceID: "a", TargetID: "b", Label: "uses"},
		{SourceID: "b", TargetID: "c", Label: "configures"},
	})
	plans := Sequence(g)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"a", "b", "c"}, orderIDs(plans))
	for i, p := range plans {
		assert.Equal(t, i+1, p.Order)
	}
	assert.Empty(t, plans[0].DependsOnChapterIDs)
	assert.Equal(t, []string{"a"}, plans[1].DependsOnChapterIDs)
	assert.Equal(t, []string{"b"}, plans[2].DependsOnChapterIDs)
}

func TestSequenceCycleStillPlacesEveryNode(t *testing.T) {
	g := buildGraph(t, []string{"a", "b", "c"}, []model.Relationship{
		{SourceID: "a", TargetID: "b", Label: "uses"},
		{SourceID: "b", TargetID: "c", Label: "configures"},
		{SourceID: "c", TargetID: "a", Label: "feeds back into"},
	})
	plans := Sequence(g)
	require.Len(t, plans, 3)

	seen := make(map[string]bool)
	for _, p := range plans {
		assert.False(t, seen[p.AbstractionID], "node placed twice: %s", p.AbstractionID)
		seen[p.AbstractionID] = true
	}
	assert.Len(t, seen, 3)
}

func TestSequenceSelfCycleTwoNodes(t *testing.T) {
	g := buildGraph(t, []string{"x", "y"}, []model.Relationship{
		{SourceID: "x", TargetID: "y", Label: "calls"},
		{SourceID: "y", TargetID: "x", Label: "calls back"},
	})
	plans := Sequence(g)
	require.Len(t, plans, 2)
	// Equal in-degree: the extraction-order tie-break places x first.
	assert.Equal(t, []string{"x", "y"}, orderIDs(plans))
}

func TestSequenceDeterministic(t *testing.T) {
	ids := []string{"e", "d", "c", "b", "a"}
	rels := []model.Relationship{
		{SourceID: "e", TargetID: "a", Label: "uses"},
		{SourceID: "d", TargetID: "a", Label: "uses"},
		{SourceID: "a", TargetID: "b", Label: "drives"},
		{SourceID: "b", TargetID: "c", Label: "drives"},
		{SourceID: "c", TargetID: "e", Label: "loops to"},
	}
	first := orderIDs(Sequence(buildGraph(t, ids, rels)))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, orderIDs(Sequence(buildGraph(t, ids, rels))))
	}
}

func TestSequenceDependencyOrdersStrictlySmaller(t *testing.T) {
	g := buildGraph(t, []string{"a", "b", "c", "d"}, []model.Relationship{
		{SourceID: "a", TargetID: "b", Label: "uses"},
		{SourceID: "b", TargetID: "c", Label: "uses"},
		{SourceID: "c", TargetID: "d", Label: "uses"},
		{SourceID: "d", TargetID: "b", Label: "loops"},
	})
	plans := Sequence(g)
	require.Len(t, plans, 4)

	orderOf := make(map[string]int)
	for _, p := range plans {
		orderOf[p.AbstractionID] = p.Order
	}
	for _, p := range plans {
		for _, dep := range p.DependsOnChapterIDs {
			assert.Less(t, orderOf[dep], p.Order,
				"dependency %s of %s must come strictly earlier", dep, p.AbstractionID)
		}
	}
}

func TestSequenceForcedPlacementPrefersMostDependedUpon(t *testing.T) {
	// One three-node cycle where "hub" has an extra in-edge from inside the
	// cycle, making it the most depended-upon node when the sort gets stuck.
	g := buildGraph(t, []string{"spoke1", "spoke2", "hub"}, []model.Relationship{
		{SourceID: "hub", TargetID: "spoke1", Label: "feeds"},
		{SourceID: "spoke1", TargetID: "spoke2", Label: "feeds"},
		{SourceID: "spoke2", TargetID: "hub", Label: "feeds"},
		{SourceID: "spoke1", TargetID: "hub", Label: "also feeds"},
	})
	plans := Sequence(g)
	require.Len(t, plans, 3)
	assert.Equal(t, "hub", plans[0].AbstractionID)
	// The forced root's in-edges were treated as satisfied, so it depends on
	// no earlier chapter even though it has in-edges in the graph.
	assert.Empty(t, plans[0].DependsOnChapterIDs)
}

func TestSequenceEmptyGraph(t *testing.T) {
	g := buildGraph(t, nil, nil)
	assert.Empty(t, Sequence(g))
}

func TestSequenceDisconnectedNodesKeepExtractionOrder(t *testing.T) {
	g := buildGraph(t, []string{"zeta", "alpha", "mid"}, nil)
	plans := Sequence(g)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, orderIDs(plans))
}
