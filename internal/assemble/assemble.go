// Package assemble turns a terminal job's chapter outputs into the final
// cross-linked DocumentSet. Only succeeded chapters are included; order
// values are never renumbered around failures, so a missing chapter shows
// up as a gap instead of silently shifting its successors.
package assemble

import (
	"sort"

	"docweave/internal/graph"
	"docweave/internal/model"
)

// Assemble builds the DocumentSet for a job that reached a terminal status.
// plans is the sequencer output; outputs maps abstraction ID to generated
// content for chapters that succeeded.
func Assemble(job *model.GenerationJob, g *graph.Graph, plans []model.ChapterPlan, outputs map[string]model.ChapterContent) model.DocumentSet {
	ordered := make([]model.ChapterPlan, len(plans))
	copy(ordered, plans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	set := model.DocumentSet{JobID: job.JobID}

	for _, p := range ordered {
		node, _ := g.Node(p.AbstractionID)
		state := model.TaskPending
		if task, ok := job.ChapterTasks[p.AbstractionID]; ok {
			state = task.State
		}
		set.Index = append(set.Index, model.IndexEntry{
			Order:         p.Order,
			AbstractionID: p.AbstractionID,
			Title:         node.Abstraction.Title,
			Summary:       node.Abstraction.Summary,
			State:         state,
		})
	}

	for _, e := range g.Edges() {
		set.Edges = append(set.Edges, model.GraphEdge{SourceID: e.SourceID, TargetID: e.TargetID, Label: e.Label})
	}

	// Present chapters keep their original order; prev/next links skip gaps.
	var present []model.ChapterPlan
	for _, p := range ordered {
		task, ok := job.ChapterTasks[p.AbstractionID]
		if !ok || task.State != model.TaskSucceeded {
			continue
		}
		if _, ok := outputs[p.AbstractionID]; !ok {
			continue
		}
		present = append(present, p)
	}

	for i, p := range present {
		node, _ := g.Node(p.AbstractionID)
		doc := model.ChapterDoc{
			Order:         p.Order,
			AbstractionID: p.AbstractionID,
			Title:         node.Abstraction.Title,
			Markdown:      outputs[p.AbstractionID].Markdown,
		}
		if i > 0 {
			doc.PrevOrder = present[i-1].Order
		}
		if i < len(present)-1 {
			doc.NextOrder = present[i+1].Order
		}
		set.Chapters = append(set.Chapters, doc)
		set.CodeExampleIndex = append(set.CodeExampleIndex, extractCodeExamples(p.Order, doc.Markdown)...)
	}

	return set
}
