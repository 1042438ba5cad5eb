// Package model holds the run-scoped data types shared by the graph builder,
// sequencer, orchestrator and assembler. Values here are plain serializable
// structs; behavior lives in the packages that own each stage.
package model

// Abstraction is one architectural component discovered in the analyzed
// codebase. Created once during extraction and immutable for the rest of
// the run.
type Abstraction struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
}

// Relationship is a directed, labeled edge between two abstractions.
// Parallel edges with different labels are meaningful and preserved.
type Relationship struct {
	SourceID string `json:"source_id" yaml:"source_id"`
	TargetID string `json:"target_id" yaml:"target_id"`
	Label    string `json:"label" yaml:"label"`
}

// ChapterPlan is the scheduling record for one chapter: where it sits in the
// final reading order and which earlier chapters it may reference.
type ChapterPlan struct {
	Order               int      `json:"order"`
	AbstractionID       string   `json:"abstraction_id"`
	DependsOnChapterIDs []string `json:"depends_on_chapter_ids,omitempty"`
}

// ChapterContent is the generator's output for one chapter.
type ChapterContent struct {
	Markdown string `json:"markdown"`
}
