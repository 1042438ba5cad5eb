package model

// IndexEntry is one row of the document-set index. Entries exist for every
// planned chapter, including failed ones, so gaps in the final set stay
// visible to the consumer.
type IndexEntry struct {
	Order         int       `json:"order"`
	AbstractionID string    `json:"abstraction_id"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	State         TaskState `json:"state"`
}

// ChapterDoc is one assembled chapter. PrevOrder/NextOrder point to the
// nearest present chapter in each direction; zero means none.
type ChapterDoc struct {
	Order         int    `json:"order"`
	AbstractionID string `json:"abstraction_id"`
	Title         string `json:"title"`
	Markdown      string `json:"markdown"`
	PrevOrder     int    `json:"prev_order,omitempty"`
	NextOrder     int    `json:"next_order,omitempty"`
}

// CodeExample is one fenced block collected from a chapter, identified by the
// chapter's order and a per-chapter ordinal.
type CodeExample struct {
	ChapterOrder int    `json:"chapter_order"`
	Ordinal      int    `json:"ordinal"`
	Language     string `json:"language"`
	Caption      string `json:"caption"`
}

// GraphEdge is a rendered relationship row for the index document.
type GraphEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Label    string `json:"label"`
}

// DocumentSet is the final assembled output of a run: the index, the
// successfully generated chapters in presentation order, and the catalogue of
// embedded code examples. It is a plain structure; rendering and persistence
// belong to downstream collaborators.
type DocumentSet struct {
	JobID            string        `json:"job_id"`
	Index            []IndexEntry  `json:"index"`
	Edges            []GraphEdge   `json:"edges"`
	Chapters         []ChapterDoc  `json:"chapters"`
	CodeExampleIndex []CodeExample `json:"code_example_index"`
}
