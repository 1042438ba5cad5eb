// Package render persists an assembled DocumentSet as markdown files. This
// is the storage collaborator: the core stages never touch the filesystem,
// everything they produce arrives here as plain structures.
//
// Layout under the output root:
//
//	<job-id>/index.md
//	<job-id>/chapter_NN.md
//	<job-id>/code_examples.md
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docweave/internal/model"
)

// Files renders the document set into its per-job file map, keyed by file
// name relative to the job directory.
func Files(set model.DocumentSet) map[string]string {
	files := map[string]string{
		"index.md":         renderIndex(set),
		"code_examples.md": renderCodeExamples(set),
	}
	for _, ch := range set.Chapters {
		files[chapterFileName(ch.Order)] = renderChapter(ch)
	}
	return files
}

// WriteDocumentSet renders set into outDir and returns the job directory.
func WriteDocumentSet(outDir string, set model.DocumentSet) (string, error) {
	jobDir := filepath.Join(outDir, set.JobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("creating job directory: %w", err)
	}
	for name, content := range Files(set) {
		if err := writeFile(jobDir, name, content); err != nil {
			return "", err
		}
	}
	return jobDir, nil
}

func chapterFileName(order int) string {
	return fmt.Sprintf("chapter_%02d.md", order)
}

func writeFile(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func renderIndex(set model.DocumentSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Tutorial Index\n\nJob: `%s`\n\n## Chapters\n\n", set.JobID)
	for _, entry := range set.Index {
		if entry.State == model.TaskSucceeded {
			fmt.Fprintf(&b, "%d. [%s](%s) — %s\n", entry.Order, entry.Title, chapterFileName(entry.Order), entry.Summary)
		} else {
			fmt.Fprintf(&b, "%d. %s — *not generated (%s)*\n", entry.Order, entry.Title, entry.State)
		}
	}
	if len(set.Edges) > 0 {
		b.WriteString("\n## Relationships\n\n```mermaid\nflowchart TD\n")
		for _, e := range set.Edges {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(e.SourceID), e.Label, mermaidID(e.TargetID))
		}
		b.WriteString("```\n")
	}
	return b.String()
}

func renderChapter(ch model.ChapterDoc) string {
	var b strings.Builder
	b.WriteString(ch.Markdown)
	if !strings.HasSuffix(ch.Markdown, "\n") {
		b.WriteString("\n")
	}
	var links []string
	if ch.PrevOrder > 0 {
		links = append(links, fmt.Sprintf("[← Chapter %d](%s)", ch.PrevOrder, chapterFileName(ch.PrevOrder)))
	}
	links = append(links, "[Index](index.md)")
	if ch.NextOrder > 0 {
		links = append(links, fmt.Sprintf("[Chapter %d →](%s)", ch.NextOrder, chapterFileName(ch.NextOrder)))
	}
	fmt.Fprintf(&b, "\n---\n\n%s\n", strings.Join(links, " | "))
	return b.String()
}

func renderCodeExamples(set model.DocumentSet) string {
	var b strings.Builder
	b.WriteString("# Code Examples\n\n")
	if len(set.CodeExampleIndex) == 0 {
		b.WriteString("No code examples were collected.\n")
		return b.String()
	}
	b.WriteString("| Chapter | # | Language | Caption |\n|---|---|---|---|\n")
	for _, ex := range set.CodeExampleIndex {
		fmt.Fprintf(&b, "| [%d](%s) | %d | %s | %s |\n", ex.ChapterOrder, chapterFileName(ex.ChapterOrder), ex.Ordinal, ex.Language, ex.Caption)
	}
	return b.String()
}

// mermaidID strips characters that confuse mermaid node identifiers.
func mermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
