package assemble

import (
	"strings"

	"docweave/internal/model"
)

// extractCodeExamples scans a chapter's markdown for fenced blocks and
// records one CodeExample per block. The language comes from the fence info
// string; the caption from the nearest preceding heading or non-empty intro
// line. Blocks with neither get the caption "unlabeled".
func extractCodeExamples(chapterOrder int, markdown string) []model.CodeExample {
	var examples []model.CodeExample
	lines := strings.Split(markdown, "\n")

	caption := ""
	inFence := false
	ordinal := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				inFence = false
				continue
			}
			inFence = true
			ordinal++
			lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			if lang == "" {
				lang = "unlabeled"
			}
			label := caption
			if label == "" {
				label = "unlabeled"
			}
			examples = append(examples, model.CodeExample{
				ChapterOrder: chapterOrder,
				Ordinal:      ordinal,
				Language:     lang,
				Caption:      label,
			})
			continue
		}
		if inFence {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			caption = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
			continue
		}
		if trimmed != "" {
			caption = trimmed
		}
	}
	return examples
}
