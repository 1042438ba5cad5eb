package generate

import (
	"fmt"
	"strings"
)

// buildPrompt renders the shared instruction block used by the hosted
// providers. The structural contract matters more than the prose: the model
// must return a markdown chapter body and may reference only the listed
// predecessor chapters.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of %d of a codebase tutorial.\n\n", req.Position.Order, req.Position.Total)
	fmt.Fprintf(&b, "Chapter subject: %s\n", req.Abstraction.Title)
	fmt.Fprintf(&b, "Subject summary: %s\n\n", req.Abstraction.Summary)
	if len(req.Predecessors) > 0 {
		b.WriteString("Earlier chapters you may reference:\n")
		for _, p := range req.Predecessors {
			fmt.Fprintf(&b, "- Chapter %d: %s — %s\n", p.Order, p.Abstraction.Title, p.Abstraction.Summary)
		}
		b.WriteString("\n")
	}
	b.WriteString("Respond with the chapter body in markdown. Do not invent chapters that are not listed above. Label fenced code blocks with a language.")
	return b.String()
}
