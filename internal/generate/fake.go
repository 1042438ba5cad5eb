package generate

import (
	"context"
	"fmt"
	"strings"

	"docweave/internal/model"
)

// FakeGenerator returns deterministic markdown for offline runs and tests.
// No network, no randomness: the same request always yields the same body.
type FakeGenerator struct{}

// NewFakeGenerator builds the offline generator.
func NewFakeGenerator() *FakeGenerator { return &FakeGenerator{} }

func (f *FakeGenerator) Name() string { return "Fake" }
func (f *FakeGenerator) Close() error { return nil }

func (f *FakeGenerator) Generate(_ context.Context, req Request) (model.ChapterContent, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", req.Abstraction.Title, req.Abstraction.Summary)
	for _, p := range req.Predecessors {
		fmt.Fprintf(&b, "\nBuilds on chapter %d (%s).\n", p.Order, p.Abstraction.Title)
	}
	fmt.Fprintf(&b, "\nExample usage\n\n```go\n// %s\n```\n", req.Abstraction.ID)
	return model.ChapterContent{Markdown: b.String()}, nil
}
