// Package generate defines the chapter-generation collaborator interface and
// the cross-cutting layers around it. Concrete providers stay thin; retries,
// caching and logging are applied as Middleware decorators.
package generate

import (
	"context"

	"docweave/internal/model"
)

// Position tells the generator where the chapter sits in the full sequence.
type Position struct {
	Order int
	Total int
}

// Predecessor carries a prerequisite chapter's identity and summary so the
// generator can reference earlier chapters by title and link.
type Predecessor struct {
	Order       int
	Abstraction model.Abstraction
}

// Request is one chapter-generation call.
type Request struct {
	Abstraction  model.Abstraction
	Predecessors []Predecessor
	Position     Position
}

// ChapterGenerator produces the markdown body of one chapter. Errors must be
// classifiable as transient or permanent; see IsTransient.
type ChapterGenerator interface {
	Name() string
	Generate(ctx context.Context, req Request) (model.ChapterContent, error)
	Close() error
}

// Middleware wraps a ChapterGenerator with a cross-cutting concern.
type Middleware func(next ChapterGenerator) ChapterGenerator

// Chain applies middlewares so the first listed becomes the outermost layer.
func Chain(g ChapterGenerator, mws ...Middleware) ChapterGenerator {
	for i := len(mws) - 1; i >= 0; i-- {
		g = mws[i](g)
	}
	return g
}
