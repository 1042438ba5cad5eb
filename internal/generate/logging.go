package generate

import (
	"context"
	"time"

	"docweave/internal/ctxlog"
	"docweave/internal/model"
)

// WithLogging logs each generation call's position, duration and outcome
// through the context-bound logger.
func WithLogging() Middleware {
	return func(next ChapterGenerator) ChapterGenerator {
		return &logging{next: next}
	}
}

type logging struct {
	next ChapterGenerator
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, req Request) (model.ChapterContent, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("generation request",
		"generator", l.next.Name(),
		"chapter", req.Abstraction.ID,
		"order", req.Position.Order,
		"total", req.Position.Total,
		"predecessors", len(req.Predecessors))
	start := time.Now()
	out, err := l.next.Generate(ctx, req)
	if err != nil {
		logger.Warn("generation error", "chapter", req.Abstraction.ID, "elapsed", time.Since(start), "error", err)
		return out, err
	}
	logger.Debug("generation done", "chapter", req.Abstraction.ID, "elapsed", time.Since(start), "bytes", len(out.Markdown))
	return out, nil
}
