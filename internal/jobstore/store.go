// Package jobstore persists generation-job state so a run can be resumed
// under the same job ID without regenerating chapters that already
// succeeded. Three backends: in-memory (tests, one-shot runs), SQLite
// (embedded default) and Postgres (shared state).
package jobstore

import (
	"context"
	"errors"

	"docweave/internal/model"
)

// ErrNotFound is returned when no job exists under the requested ID.
var ErrNotFound = errors.New("jobstore: job not found")

// Store persists job records, per-chapter task states, and the content of
// succeeded chapters.
type Store interface {
	// SaveJob upserts the job row and all of its chapter task entries.
	SaveJob(ctx context.Context, job *model.GenerationJob) error
	// LoadJob returns the stored job, or ErrNotFound.
	LoadJob(ctx context.Context, jobID string) (*model.GenerationJob, error)
	// SaveTask upserts a single chapter task entry.
	SaveTask(ctx context.Context, jobID string, task model.ChapterTask) error
	// SaveContent stores a succeeded chapter's content.
	SaveContent(ctx context.Context, jobID, abstractionID string, content model.ChapterContent) error
	// LoadContent returns a stored chapter's content; ok is false when absent.
	LoadContent(ctx context.Context, jobID, abstractionID string) (model.ChapterContent, bool, error)
	Close() error
}
