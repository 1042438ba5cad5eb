package model

import "time"

// JobStatus is the run-level state of a generation job.
type JobStatus string

const (
	JobPending         JobStatus = "pending"
	JobRunning         JobStatus = "running"
	JobSucceeded       JobStatus = "succeeded"
	JobPartiallyFailed JobStatus = "partially-failed"
	JobFailed          JobStatus = "failed"
	JobCancelled       JobStatus = "cancelled"
)

// Terminal reports whether the job status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobPartiallyFailed, JobFailed, JobCancelled:
		return true
	}
	return false
}

// TaskState is the state of one chapter-generation task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskRetrying  TaskState = "retrying"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether the task state is final.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// ChapterTask tracks one chapter's generation attempt history.
type ChapterTask struct {
	AbstractionID string    `json:"abstraction_id"`
	State         TaskState `json:"state"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
}

// GenerationJob is the run-level record for one pipeline execution.
// JobID is stable across retries of the same logical run, so a restart
// can reuse chapters that already succeeded.
type GenerationJob struct {
	JobID        string                 `json:"job_id"`
	Status       JobStatus              `json:"status"`
	ChapterTasks map[string]ChapterTask `json:"chapter_tasks"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at,omitzero"`
}
