package jobstore

import (
	"context"
	"sync"

	"docweave/internal/model"
)

// MemoryStore keeps job state in process memory. Used by tests and by
// one-shot runs that do not need resume across processes.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*model.GenerationJob
	content map[string]map[string]model.ChapterContent // jobID -> abstractionID -> content
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*model.GenerationJob),
		content: make(map[string]map[string]model.ChapterContent),
	}
}

func (m *MemoryStore) SaveJob(_ context.Context, job *model.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) LoadJob(_ context.Context, jobID string) (*model.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) SaveTask(_ context.Context, jobID string, task model.ChapterTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.ChapterTasks == nil {
		job.ChapterTasks = make(map[string]model.ChapterTask)
	}
	job.ChapterTasks[task.AbstractionID] = task
	return nil
}

func (m *MemoryStore) SaveContent(_ context.Context, jobID, abstractionID string, content model.ChapterContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.content[jobID] == nil {
		m.content[jobID] = make(map[string]model.ChapterContent)
	}
	m.content[jobID][abstractionID] = content
	return nil
}

func (m *MemoryStore) LoadContent(_ context.Context, jobID, abstractionID string) (model.ChapterContent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.content[jobID][abstractionID]
	return content, ok, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneJob(job *model.GenerationJob) *model.GenerationJob {
	out := *job
	out.ChapterTasks = make(map[string]model.ChapterTask, len(job.ChapterTasks))
	for k, v := range job.ChapterTasks {
		out.ChapterTasks[k] = v
	}
	return &out
}
