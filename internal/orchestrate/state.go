package orchestrate

import (
	"sync"

	"docweave/internal/model"
)

// Event is one observable task or job transition, published to the
// configured sink as it happens.
type Event struct {
	JobID         string
	AbstractionID string // empty for job-level events
	TaskState     model.TaskState
	JobStatus     model.JobStatus
	Attempt       int
	Err           string
}

// stateTable is the only mutable shared resource of a run: one entry per
// chapter, addressed by plan index. All mutations go through the table's
// lock so concurrent task completions cannot lose updates.
type stateTable struct {
	mu      sync.Mutex
	jobID   string
	entries []model.ChapterTask
	sink    func(Event)
}

func newStateTable(jobID string, plans []model.ChapterPlan, sink func(Event)) *stateTable {
	t := &stateTable{
		jobID:   jobID,
		entries: make([]model.ChapterTask, len(plans)),
		sink:    sink,
	}
	for i, p := range plans {
		t.entries[i] = model.ChapterTask{AbstractionID: p.AbstractionID, State: model.TaskPending}
	}
	return t
}

// set transitions one entry and publishes the event. mutate runs under the
// table lock and receives the current entry.
func (t *stateTable) set(idx int, mutate func(task *model.ChapterTask)) model.ChapterTask {
	t.mu.Lock()
	mutate(&t.entries[idx])
	task := t.entries[idx]
	t.mu.Unlock()
	if t.sink != nil {
		t.sink(Event{
			JobID:         t.jobID,
			AbstractionID: task.AbstractionID,
			TaskState:     task.State,
			Attempt:       task.Attempts,
			Err:           task.LastError,
		})
	}
	return task
}

func (t *stateTable) get(idx int) model.ChapterTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[idx]
}

// snapshot copies all entries into a task map for the job record.
func (t *stateTable) snapshot() map[string]model.ChapterTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.ChapterTask, len(t.entries))
	for _, e := range t.entries {
		out[e.AbstractionID] = e
	}
	return out
}
