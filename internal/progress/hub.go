// Package progress fans orchestrator events out to websocket subscribers so
// a caller can watch a long run without polling the job store.
package progress

import (
	"sync"

	"docweave/internal/model"
	"docweave/internal/orchestrate"
)

// Update is the wire form of one orchestrator event.
type Update struct {
	Type          string          `json:"type"` // "task" or "job"
	JobID         string          `json:"jobId"`
	AbstractionID string          `json:"abstractionId,omitempty"`
	TaskState     model.TaskState `json:"taskState,omitempty"`
	JobStatus     model.JobStatus `json:"jobStatus,omitempty"`
	Attempt       int             `json:"attempt,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Hub broadcasts updates to all current subscribers. Slow subscribers drop
// updates rather than stalling the orchestrator.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Update]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Update]struct{})}
}

// Publish converts an orchestrator event and broadcasts it. Safe for
// concurrent use; intended as the orchestrator's Events sink.
func (h *Hub) Publish(ev orchestrate.Event) {
	up := Update{
		JobID:         ev.JobID,
		AbstractionID: ev.AbstractionID,
		TaskState:     ev.TaskState,
		JobStatus:     ev.JobStatus,
		Attempt:       ev.Attempt,
		Error:         ev.Err,
	}
	if ev.AbstractionID == "" {
		up.Type = "job"
	} else {
		up.Type = "task"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- up:
		default:
		}
	}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Update {
	ch := make(chan Update, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(ch chan Update) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}
