// Package orchestrate drives one generation job end to end: build the
// graph, sequence it, then run one task per chapter under a bounded worker
// pool, respecting the partial order the sequencer derived. Failures stay
// isolated to the chapter subtree they affect.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"docweave/internal/ctxlog"
	"docweave/internal/generate"
	"docweave/internal/graph"
	"docweave/internal/jobstore"
	"docweave/internal/model"
	"docweave/internal/sequence"
)

// Options configures a run. Zero values fall back to usable defaults.
type Options struct {
	// Workers bounds the number of concurrent generation calls.
	Workers int
	// MaxAttempts bounds generation attempts per chapter (first try included).
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// Store persists job state for resume. Nil disables persistence.
	Store jobstore.Store
	// Events receives task and job transitions. Nil disables publishing.
	Events func(Event)
}

// Result is everything a run produced, terminal job state included.
type Result struct {
	Job              *model.GenerationJob
	Graph            *graph.Graph
	Plans            []model.ChapterPlan
	Outputs          map[string]model.ChapterContent
	ValidationErrors []graph.ValidationError
}

// Orchestrator runs generation jobs against one configured generator.
type Orchestrator struct {
	gen  generate.ChapterGenerator
	opts Options
}

// New builds an orchestrator around the given generator.
func New(gen generate.ChapterGenerator, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	return &Orchestrator{gen: gen, opts: opts}
}

type taskResult struct {
	idx     int
	content model.ChapterContent
	err     error
}

// Run executes the whole job. The returned error covers infrastructure
// failures (persistence, cancellation); chapter-level failures are reported
// through the job's status and task states instead.
func (o *Orchestrator) Run(ctx context.Context, jobID string, abstractions []model.Abstraction, relationships []model.Relationship) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("job", jobID)

	// Stage 1: graph and sequence, synchronous and immutable from here on.
	g, verrs := graph.Build(abstractions, relationships)
	for _, ve := range verrs {
		logger.Warn("dropped relationship", "error", ve.Error())
	}
	plans := sequence.Sequence(g)
	logger.Info("sequenced chapters", "chapters", len(plans), "edges", g.EdgeCount(), "dropped_edges", len(verrs))

	job := &model.GenerationJob{
		JobID:     jobID,
		Status:    model.JobPending,
		StartedAt: time.Now().UTC(),
	}
	table := newStateTable(jobID, plans, o.opts.Events)
	res := &Result{
		Job:              job,
		Graph:            g,
		Plans:            plans,
		Outputs:          make(map[string]model.ChapterContent, len(plans)),
		ValidationErrors: verrs,
	}

	orderOf := make(map[string]int, len(plans))
	for _, p := range plans {
		orderOf[p.AbstractionID] = p.Order
	}

	// Resume: chapters already succeeded under this job ID keep their stored
	// content and are never re-dispatched.
	resumed := o.resume(ctx, table, plans, res.Outputs, logger)

	job.Status = model.JobRunning
	job.ChapterTasks = table.snapshot()
	if err := o.saveJob(ctx, job); err != nil {
		return nil, err
	}
	o.publishJob(job)

	// Stage 2: dependency-gated worker pool.
	waiting := make([]int, len(plans))
	dependents := make(map[string][]int)
	for i, p := range plans {
		waiting[i] = len(p.DependsOnChapterIDs)
		for _, dep := range p.DependsOnChapterIDs {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	sem := semaphore.NewWeighted(int64(o.opts.Workers))
	results := make(chan taskResult, len(plans))
	runCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	completed := 0
	dispatched := make([]bool, len(plans))
	dispatch := func(idx int) {
		if dispatched[idx] {
			return
		}
		dispatched[idx] = true
		plan := plans[idx]
		req := generate.Request{
			Abstraction:  mustNode(g, plan.AbstractionID),
			Predecessors: predecessors(g, plan, orderOf),
			Position:     generate.Position{Order: plan.Order, Total: len(plans)},
		}
		go o.runTask(runCtx, sem, table, idx, req, results)
	}

	// settle marks idx terminal and unblocks or fails its dependents.
	// Each index settles at most once: a dependent's waiting counter must
	// not be decremented twice for the same prerequisite. Propagated
	// failures count as completions; they are never dispatched.
	settled := make([]bool, len(plans))
	var settle func(idx int, succeeded bool)
	settle = func(idx int, succeeded bool) {
		if settled[idx] {
			return
		}
		settled[idx] = true
		completed++
		id := plans[idx].AbstractionID
		for _, di := range dependents[id] {
			if table.get(di).State.Terminal() {
				continue
			}
			if succeeded {
				waiting[di]--
				if waiting[di] == 0 {
					dispatch(di)
				}
				continue
			}
			task := table.set(di, func(t *model.ChapterTask) {
				t.State = model.TaskFailed
				t.LastError = fmt.Sprintf("dependency %s failed", id)
			})
			o.saveTask(ctx, jobID, task, logger)
			logger.Warn("chapter failed by propagation", "chapter", task.AbstractionID, "dependency", id)
			settle(di, false)
		}
	}

	for idx := range resumed {
		settle(idx, true)
	}
	for i := range plans {
		if waiting[i] == 0 && !table.get(i).State.Terminal() {
			dispatch(i)
		}
	}

	cancelled := false
	for completed < len(plans) {
		select {
		case <-ctx.Done():
			cancelled = true
		case r := <-results:
			if errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded) {
				// Abandoned in-flight task; its result is discarded and the
				// chapter stays non-terminal for a later resume.
				cancelled = true
				break
			}
			succeeded := r.err == nil
			if succeeded {
				res.Outputs[plans[r.idx].AbstractionID] = r.content
			}
			settle(r.idx, succeeded)
		}
		if cancelled {
			break
		}
	}
	cancelTasks()

	o.finalize(ctx, job, table, cancelled, len(plans))
	logger.Info("job finished", "status", job.Status)
	return res, nil
}

// runTask executes one chapter task: acquire a worker slot, then generate
// with retry on transient failures.
func (o *Orchestrator) runTask(ctx context.Context, sem *semaphore.Weighted, table *stateTable, idx int, req generate.Request, results chan<- taskResult) {
	if err := sem.Acquire(ctx, 1); err != nil {
		results <- taskResult{idx: idx, err: err}
		return
	}
	defer sem.Release(1)

	logger := ctxlog.FromContext(ctx)
	jobID := table.jobID
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		task := table.set(idx, func(t *model.ChapterTask) {
			t.State = model.TaskRunning
			t.Attempts = attempt
		})

		content, err := o.gen.Generate(ctx, req)
		if err == nil {
			task = table.set(idx, func(t *model.ChapterTask) {
				t.State = model.TaskSucceeded
				t.LastError = ""
			})
			if o.opts.Store != nil {
				if serr := o.opts.Store.SaveContent(ctx, jobID, req.Abstraction.ID, content); serr != nil {
					logger.Error("persisting chapter content failed", "chapter", req.Abstraction.ID, "error", serr)
				}
			}
			o.saveTask(ctx, jobID, task, logger)
			results <- taskResult{idx: idx, content: content}
			return
		}

		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			results <- taskResult{idx: idx, err: err}
			return
		}
		if !generate.IsTransient(err) || attempt == o.opts.MaxAttempts {
			break
		}

		table.set(idx, func(t *model.ChapterTask) {
			t.State = model.TaskRetrying
			t.LastError = err.Error()
		})
		delay := o.opts.BackoffBase * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			results <- taskResult{idx: idx, err: ctx.Err()}
			return
		case <-time.After(delay):
		}
	}

	task := table.set(idx, func(t *model.ChapterTask) {
		t.State = model.TaskFailed
		t.LastError = lastErr.Error()
	})
	o.saveTask(ctx, jobID, task, logger)
	results <- taskResult{idx: idx, err: lastErr}
}

// resume loads prior task state for this job ID and returns the indices of
// chapters whose content could be reused.
func (o *Orchestrator) resume(ctx context.Context, table *stateTable, plans []model.ChapterPlan, outputs map[string]model.ChapterContent, logger *slog.Logger) map[int]bool {
	reused := make(map[int]bool)
	if o.opts.Store == nil {
		return reused
	}
	prior, err := o.opts.Store.LoadJob(ctx, table.jobID)
	if err != nil {
		return reused
	}
	for i, p := range plans {
		task, ok := prior.ChapterTasks[p.AbstractionID]
		if !ok || task.State != model.TaskSucceeded {
			continue
		}
		content, found, err := o.opts.Store.LoadContent(ctx, table.jobID, p.AbstractionID)
		if err != nil || !found {
			continue
		}
		attempts := task.Attempts
		table.set(i, func(t *model.ChapterTask) {
			t.State = model.TaskSucceeded
			t.Attempts = attempts
		})
		outputs[p.AbstractionID] = content
		reused[i] = true
	}
	if len(reused) > 0 {
		logger.Info("resumed chapters from store", "reused", len(reused))
	}
	return reused
}

// finalize derives the terminal job status and persists the final record.
func (o *Orchestrator) finalize(ctx context.Context, job *model.GenerationJob, table *stateTable, cancelled bool, total int) {
	tasks := table.snapshot()
	succeeded, failed := 0, 0
	for id, t := range tasks {
		switch t.State {
		case model.TaskSucceeded:
			succeeded++
		case model.TaskFailed:
			failed++
		default:
			// Interrupted tasks go back to pending so a resume retries them.
			t.State = model.TaskPending
			tasks[id] = t
		}
	}
	job.ChapterTasks = tasks
	job.FinishedAt = time.Now().UTC()

	switch {
	case cancelled:
		job.Status = model.JobCancelled
	case succeeded == total:
		job.Status = model.JobSucceeded
	case succeeded > 0 && failed > 0:
		job.Status = model.JobPartiallyFailed
	default:
		job.Status = model.JobFailed
	}

	// Persist with a fresh context: the run context may already be cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.saveJob(saveCtx, job); err != nil {
		ctxlog.FromContext(ctx).Error("persisting final job state failed", "job", job.JobID, "error", err)
	}
	o.publishJob(job)
}

func (o *Orchestrator) saveJob(ctx context.Context, job *model.GenerationJob) error {
	if o.opts.Store == nil {
		return nil
	}
	if err := o.opts.Store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("persisting job %s: %w", job.JobID, err)
	}
	return nil
}

func (o *Orchestrator) saveTask(ctx context.Context, jobID string, task model.ChapterTask, logger *slog.Logger) {
	if o.opts.Store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.opts.Store.SaveTask(saveCtx, jobID, task); err != nil {
		logger.Error("persisting task state failed", "chapter", task.AbstractionID, "error", err)
	}
}

func (o *Orchestrator) publishJob(job *model.GenerationJob) {
	if o.opts.Events == nil {
		return
	}
	o.opts.Events(Event{JobID: job.JobID, JobStatus: job.Status})
}

func mustNode(g *graph.Graph, id string) model.Abstraction {
	n, _ := g.Node(id)
	return n.Abstraction
}

func predecessors(g *graph.Graph, plan model.ChapterPlan, orderOf map[string]int) []generate.Predecessor {
	if len(plan.DependsOnChapterIDs) == 0 {
		return nil
	}
	preds := make([]generate.Predecessor, 0, len(plan.DependsOnChapterIDs))
	for _, dep := range plan.DependsOnChapterIDs {
		preds = append(preds, generate.Predecessor{
			Order:       orderOf[dep],
			Abstraction: mustNode(g, dep),
		})
	}
	return preds
}
