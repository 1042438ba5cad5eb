package orchestrate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docweave/internal/generate"
	"docweave/internal/jobstore"
	"docweave/internal/model"
)

// scriptedGenerator fails according to a per-chapter error script, then
// succeeds. Call counts are recorded so tests can assert retry behavior.
type scriptedGenerator struct {
	mu     sync.Mutex
	calls  map[string]int
	script map[string][]error
	delay  time.Duration
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		calls:  make(map[string]int),
		script: make(map[string][]error),
	}
}

func (s *scriptedGenerator) Name() string { return "scripted" }
func (s *scriptedGenerator) Close() error { return nil }

func (s *scriptedGenerator) Generate(_ context.Context, req generate.Request) (model.ChapterContent, error) {
	s.mu.Lock()
	id := req.Abstraction.ID
	s.calls[id]++
	var err error
	if errs := s.script[id]; len(errs) > 0 {
		err = errs[0]
		s.script[id] = errs[1:]
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return model.ChapterContent{}, err
	}
	return model.ChapterContent{Markdown: "# " + req.Abstraction.Title}, nil
}

func (s *scriptedGenerator) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// failForever makes every call for the chapter return err.
func (s *scriptedGenerator) failForever(id string, err error, maxAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxAttempts; i++ {
		s.script[id] = append(s.script[id], err)
	}
}

func abstraction(id string) model.Abstraction {
	return model.Abstraction{ID: id, Title: "Title " + id, Summary: "about " + id}
}

func chain(ids ...string) ([]model.Abstraction, []model.Relationship) {
	abs := make([]model.Abstraction, 0, len(ids))
	for _, id := range ids {
		abs = append(abs, abstraction(id))
	}
	var rels []model.Relationship
	for i := 1; i < len(ids); i++ {
		rels = append(rels, model.Relationship{SourceID: ids[i-1], TargetID: ids[i], Label: "feeds"})
	}
	return abs, rels
}

func testOptions() Options {
	return Options{Workers: 2, MaxAttempts: 3, BackoffBase: time.Millisecond}
}

func TestRunLinearChainSucceeds(t *testing.T) {
	abs, rels := chain("a", "b", "c")
	gen := newScriptedGenerator()

	var mu sync.Mutex
	var events []Event
	opts := testOptions()
	opts.Events = func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	res, err := New(gen, opts).Run(context.Background(), "job-1", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobSucceeded, res.Job.Status)
	require.Len(t, res.Plans, 3)
	assert.Len(t, res.Outputs, 3)
	assert.Equal(t, "# Title a", res.Outputs["a"].Markdown)
	for _, id := range []string{"a", "b", "c"} {
		task := res.Job.ChapterTasks[id]
		assert.Equal(t, model.TaskSucceeded, task.State, id)
		assert.Equal(t, 1, task.Attempts, id)
		assert.Equal(t, 1, gen.count(id), id)
	}
	assert.False(t, res.Job.FinishedAt.IsZero())

	mu.Lock()
	defer mu.Unlock()
	var sawFinal bool
	for _, e := range events {
		if e.AbstractionID == "" && e.JobStatus == model.JobSucceeded {
			sawFinal = true
		}
	}
	assert.True(t, sawFinal, "expected a terminal job event")
}

func TestRunFailureStaysOnDependentSubtree(t *testing.T) {
	// a -> b -> c -> d, with e independent. Failing b takes c and d with it
	// by propagation while a and e still succeed.
	abs, rels := chain("a", "b", "c", "d")
	abs = append(abs, abstraction("e"))

	gen := newScriptedGenerator()
	opts := testOptions()
	gen.failForever("b", generate.NewPermanentError(errors.New("model refused")), opts.MaxAttempts)

	res, err := New(gen, opts).Run(context.Background(), "job-2", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobPartiallyFailed, res.Job.Status)
	assert.Equal(t, model.TaskSucceeded, res.Job.ChapterTasks["a"].State)
	assert.Equal(t, model.TaskSucceeded, res.Job.ChapterTasks["e"].State)
	assert.Equal(t, model.TaskFailed, res.Job.ChapterTasks["b"].State)
	assert.Equal(t, model.TaskFailed, res.Job.ChapterTasks["c"].State)
	assert.Equal(t, model.TaskFailed, res.Job.ChapterTasks["d"].State)
	assert.Equal(t, "dependency b failed", res.Job.ChapterTasks["c"].LastError)
	assert.Equal(t, "dependency c failed", res.Job.ChapterTasks["d"].LastError)

	// Propagated failures are never dispatched.
	assert.Equal(t, 0, gen.count("c"))
	assert.Equal(t, 0, gen.count("d"))

	_, ok := res.Outputs["b"]
	assert.False(t, ok)
	assert.Contains(t, res.Outputs, "a")
	assert.Contains(t, res.Outputs, "e")
}

func TestRunRetriesTransientErrors(t *testing.T) {
	abs, rels := chain("a")
	gen := newScriptedGenerator()
	gen.script["a"] = []error{errors.New("429 rate limited"), errors.New("503 upstream")}

	res, err := New(gen, testOptions()).Run(context.Background(), "job-3", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobSucceeded, res.Job.Status)
	task := res.Job.ChapterTasks["a"]
	assert.Equal(t, model.TaskSucceeded, task.State)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, 3, gen.count("a"))
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	abs, rels := chain("a")
	gen := newScriptedGenerator()
	gen.script["a"] = []error{generate.NewPermanentError(errors.New("invalid request"))}

	res, err := New(gen, testOptions()).Run(context.Background(), "job-4", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobFailed, res.Job.Status)
	task := res.Job.ChapterTasks["a"]
	assert.Equal(t, model.TaskFailed, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "invalid request", task.LastError)
	assert.Equal(t, 1, gen.count("a"))
}

func TestRunExhaustsAttemptsOnPersistentTransientError(t *testing.T) {
	abs, rels := chain("a")
	gen := newScriptedGenerator()
	opts := testOptions()
	gen.failForever("a", errors.New("flaky upstream"), opts.MaxAttempts)

	res, err := New(gen, opts).Run(context.Background(), "job-5", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobFailed, res.Job.Status)
	task := res.Job.ChapterTasks["a"]
	assert.Equal(t, model.TaskFailed, task.State)
	assert.Equal(t, opts.MaxAttempts, task.Attempts)
	assert.Equal(t, opts.MaxAttempts, gen.count("a"))
}

func TestRunResumesSucceededChaptersFromStore(t *testing.T) {
	abs, rels := chain("a", "b")
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	prior := &model.GenerationJob{
		JobID:  "job-6",
		Status: model.JobCancelled,
		ChapterTasks: map[string]model.ChapterTask{
			"a": {AbstractionID: "a", State: model.TaskSucceeded, Attempts: 2},
			"b": {AbstractionID: "b", State: model.TaskPending},
		},
	}
	require.NoError(t, store.SaveJob(ctx, prior))
	stored := model.ChapterContent{Markdown: "# stored chapter a"}
	require.NoError(t, store.SaveContent(ctx, "job-6", "a", stored))

	gen := newScriptedGenerator()
	opts := testOptions()
	opts.Store = store

	res, err := New(gen, opts).Run(ctx, "job-6", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobSucceeded, res.Job.Status)
	assert.Equal(t, 0, gen.count("a"), "resumed chapter must not be regenerated")
	assert.Equal(t, 1, gen.count("b"))
	assert.Equal(t, stored, res.Outputs["a"])
	assert.Equal(t, 2, res.Job.ChapterTasks["a"].Attempts)

	persisted, err := store.LoadJob(ctx, "job-6")
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, persisted.Status)
}

func TestRunResumeDispatchesDependentsExactlyOnce(t *testing.T) {
	abs, rels := chain("a", "b")
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	prior := &model.GenerationJob{
		JobID:  "job-9",
		Status: model.JobCancelled,
		ChapterTasks: map[string]model.ChapterTask{
			"a": {AbstractionID: "a", State: model.TaskSucceeded, Attempts: 1},
			"b": {AbstractionID: "b", State: model.TaskPending},
		},
	}
	require.NoError(t, store.SaveJob(ctx, prior))
	require.NoError(t, store.SaveContent(ctx, "job-9", "a", model.ChapterContent{Markdown: "# stored"}))

	// The delay keeps generation calls open long enough that a duplicate
	// dispatch would land as a second recorded call.
	gen := newScriptedGenerator()
	gen.delay = 20 * time.Millisecond
	opts := testOptions()
	opts.Store = store

	res, err := New(gen, opts).Run(ctx, "job-9", abs, rels)
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, res.Job.Status)

	// Wait out any stray in-flight call before counting.
	time.Sleep(3 * gen.delay)
	assert.Equal(t, 0, gen.count("a"))
	assert.Equal(t, 1, gen.count("b"), "dependent of a resumed chapter must be generated exactly once")
}

func TestRunResumeDoesNotUnblockDependentsTwice(t *testing.T) {
	// Diamond: d needs both b and c. With a resumed and b deliberately slow,
	// d must not start until b has actually finished.
	abs, _ := chain("a", "b", "c", "d")
	rels := []model.Relationship{
		{SourceID: "a", TargetID: "b", Label: "feeds"},
		{SourceID: "a", TargetID: "c", Label: "feeds"},
		{SourceID: "b", TargetID: "d", Label: "feeds"},
		{SourceID: "c", TargetID: "d", Label: "feeds"},
	}
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	prior := &model.GenerationJob{
		JobID:  "job-10",
		Status: model.JobCancelled,
		ChapterTasks: map[string]model.ChapterTask{
			"a": {AbstractionID: "a", State: model.TaskSucceeded, Attempts: 1},
		},
	}
	require.NoError(t, store.SaveJob(ctx, prior))
	require.NoError(t, store.SaveContent(ctx, "job-10", "a", model.ChapterContent{Markdown: "# stored"}))

	gen := &orderRecordingGenerator{delays: map[string]time.Duration{"b": 30 * time.Millisecond}}
	opts := testOptions()
	opts.Store = store

	res, err := New(gen, opts).Run(ctx, "job-10", abs, rels)
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, res.Job.Status)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	require.Contains(t, gen.finished, "b")
	require.Contains(t, gen.started, "d")
	assert.True(t, gen.finished["b"].Before(gen.started["d"]),
		"chapter with two prerequisites started before both finished")
}

func TestRunCancellationLeavesTasksResumable(t *testing.T) {
	abs, rels := chain("a", "b", "c")
	store := jobstore.NewMemoryStore()

	gen := &blockingGenerator{started: make(chan struct{}, 8)}
	opts := testOptions()
	opts.Store = store

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gen.started
		cancel()
	}()

	res, err := New(gen, opts).Run(ctx, "job-7", abs, rels)
	require.NoError(t, err)

	assert.Equal(t, model.JobCancelled, res.Job.Status)
	for id, task := range res.Job.ChapterTasks {
		assert.Equal(t, model.TaskPending, task.State, id)
	}
	assert.Empty(t, res.Outputs)

	persisted, err := store.LoadJob(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, persisted.Status)
}

func TestRunEmptyInputSucceedsVacuously(t *testing.T) {
	gen := newScriptedGenerator()
	res, err := New(gen, testOptions()).Run(context.Background(), "job-8", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.JobSucceeded, res.Job.Status)
	assert.Empty(t, res.Outputs)
}

// orderRecordingGenerator timestamps when each chapter's generation starts
// and finishes, with optional per-chapter delays.
type orderRecordingGenerator struct {
	mu       sync.Mutex
	started  map[string]time.Time
	finished map[string]time.Time
	delays   map[string]time.Duration
}

func (o *orderRecordingGenerator) Name() string { return "order-recording" }
func (o *orderRecordingGenerator) Close() error { return nil }

func (o *orderRecordingGenerator) Generate(_ context.Context, req generate.Request) (model.ChapterContent, error) {
	id := req.Abstraction.ID
	o.mu.Lock()
	if o.started == nil {
		o.started = make(map[string]time.Time)
		o.finished = make(map[string]time.Time)
	}
	o.started[id] = time.Now()
	delay := o.delays[id]
	o.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	o.mu.Lock()
	o.finished[id] = time.Now()
	o.mu.Unlock()
	return model.ChapterContent{Markdown: "# " + req.Abstraction.Title}, nil
}

// blockingGenerator blocks until its context is cancelled.
type blockingGenerator struct {
	started chan struct{}
}

func (b *blockingGenerator) Name() string { return "blocking" }
func (b *blockingGenerator) Close() error { return nil }

func (b *blockingGenerator) Generate(ctx context.Context, _ generate.Request) (model.ChapterContent, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return model.ChapterContent{}, ctx.Err()
}
