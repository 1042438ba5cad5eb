package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docweave/internal/model"
)

// PostgresStore persists job state in Postgres, for deployments where
// several runs (or a restarted runner) share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the given DSN and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id      TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chapter_tasks (
			job_id         TEXT NOT NULL,
			abstraction_id TEXT NOT NULL,
			state          TEXT NOT NULL,
			attempts       INTEGER NOT NULL DEFAULT 0,
			last_error     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (job_id, abstraction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chapter_contents (
			job_id         TEXT NOT NULL,
			abstraction_id TEXT NOT NULL,
			markdown       TEXT NOT NULL,
			PRIMARY KEY (job_id, abstraction_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, job *model.GenerationJob) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var finished *time.Time
	if !job.FinishedAt.IsZero() {
		t := job.FinishedAt.UTC()
		finished = &t
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO jobs (job_id, status, started_at, finished_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (job_id) DO UPDATE SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at`,
		job.JobID, string(job.Status), job.StartedAt.UTC(), finished); err != nil {
		return fmt.Errorf("saving job %s: %w", job.JobID, err)
	}
	for _, task := range job.ChapterTasks {
		if _, err := tx.Exec(ctx, upsertTaskSQL,
			job.JobID, task.AbstractionID, string(task.State), task.Attempts, task.LastError); err != nil {
			return fmt.Errorf("saving task %s/%s: %w", job.JobID, task.AbstractionID, err)
		}
	}
	return tx.Commit(ctx)
}

const upsertTaskSQL = `INSERT INTO chapter_tasks (job_id, abstraction_id, state, attempts, last_error)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (job_id, abstraction_id) DO UPDATE SET
	  state = EXCLUDED.state, attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error`

func (s *PostgresStore) LoadJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job := &model.GenerationJob{JobID: jobID, ChapterTasks: make(map[string]model.ChapterTask)}

	var status string
	var started time.Time
	var finished *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT status, started_at, finished_at FROM jobs WHERE job_id = $1`, jobID).
		Scan(&status, &started, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	job.Status = model.JobStatus(status)
	job.StartedAt = started
	if finished != nil {
		job.FinishedAt = *finished
	}

	rows, err := s.pool.Query(ctx,
		`SELECT abstraction_id, state, attempts, last_error FROM chapter_tasks WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks for %s: %w", jobID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var task model.ChapterTask
		var state string
		if err := rows.Scan(&task.AbstractionID, &state, &task.Attempts, &task.LastError); err != nil {
			return nil, err
		}
		task.State = model.TaskState(state)
		job.ChapterTasks[task.AbstractionID] = task
	}
	return job, rows.Err()
}

func (s *PostgresStore) SaveTask(ctx context.Context, jobID string, task model.ChapterTask) error {
	_, err := s.pool.Exec(ctx, upsertTaskSQL,
		jobID, task.AbstractionID, string(task.State), task.Attempts, task.LastError)
	if err != nil {
		return fmt.Errorf("saving task %s/%s: %w", jobID, task.AbstractionID, err)
	}
	return nil
}

func (s *PostgresStore) SaveContent(ctx context.Context, jobID, abstractionID string, content model.ChapterContent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chapter_contents (job_id, abstraction_id, markdown) VALUES ($1, $2, $3)
		 ON CONFLICT (job_id, abstraction_id) DO UPDATE SET markdown = EXCLUDED.markdown`,
		jobID, abstractionID, content.Markdown)
	if err != nil {
		return fmt.Errorf("saving content %s/%s: %w", jobID, abstractionID, err)
	}
	return nil
}

func (s *PostgresStore) LoadContent(ctx context.Context, jobID, abstractionID string) (model.ChapterContent, bool, error) {
	var markdown string
	err := s.pool.QueryRow(ctx,
		`SELECT markdown FROM chapter_contents WHERE job_id = $1 AND abstraction_id = $2`,
		jobID, abstractionID).Scan(&markdown)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChapterContent{}, false, nil
	}
	if err != nil {
		return model.ChapterContent{}, false, err
	}
	return model.ChapterContent{Markdown: markdown}, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
