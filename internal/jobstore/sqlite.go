package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docweave/internal/model"
)

// SQLiteStore persists job state in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the job database in dataDir and ensures the
// schema. Pass ":memory:" as dataDir for an in-memory database.
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docweave.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent task
	// completions; the busy timeout covers anything that slips through.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id      TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			started_at  TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
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
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.GenerationJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var finished any
	if !job.FinishedAt.IsZero() {
		finished = job.FinishedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (job_id, status, started_at, finished_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET status = excluded.status, finished_at = excluded.finished_at`,
		job.JobID, string(job.Status), job.StartedAt.UTC(), finished); err != nil {
		return fmt.Errorf("saving job %s: %w", job.JobID, err)
	}
	for _, task := range job.ChapterTasks {
		if err := upsertTask(ctx, tx, job.JobID, task); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job := &model.GenerationJob{JobID: jobID, ChapterTasks: make(map[string]model.ChapterTask)}

	var status string
	var started time.Time
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT status, started_at, finished_at FROM jobs WHERE job_id = ?`, jobID).
		Scan(&status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	job.Status = model.JobStatus(status)
	job.StartedAt = started
	if finished.Valid {
		job.FinishedAt = finished.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT abstraction_id, state, attempts, last_error FROM chapter_tasks WHERE job_id = ?`, jobID)
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

func (s *SQLiteStore) SaveTask(ctx context.Context, jobID string, task model.ChapterTask) error {
	return upsertTask(ctx, s.db, jobID, task)
}

func (s *SQLiteStore) SaveContent(ctx context.Context, jobID, abstractionID string, content model.ChapterContent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chapter_contents (job_id, abstraction_id, markdown) VALUES (?, ?, ?)
		 ON CONFLICT(job_id, abstraction_id) DO UPDATE SET markdown = excluded.markdown`,
		jobID, abstractionID, content.Markdown)
	if err != nil {
		return fmt.Errorf("saving content %s/%s: %w", jobID, abstractionID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadContent(ctx context.Context, jobID, abstractionID string) (model.ChapterContent, bool, error) {
	var markdown string
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown FROM chapter_contents WHERE job_id = ? AND abstraction_id = ?`,
		jobID, abstractionID).Scan(&markdown)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChapterContent{}, false, nil
	}
	if err != nil {
		return model.ChapterContent{}, false, err
	}
	return model.ChapterContent{Markdown: markdown}, true, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTask(ctx context.Context, db execer, jobID string, task model.ChapterTask) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO chapter_tasks (job_id, abstraction_id, state, attempts, last_error) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, abstraction_id) DO UPDATE SET
		   state = excluded.state, attempts = excluded.attempts, last_error = excluded.last_error`,
		jobID, task.AbstractionID, string(task.State), task.Attempts, task.LastError)
	if err != nil {
		return fmt.Errorf("saving task %s/%s: %w", jobID, task.AbstractionID, err)
	}
	return nil
}
