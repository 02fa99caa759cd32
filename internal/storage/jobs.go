// Package storage implements the job and roster repositories on SQLite.
package storage

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/db"
	"coursesync/internal/job"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JobStore is the job log sink.
type JobStore struct {
	db *db.DB
}

// NewJobStore creates a job store.
func NewJobStore(d *db.DB) *JobStore {
	return &JobStore{db: d}
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, log, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Kind, j.Status, j.Log, j.CreatedBy, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	j := &job.Job{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, log, created_by, created_at, updated_at FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Kind, &j.Status, &j.Log, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// List returns up to limit jobs, newest first. Logs are omitted.
func (s *JobStore) List(ctx context.Context, limit int) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, created_by, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		var j job.Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.Status, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateLog replaces the job's log.
func (s *JobStore) UpdateLog(ctx context.Context, id, log string) error {
	return s.update(ctx, id, `UPDATE jobs SET log = ?, updated_at = ? WHERE id = ?`, log)
}

// UpdateStatus sets the job's status.
func (s *JobStore) UpdateStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, id, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status)
}

func (s *JobStore) update(ctx context.Context, id, query, value string) error {
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

var _ job.Store = (*JobStore)(nil)
