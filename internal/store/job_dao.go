package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// JobDAO persists job records. It implements queue.JobSink, so plugging it
// into the queue makes every terminal job durable.
type JobDAO struct {
	db *DB
}

// NewJobDAO creates a job DAO over the given database.
func NewJobDAO(db *DB) *JobDAO {
	return &JobDAO{db: db}
}

// SaveJob upserts the job record. The queue calls this during the saving
// phase and once more on terminal transitions, so the write must be
// idempotent per job id.
func (d *JobDAO) SaveJob(ctx context.Context, job *queue.Job) error {
	configJSON, err := marshalNullable(job.Config)
	if err != nil {
		return types.WrapError(ErrWriteFailed, "marshaling job config", err)
	}
	resultsJSON, err := marshalNullable(job.Results)
	if err != nil {
		return types.WrapError(ErrWriteFailed, "marshaling job results", err)
	}

	_, err = d.db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, engagement_id, job_type, status, attempts_made,
			config, results, error_message, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempts_made = excluded.attempts_made,
			results = excluded.results,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		job.ID, job.EngagementID, job.JobType, job.Status, job.AttemptsMade,
		configJSON, resultsJSON, job.ErrorMessage,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		return types.WrapError(ErrWriteFailed,
			fmt.Sprintf("saving job %s", job.ID), err)
	}
	return nil
}

// GetByID retrieves a persisted job. Results and config come back as raw
// JSON since the concrete result type depends on the job type.
func (d *JobDAO) GetByID(ctx context.Context, id types.ID) (*queue.Job, error) {
	row := d.db.conn.QueryRowContext(ctx, `
		SELECT id, engagement_id, job_type, status, attempts_made,
			config, results, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(ErrNotFound, fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(ErrQueryFailed, "reading job", err)
	}
	return job, nil
}

// ListByEngagement returns all persisted jobs for an engagement, newest
// first. An empty status lists every status.
func (d *JobDAO) ListByEngagement(ctx context.Context, engagementID string, status queue.JobStatus) ([]*queue.Job, error) {
	query := `
		SELECT id, engagement_id, job_type, status, attempts_made,
			config, results, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs WHERE engagement_id = ?`
	args := []any{engagementID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := d.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(ErrQueryFailed, "listing jobs", err)
	}
	defer rows.Close()

	var jobs []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, types.WrapError(ErrQueryFailed, "scanning job row", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(ErrQueryFailed, "iterating job rows", err)
	}
	return jobs, nil
}

// DeleteOlderThan removes terminal jobs whose completion predates the
// cutoff, mirroring the in-memory queue's retention sweep.
func (d *JobDAO) DeleteOlderThan(ctx context.Context, cutoff sql.NullTime) (int64, error) {
	res, err := d.db.conn.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'partial')
		AND completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, types.WrapError(ErrWriteFailed, "deleting expired jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*queue.Job, error) {
	var (
		job         queue.Job
		configJSON  sql.NullString
		resultsJSON sql.NullString
	)
	err := s.Scan(&job.ID, &job.EngagementID, &job.JobType, &job.Status,
		&job.AttemptsMade, &configJSON, &resultsJSON, &job.ErrorMessage,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &job.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling job config: %w", err)
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		var results any
		if err := json.Unmarshal([]byte(resultsJSON.String), &results); err != nil {
			return nil, fmt.Errorf("unmarshaling job results: %w", err)
		}
		job.Results = results
	}
	return &job, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
