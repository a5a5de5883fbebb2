package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/deface/internal/store"
)

// JobRepository provides PostgreSQL-backed job history.
type JobRepository struct {
	pool *Pool
}

// NewJobRepository creates a new PostgreSQL job repository.
func NewJobRepository(pool *Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// CreateJob inserts a new job record. CreatedAt and UpdatedAt are assigned
// by the database.
func (r *JobRepository) CreateJob(ctx context.Context, job *store.JobRecord) error {
	query := `
		INSERT INTO jobs (id, video_path, target_dir, output_path, preset, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		job.ID, job.VideoPath, job.TargetDir, job.OutputPath, job.Preset, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job to a new status, recording the error message
// for failed jobs.
func (r *JobRepository) UpdateJobStatus(ctx context.Context, id string, status store.JobStatus, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1",
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// SaveJobStats attaches the JSON-encoded run statistics to a job.
func (r *JobRepository) SaveJobStats(ctx context.Context, id string, stats []byte) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET stats = $2, updated_at = NOW() WHERE id = $1",
		id, stats,
	)
	if err != nil {
		return fmt.Errorf("save job stats: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id, returns nil if not found.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*store.JobRecord, error) {
	query := `
		SELECT id, video_path, target_dir, output_path, preset, status, error, stats, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	var job store.JobRecord
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.VideoPath, &job.TargetDir, &job.OutputPath, &job.Preset,
		&job.Status, &job.Error, &job.Stats, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return &job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (r *JobRepository) ListJobs(ctx context.Context, limit int) ([]store.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, video_path, target_dir, output_path, preset, status, error, stats, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.JobRecord
	for rows.Next() {
		var job store.JobRecord
		if err := rows.Scan(
			&job.ID, &job.VideoPath, &job.TargetDir, &job.OutputPath, &job.Preset,
			&job.Status, &job.Error, &job.Stats, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
