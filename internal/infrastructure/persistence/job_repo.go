package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

const jobColumns = `id, job_type, status, calculator_id, caller_id, inputs, total_records, processed_records, failed_records, error_message, started_at, finished_at, created_at`

// batchJobRepo implements repository.BatchJobRepository
type batchJobRepo struct {
	pool *pgxpool.Pool
}

// NewBatchJobRepository creates a new batch job repository
func NewBatchJobRepository(pool *pgxpool.Pool) repository.BatchJobRepository {
	return &batchJobRepo{pool: pool}
}

func (r *batchJobRepo) Create(ctx context.Context, job *entity.BatchJob) error {
	query := `
		INSERT INTO batch_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	inputs, err := job.InputsJSON()
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	_, err = r.pool.Exec(ctx, query,
		job.ID, job.JobType, job.Status, job.CalculatorID, job.CallerID, inputs, job.TotalRecords, job.ProcessedRecords, job.FailedRecords, job.ErrorMessage, job.StartedAt, job.FinishedAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *batchJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs WHERE id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("job %s not found", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Claim relies on the status predicate so that only one worker wins.
func (r *batchJobRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE batch_jobs SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, id, entity.JobStatusRunning, time.Now(), entity.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *batchJobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int64) error {
	query := `
		UPDATE batch_jobs SET processed_records = processed_records + $2, failed_records = failed_records + $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, processed, failed)
	return err
}

func (r *batchJobRepo) Complete(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE batch_jobs SET status = $2, finished_at = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, entity.JobStatusCompleted, now)
	return err
}

func (r *batchJobRepo) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	now := time.Now()
	query := `
		UPDATE batch_jobs SET status = $2, error_message = $3, finished_at = $4
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, entity.JobStatusFailed, errorMsg, now)
	return err
}

func (r *batchJobRepo) ListPending(ctx context.Context, limit int) ([]*entity.BatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs WHERE status = $1 ORDER BY created_at LIMIT $2`
	return r.list(ctx, query, entity.JobStatusPending, limit)
}

func (r *batchJobRepo) ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM batch_jobs ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *batchJobRepo) list(ctx context.Context, query string, args ...interface{}) ([]*entity.BatchJob, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*entity.BatchJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*entity.BatchJob, error) {
	var job entity.BatchJob
	err := row.Scan(&job.ID, &job.JobType, &job.Status, &job.CalculatorID, &job.CallerID, &job.Inputs, &job.TotalRecords, &job.ProcessedRecords, &job.FailedRecords, &job.ErrorMessage, &job.StartedAt, &job.FinishedAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
