package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

// calculatorRunRepo implements repository.CalculatorRunRepository
type calculatorRunRepo struct {
	pool *pgxpool.Pool
}

// NewCalculatorRunRepository creates a new calculator run repository
func NewCalculatorRunRepository(pool *pgxpool.Pool) repository.CalculatorRunRepository {
	return &calculatorRunRepo{pool: pool}
}

// CreateBatch uses PostgreSQL COPY protocol for high-performance bulk inserts
func (r *calculatorRunRepo) CreateBatch(ctx context.Context, runs []*entity.CalculatorRun) (int64, error) {
	if len(runs) == 0 {
		return 0, nil
	}

	columns := []string{"id", "job_id", "calculator_id", "row_index", "input_values", "results", "error_count", "duration_ms", "created_at"}
	rows := make([][]interface{}, len(runs))
	for i, run := range runs {
		inputValues, err := run.InputValuesJSON()
		if err != nil {
			return 0, fmt.Errorf("failed to encode input values: %w", err)
		}
		results, err := run.ResultsJSON()
		if err != nil {
			return 0, fmt.Errorf("failed to encode results: %w", err)
		}
		rows[i] = []interface{}{
			run.ID, run.JobID, run.CalculatorID, run.RowIndex, inputValues, results, run.ErrorCount, run.DurationMs, run.CreatedAt,
		}
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"calculator_runs"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy calculator runs: %w", err)
	}
	return copyCount, nil
}

func (r *calculatorRunRepo) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*entity.CalculatorRun, error) {
	query := `
		SELECT id, job_id, calculator_id, row_index, input_values, results, error_count, duration_ms, created_at
		FROM calculator_runs
		WHERE job_id = $1
		ORDER BY row_index
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*entity.CalculatorRun, 0)
	for rows.Next() {
		var run entity.CalculatorRun
		if err := rows.Scan(&run.ID, &run.JobID, &run.CalculatorID, &run.RowIndex, &run.InputValues, &run.Results, &run.ErrorCount, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
