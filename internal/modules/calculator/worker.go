package calculator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

// BatchRunner runs one calculator over every input set of a batch job using
// a pool of workers. The definition is loaded once and shared read-only;
// every row gets its own scope.
type BatchRunner struct {
	engine      *Engine
	calcRepo    repository.CalculatorRepository
	jobRepo     repository.BatchJobRepository
	runRepo     repository.CalculatorRunRepository
	logger      *zap.Logger
	workerCount int
	batchSize   int
}

// NewBatchRunner creates a new batch runner
func NewBatchRunner(
	engine *Engine,
	calcRepo repository.CalculatorRepository,
	jobRepo repository.BatchJobRepository,
	runRepo repository.CalculatorRunRepository,
	logger *zap.Logger,
	workerCount, batchSize int,
) *BatchRunner {
	if workerCount <= 0 {
		workerCount = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{
		engine:      engine,
		calcRepo:    calcRepo,
		jobRepo:     jobRepo,
		runRepo:     runRepo,
		logger:      logger,
		workerCount: workerCount,
		batchSize:   batchSize,
	}
}

type batchRow struct {
	index  int
	inputs map[string]any
}

// Run executes job jobID. A job that is no longer pending is skipped, so the
// same job may be delivered more than once.
func (br *BatchRunner) Run(ctx context.Context, jobID uuid.UUID) error {
	claimed, err := br.jobRepo.Claim(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		br.logger.Debug("batch job already claimed", zap.String("job_id", jobID.String()))
		return nil
	}

	job, err := br.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	calc, err := br.calcRepo.GetByID(ctx, job.CalculatorID)
	if err != nil {
		br.fail(jobID, fmt.Sprintf("failed to load calculator: %v", err))
		return fmt.Errorf("failed to load calculator: %w", err)
	}

	start := time.Now()
	rowChan := make(chan batchRow, br.batchSize*2)
	resultChan := make(chan *entity.CalculatorRun, br.batchSize*2)

	var processedCount int64
	var failedCount int64

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < br.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for row := range rowChan {
				result, err := br.engine.Execute(ctx, calc, row.inputs)
				if err != nil {
					br.logger.Warn("batch row aborted",
						zap.Int("worker", workerID),
						zap.Int("row", row.index),
						zap.Error(err),
					)
					batchRowsTotal.WithLabelValues("aborted").Inc()
					atomic.AddInt64(&failedCount, 1)
					continue
				}
				resultChan <- &entity.CalculatorRun{
					ID:           uuid.New(),
					JobID:        jobID,
					CalculatorID: calc.ID,
					RowIndex:     row.index,
					InputValues:  row.inputs,
					Results:      result.Results,
					ErrorCount:   result.ErrorCount(),
					DurationMs:   result.DurationMs,
					CreatedAt:    time.Now().UTC(),
				}
			}
		}(i)
	}

	// Start result collector
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		buffer := make([]*entity.CalculatorRun, 0, br.batchSize)
		for run := range resultChan {
			buffer = append(buffer, run)
			if len(buffer) >= br.batchSize {
				br.flush(ctx, jobID, buffer, &processedCount, &failedCount)
				buffer = buffer[:0]
			}
		}
		if len(buffer) > 0 {
			br.flush(ctx, jobID, buffer, &processedCount, &failedCount)
		}
	}()

	// Dispatcher
	go func() {
		defer close(rowChan)
		for i, inputs := range job.Inputs {
			select {
			case <-ctx.Done():
				return
			case rowChan <- batchRow{index: i, inputs: inputs}:
			}
		}
	}()

	wg.Wait()
	close(resultChan)
	collectorWg.Wait()

	if err := ctx.Err(); err != nil {
		br.fail(jobID, "cancelled: "+err.Error())
		return err
	}
	if err := br.jobRepo.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	br.logger.Info("batch job complete",
		zap.String("job_id", jobID.String()),
		zap.String("calculator_id", calc.ID.String()),
		zap.Int64("processed", atomic.LoadInt64(&processedCount)),
		zap.Int64("failed", atomic.LoadInt64(&failedCount)),
		zap.Int("total", len(job.Inputs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// RunPending claims and runs up to limit pending jobs, oldest first.
func (br *BatchRunner) RunPending(ctx context.Context, limit int) (int, error) {
	jobs, err := br.jobRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	ran := 0
	for _, job := range jobs {
		if err := br.Run(ctx, job.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return ran, err
			}
			br.logger.Error("batch job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		ran++
	}
	return ran, nil
}

// Poll runs pending jobs every interval until ctx is done.
func (br *BatchRunner) Poll(ctx context.Context, interval time.Duration, limit int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ran, err := br.RunPending(ctx, limit)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				br.logger.Error("failed to run pending jobs", zap.Error(err))
				continue
			}
			if ran > 0 {
				br.logger.Info("pending jobs processed", zap.Int("jobs", ran))
			}
		}
	}
}

// flush persists runs and records progress. Rows with item errors still
// count as processed; they are additionally counted as failed.
func (br *BatchRunner) flush(ctx context.Context, jobID uuid.UUID, runs []*entity.CalculatorRun, processed, failed *int64) {
	var partial int64
	for _, run := range runs {
		if run.ErrorCount > 0 {
			partial++
		}
	}

	if _, err := br.runRepo.CreateBatch(ctx, runs); err != nil {
		br.logger.Error("failed to persist batch runs", zap.String("job_id", jobID.String()), zap.Int("rows", len(runs)), zap.Error(err))
		batchRowsTotal.WithLabelValues("aborted").Add(float64(len(runs)))
		atomic.AddInt64(failed, int64(len(runs)))
		if err := br.jobRepo.UpdateProgress(ctx, jobID, 0, int64(len(runs))); err != nil {
			br.logger.Warn("failed to update job progress", zap.String("job_id", jobID.String()), zap.Error(err))
		}
		return
	}

	batchRowsTotal.WithLabelValues("ok").Add(float64(int64(len(runs)) - partial))
	batchRowsTotal.WithLabelValues("partial").Add(float64(partial))
	atomic.AddInt64(processed, int64(len(runs)))
	atomic.AddInt64(failed, partial)
	if err := br.jobRepo.UpdateProgress(ctx, jobID, int64(len(runs)), partial); err != nil {
		br.logger.Warn("failed to update job progress", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// fail records a terminal failure even when ctx is already done.
func (br *BatchRunner) fail(jobID uuid.UUID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := br.jobRepo.Fail(ctx, jobID, msg); err != nil {
		br.logger.Error("failed to mark job failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}
