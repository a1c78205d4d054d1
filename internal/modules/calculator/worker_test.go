package calculator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/memory"
)

type batchFixture struct {
	runner *BatchRunner
	calcs  repository.CalculatorRepository
	jobs   repository.BatchJobRepository
	runs   repository.CalculatorRunRepository
	calc   *entity.Calculator
}

func newBatchFixture(t *testing.T, workers, batchSize int) *batchFixture {
	t.Helper()
	f := &batchFixture{
		calcs: memory.NewCalculatorRepository(),
		jobs:  memory.NewBatchJobRepository(),
		runs:  memory.NewCalculatorRunRepository(),
		calc: &entity.Calculator{
			ID:      uuid.New(),
			OwnerID: "user-1",
			Name:    "Batch",
			Fields: []*entity.Field{
				entity.NewInputField("Qty", entity.FieldTypeNumber, "1", 0),
				entity.NewCalculatedField("Doubled", "Qty * 2", 1),
			},
			Formulas: []*entity.Formula{
				entity.NewFormula("Ratio", "100 / Qty", 0),
				entity.NewFormula("Label", `Qty > 5 ? "big" : "small"`, 1),
			},
		},
	}
	require.NoError(t, f.calcs.Create(context.Background(), f.calc))
	f.runner = NewBatchRunner(NewEngine(zap.NewNop()), f.calcs, f.jobs, f.runs, zap.NewNop(), workers, batchSize)
	return f
}

func (f *batchFixture) submit(t *testing.T, inputs []map[string]any) uuid.UUID {
	t.Helper()
	job := &entity.BatchJob{
		ID:           uuid.New(),
		JobType:      entity.JobTypeBatchExecute,
		Status:       entity.JobStatusPending,
		CalculatorID: f.calc.ID,
		CallerID:     "user-1",
		Inputs:       inputs,
		TotalRecords: int64(len(inputs)),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job.ID
}

func TestBatchRunner_PersistsOneRunPerRow(t *testing.T) {
	f := newBatchFixture(t, 4, 3)
	inputs := make([]map[string]any, 10)
	for i := range inputs {
		inputs[i] = map[string]any{"Qty": float64(i + 1)}
	}
	jobID := f.submit(t, inputs)

	require.NoError(t, f.runner.Run(context.Background(), jobID))

	job, err := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(10), job.ProcessedRecords)
	assert.Zero(t, job.FailedRecords)
	assert.InDelta(t, 100.0, job.Progress(), 1e-9)

	runs, err := f.runs.ListByJob(context.Background(), jobID, 100, 0)
	require.NoError(t, err)
	require.Len(t, runs, 10)
	for i, run := range runs {
		assert.Equal(t, i, run.RowIndex)
		assert.Equal(t, float64(i+1)*2, run.Results["Doubled"].Value)
	}
	assert.Equal(t, "small", runs[0].Results["Label"].Value)
	assert.Equal(t, "big", runs[9].Results["Label"].Value)
}

func TestBatchRunner_RowsWithItemErrorsCountAsFailed(t *testing.T) {
	f := newBatchFixture(t, 2, 10)
	jobID := f.submit(t, []map[string]any{
		{"Qty": 4.0},
		{"Qty": "not a number"},
	})

	require.NoError(t, f.runner.Run(context.Background(), jobID))

	job, err := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(2), job.ProcessedRecords)
	assert.Equal(t, int64(1), job.FailedRecords)

	runs, err := f.runs.ListByJob(context.Background(), jobID, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Zero(t, runs[0].ErrorCount)
	assert.Positive(t, runs[1].ErrorCount)
}

func TestBatchRunner_SkipsClaimedJob(t *testing.T) {
	f := newBatchFixture(t, 1, 1)
	jobID := f.submit(t, []map[string]any{{"Qty": 1.0}})

	require.NoError(t, f.runner.Run(context.Background(), jobID))
	require.NoError(t, f.runner.Run(context.Background(), jobID))

	runs, err := f.runs.ListByJob(context.Background(), jobID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestBatchRunner_MissingCalculatorFailsJob(t *testing.T) {
	f := newBatchFixture(t, 1, 1)
	jobID := f.submit(t, []map[string]any{{}})
	require.NoError(t, f.calcs.Delete(context.Background(), f.calc.ID))

	err := f.runner.Run(context.Background(), jobID)

	require.Error(t, err)
	job, err := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "not found")
}

func TestBatchRunner_CancelledContextFailsJob(t *testing.T) {
	f := newBatchFixture(t, 1, 1)
	jobID := f.submit(t, []map[string]any{{}, {}, {}})
	ctx, cancel := context.WithCancel(context.Background())
	f.runner.jobRepo = &cancellingJobRepo{BatchJobRepository: f.jobs, cancel: cancel}

	err := f.runner.Run(ctx, jobID)

	assert.ErrorIs(t, err, context.Canceled)
	job, err := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
}

func TestBatchRunner_RunPending(t *testing.T) {
	f := newBatchFixture(t, 2, 5)
	first := f.submit(t, []map[string]any{{"Qty": 1.0}})
	second := f.submit(t, []map[string]any{{"Qty": 2.0}, {"Qty": 3.0}})

	ran, err := f.runner.RunPending(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 2, ran)
	for _, id := range []uuid.UUID{first, second} {
		job, err := f.jobs.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entity.JobStatusCompleted, job.Status)
	}
}

// cancellingJobRepo cancels the run right after the job is claimed.
type cancellingJobRepo struct {
	repository.BatchJobRepository
	cancel context.CancelFunc
}

func (r *cancellingJobRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := r.BatchJobRepository.Claim(ctx, id)
	r.cancel()
	return ok, err
}

func TestBatchRunner_PollRunsPendingUntilCancelled(t *testing.T) {
	f := newBatchFixture(t, 2, 10)
	jobID := f.submit(t, []map[string]any{{"Qty": 2.0}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.runner.Poll(ctx, 10*time.Millisecond, 5) }()

	require.Eventually(t, func() bool {
		job, err := f.jobs.GetByID(context.Background(), jobID)
		return err == nil && job.Status == entity.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
}
