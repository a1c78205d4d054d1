//go:build integration
// +build integration

package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/persistence"
	"github.com/abushana-oss/mithran-sub003/pkg/database"
)

// setupTestDB starts PostgreSQL in a container, applies migrations and
// returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "calculator_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/calculator_test?sslmode=disable", host, port.Port())
	require.NoError(t, database.MigrateUp(dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCalculatorRepository_RoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := persistence.NewCalculatorRepository(pool)

	places := 3
	cost := entity.NewFormula("Cost", "Net * 10", 0)
	cost.DecimalPlaces = &places
	cost.DisplayFormat = entity.DisplayCurrency
	now := time.Now().UTC().Truncate(time.Microsecond)
	calc := &entity.Calculator{
		ID:      uuid.New(),
		OwnerID: "user-1",
		Name:    "Chaining",
		Fields: []*entity.Field{
			entity.NewCalculatedField("Net", "Gross * 0.9", 0),
			entity.NewInputField("Gross", entity.FieldTypeNumber, "100", 0),
		},
		Formulas:  []*entity.Formula{cost},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, calc))

	got, err := repo.GetByID(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)
	// Equal display orders keep declared order.
	require.Equal(t, []string{"Net", "Gross"}, got.FieldNames())
	assert.Equal(t, entity.CalculatedKind{Expression: "Gross * 0.9"}, got.Fields[0].Kind)
	assert.Equal(t, entity.InputKind{DefaultValue: "100"}, got.Fields[1].Kind)
	require.Len(t, got.Formulas, 1)
	require.NotNil(t, got.Formulas[0].DecimalPlaces)
	assert.Equal(t, 3, *got.Formulas[0].DecimalPlaces)
	assert.Equal(t, entity.DisplayCurrency, got.Formulas[0].DisplayFormat)

	got.Name = "Renamed"
	got.Fields = got.Fields[1:]
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Name)
	assert.Equal(t, []string{"Gross"}, again.FieldNames())

	listed, err := repo.ListByOwner(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Formulas, 1)

	require.NoError(t, repo.Delete(ctx, calc.ID))
	_, err = repo.GetByID(ctx, calc.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCalculatorRepository_DuplicateFieldNameConflicts(t *testing.T) {
	pool := setupTestDB(t)
	repo := persistence.NewCalculatorRepository(pool)
	calc := &entity.Calculator{
		ID:      uuid.New(),
		OwnerID: "user-1",
		Name:    "Dup",
		Fields: []*entity.Field{
			entity.NewInputField("Qty", entity.FieldTypeNumber, "", 0),
			entity.NewInputField("Qty", entity.FieldTypeNumber, "", 1),
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repo.Create(context.Background(), calc)

	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestBatchJobAndRuns(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	calcs := persistence.NewCalculatorRepository(pool)
	jobs := persistence.NewBatchJobRepository(pool)
	runs := persistence.NewCalculatorRunRepository(pool)

	calc := &entity.Calculator{ID: uuid.New(), OwnerID: "user-1", Name: "Batch", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, calcs.Create(ctx, calc))

	job := &entity.BatchJob{
		ID:           uuid.New(),
		JobType:      entity.JobTypeBatchExecute,
		Status:       entity.JobStatusPending,
		CalculatorID: calc.ID,
		CallerID:     "user-1",
		Inputs:       []map[string]any{{"Qty": 1.0}, {"Qty": "2"}},
		TotalRecords: 2,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, jobs.Create(ctx, job))

	pending, err := jobs.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, job.Inputs, pending[0].Inputs)

	claimed, err := jobs.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = jobs.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	n, err := runs.CreateBatch(ctx, []*entity.CalculatorRun{
		{
			ID: uuid.New(), JobID: job.ID, CalculatorID: calc.ID, RowIndex: 1,
			InputValues: map[string]any{"Qty": "2"},
			Results:     map[string]entity.ItemResult{"x": {Error: "unbound error"}},
			ErrorCount:  1, CreatedAt: time.Now(),
		},
		{
			ID: uuid.New(), JobID: job.ID, CalculatorID: calc.ID, RowIndex: 0,
			InputValues: map[string]any{"Qty": 1.0},
			Results:     map[string]entity.ItemResult{"Total": {Value: 2.0}},
			CreatedAt:   time.Now(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, jobs.UpdateProgress(ctx, job.ID, 2, 1))
	require.NoError(t, jobs.Complete(ctx, job.ID))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, got.Status)
	assert.Equal(t, int64(2), got.ProcessedRecords)
	assert.NotNil(t, got.StartedAt)

	listed, err := runs.ListByJob(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 2.0, listed[0].Results["Total"].Value)
	assert.Equal(t, "unbound error", listed[1].Results["x"].Error)

	_, err = jobs.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
