package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
)

// CalculatorRepository defines the interface for calculator definition operations
type CalculatorRepository interface {
	// Create stores a calculator with its fields and formulas
	Create(ctx context.Context, calc *entity.Calculator) error
	// GetByID retrieves a calculator with fields ordered by display_order and
	// formulas ordered by execution_order
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Calculator, error)
	// ListByOwner retrieves calculators owned by ownerID with pagination
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Calculator, error)
	// Update replaces a calculator's attributes, fields and formulas
	Update(ctx context.Context, calc *entity.Calculator) error
	// Delete deletes a calculator and everything it owns
	Delete(ctx context.Context, id uuid.UUID) error
}

// CalculatorCache caches calculator definitions read on the execute path
type CalculatorCache interface {
	// Get returns the cached definition, or ok=false on a miss
	Get(ctx context.Context, id uuid.UUID) (calc *entity.Calculator, ok bool, err error)
	// Set stores a definition
	Set(ctx context.Context, calc *entity.Calculator) error
	// Invalidate drops a definition
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// BatchJobRepository defines the interface for batch job operations
type BatchJobRepository interface {
	// Create creates a new batch job
	Create(ctx context.Context, job *entity.BatchJob) error
	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
	// Claim moves a pending job to running; ok is false when another worker
	// already claimed it
	Claim(ctx context.Context, id uuid.UUID) (ok bool, err error)
	// UpdateProgress updates a job's progress atomically
	UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int64) error
	// Complete marks a job as completed
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail marks a job as failed
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error
	// ListPending retrieves pending jobs, oldest first
	ListPending(ctx context.Context, limit int) ([]*entity.BatchJob, error)
	// ListRecent retrieves recent jobs
	ListRecent(ctx context.Context, limit int) ([]*entity.BatchJob, error)
}

// CalculatorRunRepository defines the interface for batch run results
type CalculatorRunRepository interface {
	// CreateBatch inserts multiple runs using COPY protocol
	CreateBatch(ctx context.Context, runs []*entity.CalculatorRun) (int64, error)
	// ListByJob retrieves runs of a job ordered by row index
	ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]*entity.CalculatorRun, error)
}
