// Package memory provides process-local repositories for development and
// tests. Stored values are copied on the way in and out.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

type calculatorRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*entity.Calculator
}

// NewCalculatorRepository creates an in-memory calculator repository
func NewCalculatorRepository() repository.CalculatorRepository {
	return &calculatorRepo{items: make(map[uuid.UUID]*entity.Calculator)}
}

func (r *calculatorRepo) Create(_ context.Context, calc *entity.Calculator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[calc.ID]; ok {
		return apperror.Conflict("calculator %s already exists", calc.ID)
	}
	r.items[calc.ID] = CloneCalculator(calc)
	return nil
}

func (r *calculatorRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	calc, ok := r.items[id]
	if !ok {
		return nil, apperror.NotFound("calculator %s not found", id)
	}
	out := CloneCalculator(calc)
	sort.SliceStable(out.Fields, func(i, j int) bool { return out.Fields[i].DisplayOrder < out.Fields[j].DisplayOrder })
	sort.SliceStable(out.Formulas, func(i, j int) bool { return out.Formulas[i].ExecutionOrder < out.Formulas[j].ExecutionOrder })
	return out, nil
}

func (r *calculatorRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*entity.Calculator, error) {
	r.mu.RLock()
	owned := make([]*entity.Calculator, 0)
	for _, calc := range r.items {
		if calc.OwnerID == ownerID {
			owned = append(owned, CloneCalculator(calc))
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID.String() < owned[j].ID.String()
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return page(owned, limit, offset), nil
}

func (r *calculatorRepo) Update(_ context.Context, calc *entity.Calculator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[calc.ID]; !ok {
		return apperror.NotFound("calculator %s not found", calc.ID)
	}
	r.items[calc.ID] = CloneCalculator(calc)
	return nil
}

func (r *calculatorRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return apperror.NotFound("calculator %s not found", id)
	}
	delete(r.items, id)
	return nil
}

// CloneCalculator copies calc and its fields and formulas.
func CloneCalculator(calc *entity.Calculator) *entity.Calculator {
	out := *calc
	out.Fields = make([]*entity.Field, len(calc.Fields))
	for i, f := range calc.Fields {
		fc := *f
		out.Fields[i] = &fc
	}
	out.Formulas = make([]*entity.Formula, len(calc.Formulas))
	for i, fm := range calc.Formulas {
		fc := *fm
		if fm.DecimalPlaces != nil {
			places := *fm.DecimalPlaces
			fc.DecimalPlaces = &places
		}
		out.Formulas[i] = &fc
	}
	return &out
}

type batchJobRepo struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.BatchJob
}

// NewBatchJobRepository creates an in-memory batch job repository
func NewBatchJobRepository() repository.BatchJobRepository {
	return &batchJobRepo{jobs: make(map[uuid.UUID]*entity.BatchJob)}
}

func (r *batchJobRepo) Create(_ context.Context, job *entity.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *batchJobRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperror.NotFound("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (r *batchJobRepo) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	claimed := false
	err := r.update(id, func(job *entity.BatchJob) {
		if job.Status != entity.JobStatusPending {
			return
		}
		now := time.Now()
		job.Status = entity.JobStatusRunning
		job.StartedAt = &now
		claimed = true
	})
	return claimed, err
}

func (r *batchJobRepo) UpdateProgress(_ context.Context, id uuid.UUID, processed, failed int64) error {
	return r.update(id, func(job *entity.BatchJob) {
		job.ProcessedRecords += processed
		job.FailedRecords += failed
	})
}

func (r *batchJobRepo) Complete(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(job *entity.BatchJob) {
		now := time.Now()
		job.Status = entity.JobStatusCompleted
		job.FinishedAt = &now
	})
}

func (r *batchJobRepo) Fail(_ context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(id, func(job *entity.BatchJob) {
		now := time.Now()
		job.Status = entity.JobStatusFailed
		job.ErrorMessage = errorMsg
		job.FinishedAt = &now
	})
}

func (r *batchJobRepo) ListPending(_ context.Context, limit int) ([]*entity.BatchJob, error) {
	return r.list(limit, func(job *entity.BatchJob) bool { return job.Status == entity.JobStatusPending }, false), nil
}

func (r *batchJobRepo) ListRecent(_ context.Context, limit int) ([]*entity.BatchJob, error) {
	return r.list(limit, func(*entity.BatchJob) bool { return true }, true), nil
}

func (r *batchJobRepo) update(id uuid.UUID, fn func(job *entity.BatchJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return apperror.NotFound("job %s not found", id)
	}
	fn(job)
	return nil
}

func (r *batchJobRepo) list(limit int, keep func(*entity.BatchJob) bool, newestFirst bool) []*entity.BatchJob {
	r.mu.RLock()
	out := make([]*entity.BatchJob, 0)
	for _, job := range r.jobs {
		if keep(job) {
			copied := *job
			out = append(out, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, limit, 0)
}

type runRepo struct {
	mu   sync.RWMutex
	runs map[uuid.UUID][]*entity.CalculatorRun
}

// NewCalculatorRunRepository creates an in-memory run repository
func NewCalculatorRunRepository() repository.CalculatorRunRepository {
	return &runRepo{runs: make(map[uuid.UUID][]*entity.CalculatorRun)}
}

func (r *runRepo) CreateBatch(_ context.Context, runs []*entity.CalculatorRun) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range runs {
		copied := *run
		r.runs[run.JobID] = append(r.runs[run.JobID], &copied)
	}
	return int64(len(runs)), nil
}

func (r *runRepo) ListByJob(_ context.Context, jobID uuid.UUID, limit, offset int) ([]*entity.CalculatorRun, error) {
	r.mu.RLock()
	out := make([]*entity.CalculatorRun, 0, len(r.runs[jobID]))
	for _, run := range r.runs[jobID] {
		copied := *run
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
