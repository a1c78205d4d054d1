package calculator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
	"github.com/abushana-oss/mithran-sub003/pkg/formula"
)

// JobPublisher announces newly created batch jobs to workers.
type JobPublisher interface {
	PublishBatchRequested(ctx context.Context, jobID uuid.UUID) error
}

// Options tunes the service.
type Options struct {
	EvalTimeout         time.Duration
	MaxExpressionLength int
	MaxBatchRows        int
}

// ExecutionOutput is an execution result plus display strings for formulas.
type ExecutionOutput struct {
	entity.ExecutionResult
	Formatted map[string]string `json:"formatted,omitempty"`
}

// Service is the request boundary around the engine: it loads and authorizes
// definitions and manages their lifecycle.
type Service struct {
	repo      repository.CalculatorRepository
	cache     repository.CalculatorCache
	jobs      repository.BatchJobRepository
	runs      repository.CalculatorRunRepository
	publisher JobPublisher
	engine    *Engine
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options
}

// NewService creates a new calculator service. cache, jobs, runs and
// publisher may be nil; batch operations then fail with Internal.
func NewService(
	repo repository.CalculatorRepository,
	cache repository.CalculatorCache,
	jobs repository.BatchJobRepository,
	runs repository.CalculatorRunRepository,
	publisher JobPublisher,
	engine *Engine,
	logger *zap.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBatchRows <= 0 {
		opts.MaxBatchRows = 10000
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		jobs:      jobs,
		runs:      runs,
		publisher: publisher,
		engine:    engine,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		opts:      opts,
	}
}

// Execute runs calculator id with req on behalf of callerID.
func (s *Service) Execute(ctx context.Context, id uuid.UUID, req entity.ExecutionRequest, callerID string) (*ExecutionOutput, error) {
	ctx, span := s.tracer.Start(ctx, "calculator.service.execute", trace.WithAttributes(
		attribute.String("calculator.id", id.String()),
	))
	defer span.End()

	if req.InputValues == nil {
		executionsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.InvalidRequest("input_values is required")
	}
	if err := validateInputs(req.InputValues); err != nil {
		executionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	calc, err := s.authorized(ctx, id, callerID)
	if err != nil {
		executionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if s.opts.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EvalTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.engine.Execute(ctx, calc, req.InputValues)
	executionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		executionsTotal.WithLabelValues("aborted").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &apperror.Error{Kind: apperror.KindInvalidRequest, Message: "evaluation exceeded time budget", Err: err}
		}
		return nil, apperror.Internal("execution aborted", err)
	}

	status := "success"
	if result.ErrorCount() > 0 {
		status = "partial"
	}
	executionsTotal.WithLabelValues(status).Inc()

	s.logger.Info("calculator executed",
		zap.String("calculator_id", id.String()),
		zap.String("caller_id", callerID),
		zap.Int("item_errors", result.ErrorCount()),
		zap.Float64("duration_ms", result.DurationMs),
	)

	return &ExecutionOutput{
		ExecutionResult: *result,
		Formatted:       FormatResults(calc, result.Results),
	}, nil
}

// Create validates and stores a new calculator owned by callerID.
func (s *Service) Create(ctx context.Context, calc *entity.Calculator, callerID string) (*entity.Calculator, error) {
	if callerID == "" {
		return nil, apperror.Unauthorized("caller identity required")
	}
	now := time.Now().UTC()
	calc.ID = uuid.New()
	calc.OwnerID = callerID
	calc.CreatedAt = now
	calc.UpdatedAt = now
	assignIDs(calc)

	if err := ValidateDefinition(s.engine.Parser(), calc, s.opts.MaxExpressionLength); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, calc); err != nil {
		return nil, wrapRepoErr("create calculator", err)
	}

	s.logger.Info("calculator created",
		zap.String("calculator_id", calc.ID.String()),
		zap.String("owner_id", callerID),
		zap.Int("fields", len(calc.Fields)),
		zap.Int("formulas", len(calc.Formulas)),
	)
	return calc, nil
}

// Get returns calculator id if callerID owns it.
func (s *Service) Get(ctx context.Context, id uuid.UUID, callerID string) (*entity.Calculator, error) {
	return s.authorized(ctx, id, callerID)
}

// List returns calculators owned by callerID.
func (s *Service) List(ctx context.Context, callerID string, limit, offset int) ([]*entity.Calculator, error) {
	if callerID == "" {
		return nil, apperror.Unauthorized("caller identity required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	calcs, err := s.repo.ListByOwner(ctx, callerID, limit, offset)
	if err != nil {
		return nil, wrapRepoErr("list calculators", err)
	}
	return calcs, nil
}

// Update replaces the definition of calculator id.
func (s *Service) Update(ctx context.Context, id uuid.UUID, calc *entity.Calculator, callerID string) (*entity.Calculator, error) {
	existing, err := s.loadOwned(ctx, id, callerID)
	if err != nil {
		return nil, err
	}

	calc.ID = existing.ID
	calc.OwnerID = existing.OwnerID
	calc.CreatedAt = existing.CreatedAt
	calc.UpdatedAt = time.Now().UTC()
	assignIDs(calc)

	if err := ValidateDefinition(s.engine.Parser(), calc, s.opts.MaxExpressionLength); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, calc); err != nil {
		return nil, wrapRepoErr("update calculator", err)
	}
	s.invalidate(ctx, id)
	return calc, nil
}

// Delete removes calculator id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, callerID string) error {
	if _, err := s.loadOwned(ctx, id, callerID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapRepoErr("delete calculator", err)
	}
	s.invalidate(ctx, id)
	return nil
}

// SubmitBatch creates a pending batch job running calculator id over inputs
// and announces it to workers.
func (s *Service) SubmitBatch(ctx context.Context, id uuid.UUID, inputs []map[string]any, callerID string) (*entity.BatchJob, error) {
	if s.jobs == nil {
		return nil, apperror.Internal("batch execution is not configured", nil)
	}
	if len(inputs) == 0 {
		return nil, apperror.InvalidRequest("inputs cannot be empty")
	}
	if len(inputs) > s.opts.MaxBatchRows {
		return nil, apperror.InvalidRequest("batch has %d rows, maximum allowed is %d", len(inputs), s.opts.MaxBatchRows)
	}
	for i, in := range inputs {
		if in == nil {
			return nil, apperror.InvalidRequest("inputs[%d] is null", i)
		}
		if err := validateInputs(in); err != nil {
			return nil, apperror.InvalidRequest("inputs[%d]: %v", i, err)
		}
	}
	if _, err := s.authorized(ctx, id, callerID); err != nil {
		return nil, err
	}

	job := &entity.BatchJob{
		ID:           uuid.New(),
		JobType:      entity.JobTypeBatchExecute,
		Status:       entity.JobStatusPending,
		CalculatorID: id,
		CallerID:     callerID,
		Inputs:       inputs,
		TotalRecords: int64(len(inputs)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, wrapRepoErr("create batch job", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishBatchRequested(ctx, job.ID); err != nil {
			// Workers also poll for pending jobs.
			s.logger.Warn("failed to announce batch job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("batch job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("calculator_id", id.String()),
		zap.Int64("rows", job.TotalRecords),
	)
	return job, nil
}

// GetJob returns a batch job submitted by callerID.
func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID, callerID string) (*entity.BatchJob, error) {
	if s.jobs == nil {
		return nil, apperror.Internal("batch execution is not configured", nil)
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, wrapRepoErr("get batch job", err)
	}
	if job.CallerID != callerID {
		return nil, apperror.Unauthorized("job %s is not accessible to caller", jobID)
	}
	return job, nil
}

// ListRuns returns the per-row results of a batch job.
func (s *Service) ListRuns(ctx context.Context, jobID uuid.UUID, callerID string, limit, offset int) ([]*entity.CalculatorRun, error) {
	if _, err := s.GetJob(ctx, jobID, callerID); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return nil, apperror.Internal("batch execution is not configured", nil)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	runs, err := s.runs.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		return nil, wrapRepoErr("list runs", err)
	}
	return runs, nil
}

// authorized loads a definition through the cache and checks ownership.
func (s *Service) authorized(ctx context.Context, id uuid.UUID, callerID string) (*entity.Calculator, error) {
	calc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == "" || calc.OwnerID != callerID {
		return nil, apperror.Unauthorized("calculator %s is not accessible to caller", id)
	}
	return calc, nil
}

// loadOwned bypasses the cache; writes must see the stored definition.
func (s *Service) loadOwned(ctx context.Context, id uuid.UUID, callerID string) (*entity.Calculator, error) {
	calc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr("get calculator", err)
	}
	if callerID == "" || calc.OwnerID != callerID {
		return nil, apperror.Unauthorized("calculator %s is not accessible to caller", id)
	}
	return calc, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*entity.Calculator, error) {
	if s.cache != nil {
		calc, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("calculator cache read failed", zap.String("calculator_id", id.String()), zap.Error(err))
		} else if ok {
			return calc, nil
		}
	}

	calc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr("get calculator", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, calc); err != nil {
			s.logger.Warn("calculator cache write failed", zap.String("calculator_id", id.String()), zap.Error(err))
		}
	}
	return calc, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("calculator cache invalidation failed", zap.String("calculator_id", id.String()), zap.Error(err))
	}
}

func assignIDs(calc *entity.Calculator) {
	for _, f := range calc.Fields {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.Type == "" {
			f.Type = entity.FieldTypeNumber
		}
		if f.Kind == nil {
			f.SetStoredValue("")
		}
	}
	for _, fm := range calc.Formulas {
		if fm.ID == uuid.Nil {
			fm.ID = uuid.New()
		}
	}
}

// validateInputs accepts scalar values only.
func validateInputs(inputs map[string]any) error {
	for key, v := range inputs {
		switch v.(type) {
		case nil, bool, string:
			continue
		}
		if _, ok := formula.ToFloat(v); ok {
			continue
		}
		return apperror.InvalidRequest("input %q must be a scalar value, got %T", key, v)
	}
	return nil
}

func wrapRepoErr(op string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(op, err)
}
