package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/pkg/formula"
)

const tracerName = "calculator"

// Engine runs calculated fields and formulas of one calculator against one
// set of input values. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	parser *formula.Parser
	logger *zap.Logger
	tracer trace.Tracer
}

// NewEngine creates a new calculation engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		parser: formula.NewParser(),
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Parser exposes the evaluator used by the engine.
func (e *Engine) Parser() *formula.Parser {
	return e.parser
}

// Execute evaluates def against inputs. Per-item failures are recorded in the
// result and never abort the run; only a done ctx does.
func (e *Engine) Execute(ctx context.Context, def *entity.Calculator, inputs map[string]any) (*entity.ExecutionResult, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "calculator.execute", trace.WithAttributes(
		attribute.String("calculator.id", def.ID.String()),
		attribute.Int("calculator.fields", len(def.Fields)),
		attribute.Int("calculator.formulas", len(def.Formulas)),
	))
	defer span.End()

	names := def.FieldNames()
	for ident, raw := range formula.Collisions(names) {
		e.logger.Warn("field names normalize to the same identifier",
			zap.String("calculator_id", def.ID.String()),
			zap.String("identifier", ident),
			zap.Strings("names", raw),
		)
	}

	scope := make(map[string]any, len(inputs)+len(def.Fields)+len(def.Formulas))
	for k, v := range inputs {
		if v != nil {
			scope[k] = v
		}
	}

	for _, f := range def.Fields {
		if f.IsCalculated() {
			continue
		}
		if v, ok := inputValue(f, inputs); ok {
			scope[formula.Normalize(f.Name)] = v
		}
	}

	for name, fn := range e.parser.Functions() {
		scope[name] = fn
	}

	results := make(map[string]entity.ItemResult, 2*(len(def.Fields)+len(def.Formulas)))

	for _, f := range sortedCalculated(def.Fields) {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		expression := f.StoredValue()
		if strings.TrimSpace(expression) == "" {
			continue
		}
		expression = formula.RewriteBare(formula.RewriteBraced(expression), names)

		value, err := e.evaluate(ctx, "field", f.Name, expression, scope)
		if err != nil {
			results[f.ID.String()] = entity.ItemResult{Error: err.Error()}
			continue
		}
		scope[formula.Normalize(f.Name)] = value
		results[f.ID.String()] = entity.ItemResult{Value: value}
		results[f.Name] = entity.ItemResult{Value: value}
	}

	for _, fm := range sortedFormulas(def.Formulas) {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if strings.TrimSpace(fm.Expression) == "" {
			continue
		}

		value, err := e.evaluate(ctx, "formula", fm.Name, fm.Expression, scope)
		if err != nil {
			results[fm.ID.String()] = entity.ItemResult{Error: err.Error()}
			continue
		}
		scope[fm.Name] = value
		results[fm.ID.String()] = entity.ItemResult{Value: value}
		results[fm.Name] = entity.ItemResult{Value: value}
	}

	return &entity.ExecutionResult{
		Success:    true,
		Results:    results,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func (e *Engine) evaluate(ctx context.Context, itemType, name, expression string, scope map[string]any) (any, error) {
	_, span := e.tracer.Start(ctx, "calculator.evaluate", trace.WithAttributes(
		attribute.String("item.type", itemType),
		attribute.String("item.name", name),
	))
	defer span.End()

	value, err := e.parser.Evaluate(expression, scope)
	if err == nil {
		err = checkFinite(expression, value)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		itemErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		e.logger.Debug("item evaluation failed",
			zap.String("item_type", itemType),
			zap.String("item_name", name),
			zap.Error(err),
		)
		return nil, err
	}
	return value, nil
}

// checkFinite rejects NaN and ±Inf results. They cannot be serialized and
// must not be bound for later items.
func checkFinite(expression string, value any) error {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &formula.EvaluationError{
			Kind:       formula.KindRuntime,
			Expression: expression,
			Err:        fmt.Errorf("result is not a finite number (%v)", f),
		}
	}
	return nil
}

func errorKind(err error) string {
	var evalErr *formula.EvaluationError
	if errors.As(err, &evalErr) {
		return string(evalErr.Kind)
	}
	return "unknown"
}

// inputValue resolves an input field by id, then raw name, then default.
func inputValue(f *entity.Field, inputs map[string]any) (any, bool) {
	if v, ok := inputs[f.ID.String()]; ok && v != nil {
		return coerce(v), true
	}
	if v, ok := inputs[f.Name]; ok && v != nil {
		return coerce(v), true
	}
	if def := f.StoredValue(); def != "" {
		return coerce(def), true
	}
	return nil, false
}

// coerce turns numeric-looking strings into float64 and leaves everything
// else alone.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

func sortedCalculated(fields []*entity.Field) []*entity.Field {
	out := make([]*entity.Field, 0, len(fields))
	for _, f := range fields {
		if f.IsCalculated() {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

func sortedFormulas(formulas []*entity.Formula) []*entity.Formula {
	out := make([]*entity.Formula, len(formulas))
	copy(out, formulas)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionOrder < out[j].ExecutionOrder
	})
	return out
}
