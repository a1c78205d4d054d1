package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

const uniqueViolation = "23505"

// calculatorRepo implements repository.CalculatorRepository
type calculatorRepo struct {
	pool *pgxpool.Pool
}

// NewCalculatorRepository creates a new calculator repository
func NewCalculatorRepository(pool *pgxpool.Pool) repository.CalculatorRepository {
	return &calculatorRepo{pool: pool}
}

func (r *calculatorRepo) Create(ctx context.Context, calc *entity.Calculator) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO calculators (id, owner_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, query,
		calc.ID, calc.OwnerID, calc.Name, calc.Description, calc.CreatedAt, calc.UpdatedAt); err != nil {
		return mapWriteErr("calculator", err)
	}
	if err := copyChildren(ctx, tx, calc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *calculatorRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Calculator, error) {
	query := `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM calculators WHERE id = $1
	`
	var calc entity.Calculator
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&calc.ID, &calc.OwnerID, &calc.Name, &calc.Description, &calc.CreatedAt, &calc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("calculator %s not found", id)
		}
		return nil, fmt.Errorf("failed to get calculator: %w", err)
	}

	if calc.Fields, err = r.fields(ctx, id); err != nil {
		return nil, err
	}
	if calc.Formulas, err = r.formulas(ctx, id); err != nil {
		return nil, err
	}
	return &calc, nil
}

func (r *calculatorRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Calculator, error) {
	query := `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM calculators
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculators: %w", err)
	}
	defer rows.Close()

	calcs := make([]*entity.Calculator, 0)
	for rows.Next() {
		var calc entity.Calculator
		if err := rows.Scan(&calc.ID, &calc.OwnerID, &calc.Name, &calc.Description, &calc.CreatedAt, &calc.UpdatedAt); err != nil {
			return nil, err
		}
		calcs = append(calcs, &calc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Listing returns full definitions; owners rarely have many calculators.
	for _, calc := range calcs {
		if calc.Fields, err = r.fields(ctx, calc.ID); err != nil {
			return nil, err
		}
		if calc.Formulas, err = r.formulas(ctx, calc.ID); err != nil {
			return nil, err
		}
	}
	return calcs, nil
}

// Update rewrites the calculator row and replaces fields and formulas in one
// transaction.
func (r *calculatorRepo) Update(ctx context.Context, calc *entity.Calculator) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE calculators SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, calc.ID, calc.Name, calc.Description, calc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update calculator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("calculator %s not found", calc.ID)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM calculator_fields WHERE calculator_id = $1", calc.ID); err != nil {
		return fmt.Errorf("failed to delete fields: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM calculator_formulas WHERE calculator_id = $1", calc.ID); err != nil {
		return fmt.Errorf("failed to delete formulas: %w", err)
	}
	if err := copyChildren(ctx, tx, calc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *calculatorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM calculators WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete calculator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("calculator %s not found", id)
	}
	return nil
}

func (r *calculatorRepo) fields(ctx context.Context, calculatorID uuid.UUID) ([]*entity.Field, error) {
	query := `
		SELECT id, field_name, label, field_type, default_value, unit, display_order
		FROM calculator_fields
		WHERE calculator_id = $1
		ORDER BY display_order, position
	`
	rows, err := r.pool.Query(ctx, query, calculatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fields: %w", err)
	}
	defer rows.Close()

	fields := make([]*entity.Field, 0)
	for rows.Next() {
		var f entity.Field
		var stored string
		if err := rows.Scan(&f.ID, &f.Name, &f.Label, &f.Type, &stored, &f.Unit, &f.DisplayOrder); err != nil {
			return nil, err
		}
		f.SetStoredValue(stored)
		fields = append(fields, &f)
	}
	return fields, rows.Err()
}

func (r *calculatorRepo) formulas(ctx context.Context, calculatorID uuid.UUID) ([]*entity.Formula, error) {
	query := `
		SELECT id, formula_name, formula_expression, execution_order, description, display_format, decimal_places, unit
		FROM calculator_formulas
		WHERE calculator_id = $1
		ORDER BY execution_order, position
	`
	rows, err := r.pool.Query(ctx, query, calculatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get formulas: %w", err)
	}
	defer rows.Close()

	formulas := make([]*entity.Formula, 0)
	for rows.Next() {
		var fm entity.Formula
		if err := rows.Scan(&fm.ID, &fm.Name, &fm.Expression, &fm.ExecutionOrder, &fm.Description, &fm.DisplayFormat, &fm.DecimalPlaces, &fm.Unit); err != nil {
			return nil, err
		}
		formulas = append(formulas, &fm)
	}
	return formulas, rows.Err()
}

// copyChildren bulk inserts fields and formulas with the COPY protocol.
// position keeps declared order for equal display/execution orders.
func copyChildren(ctx context.Context, tx pgx.Tx, calc *entity.Calculator) error {
	if len(calc.Fields) > 0 {
		columns := []string{"id", "calculator_id", "field_name", "label", "field_type", "default_value", "unit", "display_order", "position"}
		rows := make([][]interface{}, len(calc.Fields))
		for i, f := range calc.Fields {
			rows[i] = []interface{}{
				f.ID, calc.ID, f.Name, f.Label, string(f.Type), f.StoredValue(), f.Unit, f.DisplayOrder, i,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"calculator_fields"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return mapWriteErr("field", err)
		}
	}

	if len(calc.Formulas) > 0 {
		columns := []string{"id", "calculator_id", "formula_name", "formula_expression", "execution_order", "description", "display_format", "decimal_places", "unit", "position"}
		rows := make([][]interface{}, len(calc.Formulas))
		for i, fm := range calc.Formulas {
			rows[i] = []interface{}{
				fm.ID, calc.ID, fm.Name, fm.Expression, fm.ExecutionOrder, fm.Description, string(fm.DisplayFormat), fm.DecimalPlaces, fm.Unit, i,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"calculator_formulas"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return mapWriteErr("formula", err)
		}
	}
	return nil
}

func mapWriteErr(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperror.Conflict("%s already exists: %s", what, pgErr.Detail)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}
