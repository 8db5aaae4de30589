package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveModel upserts a scoring model and replaces its variable set.
// Variable order is preserved.
func (r *SQLRepository) SaveModel(ctx context.Context, tenantID string, model *domain.ScoringModel) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if model == nil || model.ID == "" {
		return fmt.Errorf("%w: model ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	model.TenantID = tenantID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO scoring_models (
			id, tenant_id, name, description, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		model.ID, tenantID, model.Name, model.Description, boolToInt(model.Active),
		model.CreatedAt, model.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save model %s: %w", model.ID, err)
	}

	if err := r.replaceVariables(ctx, tx, tenantID, model.ID, model.Variables); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLRepository) replaceVariables(ctx context.Context, tx execer, tenantID, modelID string, vars []domain.Variable) error {
	del := `DELETE FROM model_variables WHERE tenant_id = ? AND model_id = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(del), tenantID, modelID); err != nil {
		return fmt.Errorf("failed to clear variables of model %s: %w", modelID, err)
	}

	ins := r.rebind(`
		INSERT INTO model_variables (
			tenant_id, model_id, position, id, name, weight,
			min_value, max_value, favorable_direction, blocking, unit, var_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, v := range vars {
		if _, err := tx.ExecContext(ctx, ins,
			tenantID, modelID, i, v.ID, v.Name, v.Weight,
			v.Min, v.Max, string(v.FavorableDirection), boolToInt(v.Blocking), v.Unit, v.Type,
		); err != nil {
			return fmt.Errorf("failed to save variable %s of model %s: %w", v.ID, modelID, err)
		}
	}
	return nil
}

// GetModel retrieves a scoring model and its variables with tenant isolation.
func (r *SQLRepository) GetModel(ctx context.Context, tenantID string, modelID string) (*domain.ScoringModel, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, active, created_at, updated_at
		FROM scoring_models
		WHERE tenant_id = ? AND id = ?
	`

	m, err := scanModel(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, modelID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	vars, err := r.loadVariables(ctx, tenantID, m.ID)
	if err != nil {
		return nil, err
	}
	m.Variables = vars

	return m, nil
}

// ListModels retrieves all scoring models of a tenant, ordered by name.
func (r *SQLRepository) ListModels(ctx context.Context, tenantID string) ([]*domain.ScoringModel, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, active, created_at, updated_at
		FROM scoring_models
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}

	var models []*domain.ScoringModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, m := range models {
		vars, err := r.loadVariables(ctx, tenantID, m.ID)
		if err != nil {
			return nil, err
		}
		m.Variables = vars
	}

	return models, nil
}

// DeleteModel removes a scoring model and its variables.
func (r *SQLRepository) DeleteModel(ctx context.Context, tenantID string, modelID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM scoring_models WHERE tenant_id = ? AND id = ?`), tenantID, modelID)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM model_variables WHERE tenant_id = ? AND model_id = ?`), tenantID, modelID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLRepository) loadVariables(ctx context.Context, tenantID, modelID string) ([]domain.Variable, error) {
	query := `
		SELECT id, name, weight, min_value, max_value, favorable_direction, blocking, unit, var_type
		FROM model_variables
		WHERE tenant_id = ? AND model_id = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables of model %s: %w", modelID, err)
	}
	defer rows.Close()

	vars := make([]domain.Variable, 0)
	for rows.Next() {
		var v domain.Variable
		var direction string
		var blocking int
		var unit, varType sql.NullString

		if err := rows.Scan(
			&v.ID, &v.Name, &v.Weight, &v.Min, &v.Max,
			&direction, &blocking, &unit, &varType,
		); err != nil {
			return nil, err
		}

		v.FavorableDirection = domain.ParseDirection(direction)
		v.Blocking = blocking == 1
		v.Unit = unit.String
		v.Type = varType.String
		vars = append(vars, v)
	}

	return vars, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*domain.ScoringModel, error) {
	var m domain.ScoringModel
	var description sql.NullString
	var active int

	if err := row.Scan(
		&m.ID, &m.TenantID, &m.Name, &description, &active,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Description = description.String
	m.Active = active == 1
	return &m, nil
}
