package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveSimulation stores a simulation with tenant isolation.
func (r *SQLRepository) SaveSimulation(ctx context.Context, tenantID string, sim *domain.Simulation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if sim == nil || sim.ID == "" || sim.Result == nil {
		return fmt.Errorf("%w: simulation ID and result are required", ErrInvalidInput)
	}

	values, err := json.Marshal(sim.Values)
	if err != nil {
		return fmt.Errorf("failed to encode simulation values: %w", err)
	}
	result, err := json.Marshal(sim.Result)
	if err != nil {
		return fmt.Errorf("failed to encode simulation result: %w", err)
	}
	metadata, _ := json.Marshal(sim.Metadata)

	query := `
		INSERT INTO simulations (
			id, tenant_id, product_id, model_id, applicant_id,
			score, status, classification, recommendation, recommendation_reason,
			applicant_values, result, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		sim.ID, tenantID, sim.ProductID, sim.ModelID, sim.ApplicantID,
		sim.Result.ScoreFinal, string(sim.Result.Status), string(sim.Result.Classification),
		sim.Recommendation, sim.RecommendationReason,
		string(values), string(result), string(metadata), sim.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation %s: %w", sim.ID, err)
	}
	return nil
}

// GetSimulation retrieves a simulation by ID with tenant isolation.
func (r *SQLRepository) GetSimulation(ctx context.Context, tenantID string, simID string) (*domain.Simulation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, product_id, model_id, applicant_id,
			   recommendation, recommendation_reason, applicant_values, result, metadata, created_at
		FROM simulations
		WHERE tenant_id = ? AND id = ?
	`

	sim, err := scanSimulation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, simID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sim, nil
}

// ListSimulations retrieves the newest simulations of a tenant.
func (r *SQLRepository) ListSimulations(ctx context.Context, tenantID string, filter domain.SimulationFilter) ([]*domain.Simulation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, tenant_id, product_id, model_id, applicant_id,
			   recommendation, recommendation_reason, applicant_values, result, metadata, created_at
		FROM simulations
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if filter.ProductID != "" {
		query += " AND product_id = ?"
		args = append(args, filter.ProductID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []*domain.Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
	}

	return sims, rows.Err()
}

// ListSimulationScores returns the final scores of a tenant's simulations,
// restricted to one product when productID is set.
func (r *SQLRepository) ListSimulationScores(ctx context.Context, tenantID string, productID string) ([]float64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT score FROM simulations WHERE tenant_id = ?`
	args := []any{tenantID}
	if productID != "" {
		query += " AND product_id = ?"
		args = append(args, productID)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make([]float64, 0)
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}

	return scores, rows.Err()
}

func scanSimulation(row rowScanner) (*domain.Simulation, error) {
	var sim domain.Simulation
	var productID, applicantID, reason sql.NullString
	var values, result, metadata string

	if err := row.Scan(
		&sim.ID, &sim.TenantID, &productID, &sim.ModelID, &applicantID,
		&sim.Recommendation, &reason, &values, &result, &metadata, &sim.CreatedAt,
	); err != nil {
		return nil, err
	}

	sim.ProductID = productID.String
	sim.ApplicantID = applicantID.String
	sim.RecommendationReason = reason.String

	if err := json.Unmarshal([]byte(values), &sim.Values); err != nil {
		return nil, fmt.Errorf("failed to parse values of simulation %s: %w", sim.ID, err)
	}
	sim.Result = &domain.ScoringResult{}
	if err := json.Unmarshal([]byte(result), sim.Result); err != nil {
		return nil, fmt.Errorf("failed to parse result of simulation %s: %w", sim.ID, err)
	}
	json.Unmarshal([]byte(metadata), &sim.Metadata)

	return &sim, nil
}
