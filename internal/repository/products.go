package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveProduct upserts a credit product with tenant isolation.
func (r *SQLRepository) SaveProduct(ctx context.Context, tenantID string, product *domain.CreditProduct) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if product == nil || product.ID == "" {
		return fmt.Errorf("%w: product ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.TenantID = tenantID

	query := `
		INSERT INTO credit_products (
			id, tenant_id, name, description, min_amount, max_amount,
			interest_rate, duration_months, scoring_model_id, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			interest_rate = excluded.interest_rate,
			duration_months = excluded.duration_months,
			scoring_model_id = excluded.scoring_model_id,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		product.ID, tenantID, product.Name, product.Description,
		product.MinAmount, product.MaxAmount, product.InterestRate, product.DurationMonths,
		product.ScoringModelID, boolToInt(product.Active),
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", product.ID, err)
	}
	return nil
}

// GetProduct retrieves a credit product with tenant isolation.
func (r *SQLRepository) GetProduct(ctx context.Context, tenantID string, productID string) (*domain.CreditProduct, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, min_amount, max_amount,
			   interest_rate, duration_months, scoring_model_id, active, created_at, updated_at
		FROM credit_products
		WHERE tenant_id = ? AND id = ?
	`

	p, err := scanProduct(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProducts retrieves all credit products of a tenant, ordered by name.
func (r *SQLRepository) ListProducts(ctx context.Context, tenantID string) ([]*domain.CreditProduct, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, min_amount, max_amount,
			   interest_rate, duration_months, scoring_model_id, active, created_at, updated_at
		FROM credit_products
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.CreditProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// DeleteProduct removes a credit product. Its simulations are kept.
func (r *SQLRepository) DeleteProduct(ctx context.Context, tenantID string, productID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM credit_products WHERE tenant_id = ? AND id = ?`), tenantID, productID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanProduct(row rowScanner) (*domain.CreditProduct, error) {
	var p domain.CreditProduct
	var description sql.NullString
	var active int

	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &description,
		&p.MinAmount, &p.MaxAmount, &p.InterestRate, &p.DurationMonths,
		&p.ScoringModelID, &active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Description = description.String
	p.Active = active == 1
	return &p, nil
}
