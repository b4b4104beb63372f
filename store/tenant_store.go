// api/store/tenant_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pulsedash/api/analytics"
	"pulsedash/api/models"
)

// TenantStore reads the tenant registry from PostgreSQL. Tenants are
// referenced, never mutated, by the aggregation path.
type TenantStore struct {
	db *sql.DB
}

// NewTenantStore creates a new TenantStore instance.
func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

// GetTenantByID fetches a tenant by its identifier. Returns
// analytics.ErrTenantNotFound when no such tenant exists.
func (s *TenantStore) GetTenantByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	query := `
		SELECT id, name, region, plan_tier, api_key_hash, created_at, updated_at
		FROM tenants
		WHERE id = $1;
	`
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Region,
		&tenant.PlanTier,
		&tenant.APIKeyHash,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, analytics.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by id: %w", err)
	}

	return tenant, nil
}
