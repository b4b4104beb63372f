package models

import "time"

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	TenantID string `json:"tenantId" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
}

// Tenant is a row in the tenant registry. Immutable as far as the
// aggregation path is concerned: referenced, never mutated.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
	PlanTier   string    `json:"planTier"`
	APIKeyHash []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
