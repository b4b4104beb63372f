package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pulsedash/api/models"
)

// Claims carries the tenant scope of a dashboard token. Every issued token
// is bound to exactly one tenant.
type Claims struct {
	TenantID string `json:"tenant_id"`
	PlanTier string `json:"plan_tier"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates tenant-scoped tokens. The secret is
// injected at construction; there is no package-level key state.
type JWTManager struct {
	secret []byte
}

func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret)}
}

// GenerateToken issues a token scoped to the given tenant.
func (m *JWTManager) GenerateToken(tenant *models.Tenant) (string, error) {
	expirationTime := time.Now().Add(1 * time.Hour)

	claims := &Claims{
		TenantID: tenant.ID,
		PlanTier: tenant.PlanTier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "pulsedash-api",
			Subject:   tenant.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and validates a token string.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	return claims, nil
}
