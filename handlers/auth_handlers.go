// api/handlers/auth_handlers.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pulsedash/api/analytics"
	"pulsedash/api/logging"
	"pulsedash/api/models"
	"pulsedash/api/utils"
)

type AuthHandlers struct {
	Tenants    TenantDirectory
	JWTManager *utils.JWTManager
}

func NewAuthHandlers(tenants TenantDirectory, jwtManager *utils.JWTManager) *AuthHandlers {
	return &AuthHandlers{Tenants: tenants, JWTManager: jwtManager}
}

// IssueToken exchanges a tenant API key for a tenant-scoped JWT.
func (h *AuthHandlers) IssueToken(c *gin.Context) {
	logger := logging.FromContext(c.Request.Context())

	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	tenant, err := h.Tenants.GetTenantByID(c.Request.Context(), req.TenantID)
	if err != nil {
		if errors.Is(err, analytics.ErrTenantNotFound) {
			// Same response as a bad key so callers cannot probe for
			// tenant identifiers.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		logger.Error("tenant lookup failed during token exchange", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tenant registry unavailable"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(tenant.APIKeyHash, []byte(req.APIKey)); err != nil {
		logger.Info("token exchange rejected", zap.String("tenant_id", req.TenantID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.JWTManager.GenerateToken(tenant)
	if err != nil {
		logger.Error("failed to generate token", zap.String("tenant_id", tenant.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(
		"jwt_token",
		tokenString,
		int(time.Hour/time.Second),
		"/",
		"",
		false,
		true,
	)

	c.JSON(http.StatusOK, gin.H{
		"token":     tokenString,
		"tenant_id": tenant.ID,
	})
}
