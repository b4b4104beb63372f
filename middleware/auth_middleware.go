package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulsedash/api/logging"
	"pulsedash/api/utils"
)

// ContextTenantID is the gin context key holding the authenticated tenant.
const ContextTenantID = "tenant_id"

// AuthRequired validates the bearer token and records the tenant it is
// scoped to. Routes with a :tenantId parameter additionally require the
// token's tenant to match the path tenant, so a token can never read
// another tenant's numbers.
func AuthRequired(jwtManager *utils.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := logging.FromContext(c.Request.Context())

		tokenString, err := c.Cookie("jwt_token")
		if err != nil {
			tokenString = c.GetHeader("Authorization")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			logger.Debug("rejected invalid token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		if pathTenant := c.Param("tenantId"); pathTenant != "" && pathTenant != claims.TenantID {
			logger.Warn("cross-tenant access denied",
				zap.String("token_tenant", claims.TenantID),
				zap.String("path_tenant", pathTenant))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: token is not scoped to this tenant"})
			return
		}

		c.Set(ContextTenantID, claims.TenantID)
		c.Next()
	}
}
