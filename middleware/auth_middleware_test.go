package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsedash/api/models"
	"pulsedash/api/utils"
)

func authRouter(jwtManager *utils.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tenants/:tenantId/overview", AuthRequired(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": c.MustGet(ContextTenantID)})
	})
	return r
}

func TestAuthRequired_NoToken(t *testing.T) {
	r := authRouter(utils.NewJWTManager("test-secret"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	r := authRouter(utils.NewJWTManager("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired_TokenScopedToTenant(t *testing.T) {
	jwtManager := utils.NewJWTManager("test-secret")
	token, err := jwtManager.GenerateToken(&models.Tenant{ID: "t1", PlanTier: "pro"})
	require.NoError(t, err)

	r := authRouter(jwtManager)

	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "t1")
}

func TestAuthRequired_CrossTenantTokenRejected(t *testing.T) {
	jwtManager := utils.NewJWTManager("test-secret")
	token, err := jwtManager.GenerateToken(&models.Tenant{ID: "t2"})
	require.NoError(t, err)

	r := authRouter(jwtManager)

	// A token scoped to t2 must never read t1's overview.
	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthRequired_WrongSecretRejected(t *testing.T) {
	token, err := utils.NewJWTManager("other-secret").GenerateToken(&models.Tenant{ID: "t1"})
	require.NoError(t, err)

	r := authRouter(utils.NewJWTManager("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
