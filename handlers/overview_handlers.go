// api/handlers/overview_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulsedash/api/analytics"
	"pulsedash/api/logging"
	"pulsedash/api/models"
)

// TenantDirectory resolves tenant identifiers against the registry.
type TenantDirectory interface {
	GetTenantByID(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// OverviewProvider serves analytics summaries for validated windows.
type OverviewProvider interface {
	GetOverview(ctx context.Context, w analytics.QueryWindow) (analytics.Result, error)
}

type OverviewHandlers struct {
	Tenants  TenantDirectory
	Overview OverviewProvider

	maxSpan        time.Duration
	requestTimeout time.Duration
}

func NewOverviewHandlers(tenants TenantDirectory, overview OverviewProvider, maxSpan, requestTimeout time.Duration) *OverviewHandlers {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &OverviewHandlers{
		Tenants:        tenants,
		Overview:       overview,
		maxSpan:        maxSpan,
		requestTimeout: requestTimeout,
	}
}

// GetTenantOverview handles GET /tenants/:tenantId/overview.
func (h *OverviewHandlers) GetTenantOverview(c *gin.Context) {
	logger := logging.FromContext(c.Request.Context())
	tenantID := c.Param("tenantId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	tenant, err := h.Tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, analytics.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		logger.Error("tenant lookup failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tenant registry unavailable"})
		return
	}

	window, err := analytics.NormalizeWindow(
		tenant.ID,
		c.Query("from"),
		c.Query("to"),
		c.Query("groupBy"),
		time.Now(),
		h.maxSpan,
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Overview.GetOverview(ctx, window)
	if err != nil {
		h.writeOverviewError(c, logger, err)
		return
	}

	if result.Source == analytics.SourceDegraded {
		logger.Warn("overview served in cache-bypass mode", zap.String("tenant_id", tenant.ID))
	}
	c.Header("X-Cache", cacheHeader(result.Source))
	c.JSON(http.StatusOK, result.Summary)
}

func (h *OverviewHandlers) writeOverviewError(c *gin.Context, logger *zap.Logger, err error) {
	var validationErr *analytics.ValidationError
	var storeErr *analytics.StoreError
	var compositionErr *analytics.CompositionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("overview request deadline exceeded")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request deadline exceeded"})
	case errors.As(err, &storeErr):
		logger.Error("event store unavailable", zap.String("op", storeErr.Op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event store unavailable"})
	case errors.As(err, &compositionErr):
		// An upstream defect, not a transient failure. Never retried.
		logger.Error("summary composition failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compose analytics summary"})
	default:
		logger.Error("overview request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics summary"})
	}
}

func cacheHeader(source analytics.Source) string {
	switch source {
	case analytics.SourceCache:
		return "HIT"
	case analytics.SourceDegraded:
		return "BYPASS"
	default:
		return "MISS"
	}
}
