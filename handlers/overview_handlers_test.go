package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsedash/api/analytics"
	"pulsedash/api/models"
)

type fakeTenantDirectory struct {
	tenants map[string]*models.Tenant
	err     error
}

func (f *fakeTenantDirectory) GetTenantByID(_ context.Context, tenantID string) (*models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	tenant, ok := f.tenants[tenantID]
	if !ok {
		return nil, analytics.ErrTenantNotFound
	}
	return tenant, nil
}

type fakeOverviewProvider struct {
	result analytics.Result
	err    error
	lastW  analytics.QueryWindow
}

func (f *fakeOverviewProvider) GetOverview(_ context.Context, w analytics.QueryWindow) (analytics.Result, error) {
	f.lastW = w
	if f.err != nil {
		return analytics.Result{}, f.err
	}
	return f.result, nil
}

func weekSummary() *models.AnalyticsSummary {
	buckets := make([]models.TimeBucket, 0, 7)
	counts := []uint64{1, 2, 0, 1, 0, 0, 1}
	for i, c := range counts {
		buckets = append(buckets, models.TimeBucket{
			Bucket: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Count:  c,
		})
	}
	return &models.AnalyticsSummary{
		TotalEvents: 5,
		UniqueUsers: 2,
		EventsByType: []models.EventTypeCount{
			{EventType: "page_view", Count: 3},
			{EventType: "click", Count: 2},
		},
		TimeSeriesData: buckets,
		TopPages: []models.PageCount{
			{PagePath: "/home", Count: 2},
			{PagePath: "/pricing", Count: 1},
		},
		DeviceStats: []models.DeviceStat{
			{Device: "desktop", Count: 3, Percentage: 75},
			{Device: "mobile", Count: 1, Percentage: 25},
		},
	}
}

func overviewRouter(tenants TenantDirectory, overview OverviewProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOverviewHandlers(tenants, overview, 366*24*time.Hour, 10*time.Second)
	r := gin.New()
	r.GET("/tenants/:tenantId/overview", h.GetTenantOverview)
	return r
}

func knownTenants() *fakeTenantDirectory {
	return &fakeTenantDirectory{tenants: map[string]*models.Tenant{
		"t1": {ID: "t1", Name: "Tenant One", Region: "eu-west", PlanTier: "pro"},
	}}
}

func TestGetTenantOverview_OK(t *testing.T) {
	provider := &fakeOverviewProvider{result: analytics.Result{
		Summary: weekSummary(),
		Source:  analytics.SourceComputed,
	}}
	r := overviewRouter(knownTenants(), provider)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/tenants/t1/overview?from=2024-01-01T00:00:00Z&to=2024-01-08T00:00:00Z&groupBy=day", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var body models.AnalyticsSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(5), body.TotalEvents)
	assert.Equal(t, uint64(2), body.UniqueUsers)
	require.Len(t, body.TimeSeriesData, 7)
	require.Len(t, body.EventsByType, 2)
	assert.Equal(t, "page_view", body.EventsByType[0].EventType)

	// The provider received the validated window for the right tenant.
	assert.Equal(t, "t1", provider.lastW.TenantID)
	assert.Equal(t, analytics.GranularityDay, provider.lastW.Granularity)
}

func TestGetTenantOverview_CachedResponseMarksHit(t *testing.T) {
	provider := &fakeOverviewProvider{result: analytics.Result{
		Summary: weekSummary(),
		Source:  analytics.SourceCache,
	}}
	r := overviewRouter(knownTenants(), provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestGetTenantOverview_DegradedStillServes(t *testing.T) {
	provider := &fakeOverviewProvider{result: analytics.Result{
		Summary: weekSummary(),
		Source:  analytics.SourceDegraded,
	}}
	r := overviewRouter(knownTenants(), provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BYPASS", rec.Header().Get("X-Cache"))
}

func TestGetTenantOverview_BadWindow(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"bad granularity", "?groupBy=decade"},
		{"bad from", "?from=tuesday"},
		{"from after to", "?from=2024-01-08T00:00:00Z&to=2024-01-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeOverviewProvider{result: analytics.Result{Summary: weekSummary()}}
			r := overviewRouter(knownTenants(), provider)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetTenantOverview_UnknownTenant(t *testing.T) {
	provider := &fakeOverviewProvider{result: analytics.Result{Summary: weekSummary()}}
	r := overviewRouter(knownTenants(), provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/ghost/overview", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTenantOverview_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"store unavailable", &analytics.StoreError{Op: "countEvents", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"composition defect", &analytics.CompositionError{Reason: "bad partials"}, http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeOverviewProvider{err: tt.err}
			r := overviewRouter(knownTenants(), provider)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGetTenantOverview_RegistryDown(t *testing.T) {
	tenants := &fakeTenantDirectory{err: errors.New("pq: connection refused")}
	provider := &fakeOverviewProvider{result: analytics.Result{Summary: weekSummary()}}
	r := overviewRouter(tenants, provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/overview", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
