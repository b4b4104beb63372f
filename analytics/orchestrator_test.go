package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pulsedash/api/cache"
	"pulsedash/api/models"
)

// brokenCache fails every operation, simulating an unreachable cache store.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenCache) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) AcquireLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (brokenCache) ReleaseLock(context.Context, string, string) error {
	return errors.New("connection refused")
}
func (brokenCache) Close() error { return nil }

func testOrchestrator(store EventStore, cacheStore cache.Store) *Orchestrator {
	planner := NewPlanner(store, time.Second, 10)
	return NewOrchestrator(planner, cacheStore, zap.NewNop(), OrchestratorOptions{
		TTL:            time.Minute,
		LockTTL:        500 * time.Millisecond,
		LockWait:       200 * time.Millisecond,
		ComputeTimeout: 5 * time.Second,
	})
}

func TestGetOverview_CacheIdempotence(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	o := testOrchestrator(store, cache.NewMemoryStore())
	w := weekWindow()

	first, err := o.GetOverview(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, first.Source)

	second, err := o.GetOverview(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)

	// The event store was consulted exactly once per sub-query across
	// both calls, and the summaries are byte-identical.
	assert.Equal(t, 6, store.totalCalls())

	firstJSON, err := json.Marshal(first.Summary)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.Summary)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestGetOverview_SingleFlightUnderLoad(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	store.delay = 50 * time.Millisecond
	o := testOrchestrator(store, cache.NewMemoryStore())
	w := weekWindow()

	const callers = 50
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.GetOverview(context.Background(), w)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Summary)
		assert.Equal(t, uint64(5), results[i].Summary.TotalEvents)
	}

	// Cold cache, 50 concurrent callers, one store invocation per
	// sub-query type.
	for _, op := range []string{
		"countEvents", "countDistinctUsers", "groupByEventType",
		"groupByBucket", "groupByPage", "groupByDevice",
	} {
		assert.Equal(t, 1, store.callCount(op), op)
	}
}

func TestGetOverview_DegradedWhenCacheUnavailable(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	o := testOrchestrator(store, brokenCache{})

	result, err := o.GetOverview(context.Background(), weekWindow())
	require.NoError(t, err, "cache unavailability must not fail the request")

	assert.Equal(t, SourceDegraded, result.Source)
	assert.Equal(t, uint64(5), result.Summary.TotalEvents)
}

func TestGetOverview_WaiterAdoptsHolderResult(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	memory := cache.NewMemoryStore()
	o := testOrchestrator(store, memory)
	w := weekWindow()
	key := CacheKey(w)

	// Another process holds the computation lock.
	_, acquired, err := memory.AcquireLock(context.Background(), key+":lock", time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	// The holder publishes its result while we wait.
	published := &models.AnalyticsSummary{TotalEvents: 42, UniqueUsers: 7}
	go func() {
		time.Sleep(50 * time.Millisecond)
		payload, _ := json.Marshal(published)
		_ = memory.SetWithTTL(context.Background(), key, payload, time.Minute)
	}()

	result, err := o.GetOverview(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, SourceCache, result.Source)
	assert.Equal(t, uint64(42), result.Summary.TotalEvents)
	assert.Equal(t, 0, store.totalCalls(), "waiter must not hit the event store")
}

func TestGetOverview_BoundedWaitThenIndependentCompute(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	memory := cache.NewMemoryStore()
	o := testOrchestrator(store, memory)
	w := weekWindow()

	// A crashed holder: lock held, result never published. The lock TTL
	// outlives our bounded wait, so the caller computes on its own.
	_, acquired, err := memory.AcquireLock(context.Background(), CacheKey(w)+":lock", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	start := time.Now()
	result, err := o.GetOverview(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, SourceComputed, result.Source)
	assert.Equal(t, uint64(5), result.Summary.TotalEvents)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond, "should have waited the bounded poll window")
	assert.Less(t, time.Since(start), 2*time.Second, "must never wait unboundedly")
}

func TestGetOverview_LockSelfHealsAfterTTL(t *testing.T) {
	memory := cache.NewMemoryStore()

	_, acquired, err := memory.AcquireLock(context.Background(), "k", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	// Held: second acquisition fails.
	_, acquired, err = memory.AcquireLock(context.Background(), "k", 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, acquired)

	// Expired without a release (owner crashed): re-acquirable.
	time.Sleep(50 * time.Millisecond)
	_, acquired, err = memory.AcquireLock(context.Background(), "k", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestGetOverview_CallerCancellationDoesNotKillSharedComputation(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	store.delay = 100 * time.Millisecond
	o := testOrchestrator(store, cache.NewMemoryStore())
	w := weekWindow()

	impatient, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var patientResult Result
	var patientErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		patientResult, patientErr = o.GetOverview(context.Background(), w)
	}()

	// Give the patient caller a moment to join the same flight.
	time.Sleep(5 * time.Millisecond)
	_, impatientErr := o.GetOverview(impatient, w)

	wg.Wait()

	require.Error(t, impatientErr)
	assert.ErrorIs(t, impatientErr, context.DeadlineExceeded)

	// The shared computation finished for the waiter that stayed.
	require.NoError(t, patientErr)
	assert.Equal(t, uint64(5), patientResult.Summary.TotalEvents)
}

func TestGetOverview_ComputationErrorPropagates(t *testing.T) {
	store := newFakeEventStore(weekOfEvents()...)
	store.failOps["countEvents"] = errors.New("clickhouse down")
	o := testOrchestrator(store, cache.NewMemoryStore())

	_, err := o.GetOverview(context.Background(), weekWindow())
	require.Error(t, err)

	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestCacheKey_Deterministic(t *testing.T) {
	w := weekWindow()
	assert.Equal(t, CacheKey(w), CacheKey(w))

	other := w
	other.Granularity = GranularityHour
	assert.NotEqual(t, CacheKey(w), CacheKey(other))

	other = w
	other.TenantID = "t2"
	assert.NotEqual(t, CacheKey(w), CacheKey(other))
}
