// api/analytics/orchestrator.go
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pulsedash/api/cache"
	"pulsedash/api/models"
)

// summarySchemaVersion is part of every cache key, so changing the summary
// shape invalidates old entries instead of serving stale-shaped data.
const summarySchemaVersion = "v1"

// Source tells the caller how a summary was produced.
type Source string

const (
	// SourceCache means an unexpired cached summary was returned.
	SourceCache Source = "cache"
	// SourceComputed means the summary was computed and written back.
	SourceComputed Source = "computed"
	// SourceDegraded means the cache store was unavailable and the
	// summary was computed directly, bypassing the cache.
	SourceDegraded Source = "degraded"
)

// Result is an overview summary plus its provenance for the
// observability path.
type Result struct {
	Summary *models.AnalyticsSummary
	Source  Source
}

// Orchestrator serves overview summaries through a cache-aside layer with
// stampede protection: an in-process single-flight group de-duplicates
// concurrent identical requests, and a TTL-bounded lock in the cache store
// keeps recomputation to at most one holder cluster-wide.
type Orchestrator struct {
	planner *Planner
	cache   cache.Store
	logger  *zap.Logger

	ttl            time.Duration
	lockTTL        time.Duration
	lockWait       time.Duration
	computeTimeout time.Duration

	group singleflight.Group
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// TTL is the cached summary lifetime. Staleness is bounded by TTL
	// only; there is no invalidation on ingest.
	TTL time.Duration
	// LockTTL bounds how long a crashed lock holder can block others.
	LockTTL time.Duration
	// LockWait bounds how long a non-holder polls for the holder's
	// result before computing independently.
	LockWait time.Duration
	// ComputeTimeout is the overall deadline for a shared computation.
	ComputeTimeout time.Duration
}

func NewOrchestrator(planner *Planner, cacheStore cache.Store, logger *zap.Logger, opts OrchestratorOptions) *Orchestrator {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = 15 * time.Second
	}
	return &Orchestrator{
		planner:        planner,
		cache:          cacheStore,
		logger:         logger,
		ttl:            opts.TTL,
		lockTTL:        opts.LockTTL,
		lockWait:       opts.LockWait,
		computeTimeout: opts.ComputeTimeout,
	}
}

// CacheKey derives the deterministic cache key for a window.
func CacheKey(w QueryWindow) string {
	return fmt.Sprintf("overview:%s:%s:%d:%d:%s",
		summarySchemaVersion, w.TenantID, w.From.Unix(), w.To.Unix(), w.Granularity)
}

// GetOverview returns the summary for the window, from cache when possible.
// Concurrent callers for the same key share one in-flight computation; a
// caller whose context is cancelled stops waiting without cancelling the
// shared computation other waiters depend on.
func (o *Orchestrator) GetOverview(ctx context.Context, w QueryWindow) (Result, error) {
	key := CacheKey(w)

	ch := o.group.DoChan(key, func() (interface{}, error) {
		// Detached from the first caller so its cancellation cannot
		// kill a computation other waiters depend on.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.computeTimeout)
		defer cancel()
		return o.lookupOrCompute(cctx, key, w)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (o *Orchestrator) lookupOrCompute(ctx context.Context, key string, w QueryWindow) (Result, error) {
	summary, err := o.cachedSummary(ctx, key)
	if err == nil {
		return Result{Summary: summary, Source: SourceCache}, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Cache unavailability never fails the request: degrade to
		// direct computation and surface it to the caller.
		o.logger.Warn("cache unavailable, computing directly", zap.String("key", key), zap.Error(err))
		computed, cerr := o.compute(ctx, w)
		if cerr != nil {
			return Result{}, cerr
		}
		return Result{Summary: computed, Source: SourceDegraded}, nil
	}

	lockKey := key + ":lock"
	token, acquired, err := o.cache.AcquireLock(ctx, lockKey, o.lockTTL)
	if err != nil {
		o.logger.Warn("lock acquisition failed, computing directly", zap.String("key", key), zap.Error(err))
		computed, cerr := o.compute(ctx, w)
		if cerr != nil {
			return Result{}, cerr
		}
		return Result{Summary: computed, Source: SourceDegraded}, nil
	}

	if acquired {
		defer func() {
			if rerr := o.cache.ReleaseLock(ctx, lockKey, token); rerr != nil {
				o.logger.Warn("failed to release computation lock", zap.String("key", lockKey), zap.Error(rerr))
			}
		}()

		computed, cerr := o.compute(ctx, w)
		if cerr != nil {
			return Result{}, cerr
		}
		o.writeBack(ctx, key, computed)
		return Result{Summary: computed, Source: SourceComputed}, nil
	}

	// Another process holds the lock. Poll for its result, but only for a
	// bounded time: if the holder crashed, its lock expires on its own and
	// we compute independently rather than waiting forever.
	if summary, ok := o.awaitHolder(ctx, key); ok {
		return Result{Summary: summary, Source: SourceCache}, nil
	}

	computed, cerr := o.compute(ctx, w)
	if cerr != nil {
		return Result{}, cerr
	}
	o.writeBack(ctx, key, computed)
	return Result{Summary: computed, Source: SourceComputed}, nil
}

// awaitHolder polls the cache while another process computes, up to the
// configured bound.
func (o *Orchestrator) awaitHolder(ctx context.Context, key string) (*models.AnalyticsSummary, bool) {
	interval := o.lockWait / 20
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	deadline := time.NewTimer(o.lockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			summary, err := o.cachedSummary(ctx, key)
			if err == nil {
				return summary, true
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				return nil, false
			}
		}
	}
}

func (o *Orchestrator) cachedSummary(ctx context.Context, key string) (*models.AnalyticsSummary, error) {
	payload, err := o.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	summary := &models.AnalyticsSummary{}
	if err := json.Unmarshal(payload, summary); err != nil {
		// A corrupt entry is treated as a miss and recomputed.
		o.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, cache.ErrCacheMiss
	}
	return summary, nil
}

func (o *Orchestrator) compute(ctx context.Context, w QueryWindow) (*models.AnalyticsSummary, error) {
	partials, err := o.planner.Run(ctx, w)
	if err != nil {
		return nil, err
	}
	return Compose(w, partials)
}

// writeBack stores a computed summary. Failures are logged, never fatal.
func (o *Orchestrator) writeBack(ctx context.Context, key string, summary *models.AnalyticsSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		o.logger.Error("failed to serialize summary for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := o.cache.SetWithTTL(ctx, key, payload, o.ttl); err != nil {
		o.logger.Warn("failed to write summary to cache", zap.String("key", key), zap.Error(err))
	}
}
