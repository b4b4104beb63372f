// api/analytics/planner.go
package analytics

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// TypeCount is one row of an event-type grouping.
type TypeCount struct {
	EventType string
	Count     uint64
}

// BucketCount is one row of a time-bucket grouping. Bucket is the aligned
// start of the interval.
type BucketCount struct {
	Bucket time.Time
	Count  uint64
}

// PageCount is one row of a page grouping.
type PageCount struct {
	PagePath string
	Count    uint64
}

// DeviceCount is one row of a device-category grouping.
type DeviceCount struct {
	Device string
	Count  uint64
}

// EventStore is the read-only capability the planner needs from the event
// store. Every method is filtered to one tenant and one window; returning
// rows for any other tenant is a correctness violation upstream.
type EventStore interface {
	CountEvents(ctx context.Context, w QueryWindow) (uint64, error)
	CountDistinctUsers(ctx context.Context, w QueryWindow) (uint64, error)
	GroupByEventType(ctx context.Context, w QueryWindow) ([]TypeCount, error)
	GroupByBucket(ctx context.Context, w QueryWindow) ([]BucketCount, error)
	GroupByPage(ctx context.Context, w QueryWindow, limit int) ([]PageCount, error)
	GroupByDevice(ctx context.Context, w QueryWindow) ([]DeviceCount, error)
}

// Partials holds the raw results of the six independent aggregations before
// composition. All-or-nothing: a partial failure fails the whole plan, since
// a dashboard showing silently incomplete numbers is worse than an error.
type Partials struct {
	TotalEvents uint64
	UniqueUsers uint64
	ByType      []TypeCount
	ByBucket    []BucketCount
	TopPages    []PageCount
	ByDevice    []DeviceCount
}

// Planner decomposes an overview request into the store aggregations it
// needs and shapes the rows into typed, deterministically ordered partials.
type Planner struct {
	store        EventStore
	queryTimeout time.Duration
	topPages     int
}

func NewPlanner(store EventStore, queryTimeout time.Duration, topPages int) *Planner {
	if topPages <= 0 {
		topPages = 10
	}
	return &Planner{store: store, queryTimeout: queryTimeout, topPages: topPages}
}

// Run issues the six sub-queries in parallel, each under its own deadline.
// The sub-queries are read-only and independent, so their order does not
// matter, but Run returns only after all have completed or failed.
func (p *Planner) Run(ctx context.Context, w QueryWindow) (*Partials, error) {
	partials := &Partials{}

	g, gctx := errgroup.WithContext(ctx)

	run := func(op string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			qctx := gctx
			if p.queryTimeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(gctx, p.queryTimeout)
				defer cancel()
			}
			if err := fn(qctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return &StoreError{Op: op, Err: err}
			}
			return nil
		})
	}

	run("countEvents", func(ctx context.Context) error {
		total, err := p.store.CountEvents(ctx, w)
		partials.TotalEvents = total
		return err
	})
	run("countDistinctUsers", func(ctx context.Context) error {
		users, err := p.store.CountDistinctUsers(ctx, w)
		partials.UniqueUsers = users
		return err
	})
	run("groupByEventType", func(ctx context.Context) error {
		rows, err := p.store.GroupByEventType(ctx, w)
		partials.ByType = rows
		return err
	})
	run("groupByBucket", func(ctx context.Context) error {
		rows, err := p.store.GroupByBucket(ctx, w)
		partials.ByBucket = rows
		return err
	})
	run("groupByPage", func(ctx context.Context) error {
		rows, err := p.store.GroupByPage(ctx, w, p.topPages)
		partials.TopPages = rows
		return err
	})
	run("groupByDevice", func(ctx context.Context) error {
		rows, err := p.store.GroupByDevice(ctx, w)
		partials.ByDevice = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.shape(partials)
	return partials, nil
}

// shape enforces the deterministic ordering and truncation rules regardless
// of how the store returned its rows.
func (p *Planner) shape(partials *Partials) {
	sort.Slice(partials.ByType, func(i, j int) bool {
		a, b := partials.ByType[i], partials.ByType[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.EventType < b.EventType
	})

	sort.Slice(partials.ByBucket, func(i, j int) bool {
		return partials.ByBucket[i].Bucket.Before(partials.ByBucket[j].Bucket)
	})

	sort.Slice(partials.TopPages, func(i, j int) bool {
		a, b := partials.TopPages[i], partials.TopPages[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.PagePath < b.PagePath
	})
	if len(partials.TopPages) > p.topPages {
		partials.TopPages = partials.TopPages[:p.topPages]
	}

	sort.Slice(partials.ByDevice, func(i, j int) bool {
		a, b := partials.ByDevice[i], partials.ByDevice[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Device < b.Device
	})
}
