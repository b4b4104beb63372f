// api/store/event_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"pulsedash/api/analytics"
	"pulsedash/api/database"
)

// retryAttempts is how many times a transient ClickHouse failure is retried
// before surfacing to the caller.
const retryAttempts = 2

// EventStore is the ClickHouse-backed implementation of the planner's
// event store interface. Every query is filtered to one tenant and one
// window; tenant_id is always the first predicate.
type EventStore struct {
	DB *database.ClickHouseClient
}

func NewEventStore(chClient *database.ClickHouseClient) *EventStore {
	return &EventStore{DB: chClient}
}

var _ analytics.EventStore = (*EventStore)(nil)

// windowFilter builds the tenant + time-range predicate. The range is
// half-open except for the single-point From == To window, which matches
// events exactly at that instant.
func windowFilter(w analytics.QueryWindow) (string, []interface{}) {
	cond := "tenant_id = ? AND timestamp >= ? AND timestamp < ?"
	if w.SinglePoint() {
		cond = "tenant_id = ? AND timestamp >= ? AND timestamp <= ?"
	}
	return cond, []interface{}{w.TenantID, w.From, w.To}
}

// bucketExpr maps a granularity to the ClickHouse bucket-start expression.
// Weeks start on Monday to match the normalizer's alignment.
func bucketExpr(g analytics.Granularity) string {
	switch g {
	case analytics.GranularityHour:
		return "toStartOfHour(timestamp)"
	case analytics.GranularityWeek:
		return "toStartOfWeek(timestamp, 1)"
	case analytics.GranularityMonth:
		return "toStartOfMonth(timestamp)"
	default:
		return "toStartOfDay(timestamp)"
	}
}

// withRetry runs fn under a small fixed exponential backoff. Context
// cancellation is never retried.
func (s *EventStore) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (s *EventStore) CountEvents(ctx context.Context, w analytics.QueryWindow) (uint64, error) {
	cond, args := windowFilter(w)
	query := fmt.Sprintf(`SELECT count() FROM analytics_events WHERE %s`, cond)

	var total uint64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.DB.Conn.QueryRow(ctx, query, args...).Scan(&total)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

func (s *EventStore) CountDistinctUsers(ctx context.Context, w analytics.QueryWindow) (uint64, error) {
	cond, args := windowFilter(w)
	// Events without a user id stay out of the distinct set entirely.
	query := fmt.Sprintf(`SELECT uniqExact(user_id) FROM analytics_events WHERE %s AND user_id != ''`, cond)

	var users uint64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.DB.Conn.QueryRow(ctx, query, args...).Scan(&users)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct users: %w", err)
	}
	return users, nil
}

func (s *EventStore) GroupByEventType(ctx context.Context, w analytics.QueryWindow) ([]analytics.TypeCount, error) {
	cond, args := windowFilter(w)
	query := fmt.Sprintf(`
		SELECT event_type, count() AS event_count
		FROM analytics_events
		WHERE %s
		GROUP BY event_type
		ORDER BY event_count DESC, event_type ASC
	`, cond)

	var results []analytics.TypeCount
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.DB.Conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var row analytics.TypeCount
			if err := rows.Scan(&row.EventType, &row.Count); err != nil {
				return err
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to group events by type: %w", err)
	}
	return results, nil
}

func (s *EventStore) GroupByBucket(ctx context.Context, w analytics.QueryWindow) ([]analytics.BucketCount, error) {
	cond, args := windowFilter(w)
	query := fmt.Sprintf(`
		SELECT %s AS time_bucket, count() AS event_count
		FROM analytics_events
		WHERE %s
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, bucketExpr(w.Granularity), cond)

	var results []analytics.BucketCount
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.DB.Conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var row analytics.BucketCount
			if err := rows.Scan(&row.Bucket, &row.Count); err != nil {
				return err
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to group events by bucket: %w", err)
	}
	return results, nil
}

func (s *EventStore) GroupByPage(ctx context.Context, w analytics.QueryWindow, limit int) ([]analytics.PageCount, error) {
	if limit <= 0 {
		limit = 10
	}
	cond, args := windowFilter(w)
	query := fmt.Sprintf(`
		SELECT page_path, count() AS view_count
		FROM analytics_events
		WHERE %s AND event_type = 'page_view' AND page_path != ''
		GROUP BY page_path
		ORDER BY view_count DESC, page_path ASC
		LIMIT ?
	`, cond)
	args = append(args, uint64(limit))

	var results []analytics.PageCount
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.DB.Conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var row analytics.PageCount
			if err := rows.Scan(&row.PagePath, &row.Count); err != nil {
				return err
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to group events by page: %w", err)
	}
	return results, nil
}

func (s *EventStore) GroupByDevice(ctx context.Context, w analytics.QueryWindow) ([]analytics.DeviceCount, error) {
	cond, args := windowFilter(w)
	// Events missing a device value are excluded from both the counts and
	// the percentage denominator downstream.
	query := fmt.Sprintf(`
		SELECT device, count() AS event_count
		FROM analytics_events
		WHERE %s AND device != ''
		GROUP BY device
		ORDER BY event_count DESC, device ASC
	`, cond)

	var results []analytics.DeviceCount
	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.DB.Conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var row analytics.DeviceCount
			if err := rows.Scan(&row.Device, &row.Count); err != nil {
				return err
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to group events by device: %w", err)
	}
	return results, nil
}
