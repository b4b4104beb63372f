// api/analytics/window.go
package analytics

import (
	"fmt"
	"time"
)

// Granularity is the width of a time-series bucket.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// IsValidGranularity reports whether s names a recognized bucket width.
func IsValidGranularity(s string) bool {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return true
	default:
		return false
	}
}

// QueryWindow is the canonical, validated form of an overview request:
// one tenant, a UTC time range with From <= To, and a bucket granularity.
// Derived per request, never persisted.
type QueryWindow struct {
	TenantID    string
	From        time.Time
	To          time.Time
	Granularity Granularity
}

// defaultSpan is the trailing window used when from/to are omitted.
const defaultSpan = 7 * 24 * time.Hour

// NormalizeWindow parses and validates raw from/to/groupBy inputs into a
// canonical QueryWindow. Omitted from/to default to a trailing 7-day window
// ending at now; omitted groupBy defaults to day. Timestamps are RFC3339.
// A span larger than maxSpan is rejected to bound aggregation cost.
func NormalizeWindow(tenantID, fromParam, toParam, groupByParam string, now time.Time, maxSpan time.Duration) (QueryWindow, error) {
	now = now.UTC()

	to := now
	if toParam != "" {
		parsed, err := time.Parse(time.RFC3339, toParam)
		if err != nil {
			return QueryWindow{}, &ValidationError{Field: "to", Reason: "must be an RFC3339 timestamp (e.g., 2006-01-02T15:04:05Z)"}
		}
		to = parsed.UTC()
	}

	from := to.Add(-defaultSpan)
	if fromParam != "" {
		parsed, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return QueryWindow{}, &ValidationError{Field: "from", Reason: "must be an RFC3339 timestamp (e.g., 2006-01-02T15:04:05Z)"}
		}
		from = parsed.UTC()
	}

	if from.After(to) {
		return QueryWindow{}, &ValidationError{Field: "from", Reason: "must not be after 'to'"}
	}
	if to.Sub(from) > maxSpan {
		return QueryWindow{}, &ValidationError{Field: "to", Reason: fmt.Sprintf("window span exceeds the maximum of %s", maxSpan)}
	}

	groupBy := string(GranularityDay)
	if groupByParam != "" {
		groupBy = groupByParam
	}
	if !IsValidGranularity(groupBy) {
		return QueryWindow{}, &ValidationError{Field: "groupBy", Reason: "must be one of hour, day, week, month"}
	}

	return QueryWindow{
		TenantID:    tenantID,
		From:        from,
		To:          to,
		Granularity: Granularity(groupBy),
	}, nil
}

// BucketStart floors t to the start of the bucket containing it. Hour and
// day buckets align to the UTC clock, weeks start on Monday (ISO), months
// on the first of the month.
func (w QueryWindow) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	switch w.Granularity {
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // day
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// nextBucket advances a bucket start by one granularity step.
func (w QueryWindow) nextBucket(start time.Time) time.Time {
	switch w.Granularity {
	case GranularityHour:
		return start.Add(time.Hour)
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Buckets returns the contiguous, gap-free sequence of bucket starts whose
// half-open intervals cover the window. Every instant in [From, To) maps to
// exactly one bucket; a single-point window (From == To) yields one bucket.
func (w QueryWindow) Buckets() []time.Time {
	var buckets []time.Time
	start := w.BucketStart(w.From)
	buckets = append(buckets, start)
	for start = w.nextBucket(start); start.Before(w.To); start = w.nextBucket(start) {
		buckets = append(buckets, start)
	}
	return buckets
}

// SinglePoint reports whether the window is the degenerate From == To case,
// which matches events exactly at that instant.
func (w QueryWindow) SinglePoint() bool {
	return w.From.Equal(w.To)
}
