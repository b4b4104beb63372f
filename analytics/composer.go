// api/analytics/composer.go
package analytics

import (
	"fmt"
	"math"

	"pulsedash/api/models"
)

// Compose merges planner partials into the final AnalyticsSummary. The time
// series is densified so every bucket of the window is present, and device
// percentages are adjusted to sum to exactly 100. Compose fails only when
// the partials are internally inconsistent, which indicates an upstream
// store or planner defect.
func Compose(w QueryWindow, partials *Partials) (*models.AnalyticsSummary, error) {
	var typeTotal uint64
	eventsByType := make([]models.EventTypeCount, 0, len(partials.ByType))
	for _, row := range partials.ByType {
		typeTotal += row.Count
		eventsByType = append(eventsByType, models.EventTypeCount{EventType: row.EventType, Count: row.Count})
	}
	if typeTotal != partials.TotalEvents {
		return nil, &CompositionError{
			Reason: fmt.Sprintf("event type counts sum to %d but total is %d", typeTotal, partials.TotalEvents),
		}
	}

	series, err := composeSeries(w, partials)
	if err != nil {
		return nil, err
	}

	topPages := make([]models.PageCount, 0, len(partials.TopPages))
	for _, row := range partials.TopPages {
		topPages = append(topPages, models.PageCount{PagePath: row.PagePath, Count: row.Count})
	}

	return &models.AnalyticsSummary{
		TotalEvents:    partials.TotalEvents,
		UniqueUsers:    partials.UniqueUsers,
		EventsByType:   eventsByType,
		TimeSeriesData: series,
		TopPages:       topPages,
		DeviceStats:    composeDeviceStats(partials.ByDevice),
	}, nil
}

// composeSeries maps bucket rows onto the window's full bucket sequence,
// filling absent buckets with zero counts.
func composeSeries(w QueryWindow, partials *Partials) ([]models.TimeBucket, error) {
	counts := make(map[int64]uint64, len(partials.ByBucket))
	var bucketTotal uint64
	for _, row := range partials.ByBucket {
		counts[row.Bucket.UTC().Unix()] += row.Count
		bucketTotal += row.Count
	}
	if bucketTotal > partials.TotalEvents {
		return nil, &CompositionError{
			Reason: fmt.Sprintf("bucket counts sum to %d, more than the total of %d", bucketTotal, partials.TotalEvents),
		}
	}

	buckets := w.Buckets()
	series := make([]models.TimeBucket, 0, len(buckets))
	for _, start := range buckets {
		series = append(series, models.TimeBucket{
			Bucket: start,
			Count:  counts[start.Unix()],
		})
	}
	return series, nil
}

// composeDeviceStats converts device counts into percentages of the
// device-tagged total. Each raw percentage is rounded to the nearest
// integer, then the residual is added to the single largest category so
// the set sums to exactly 100 instead of 99 or 101.
func composeDeviceStats(rows []DeviceCount) []models.DeviceStat {
	stats := make([]models.DeviceStat, 0, len(rows))
	if len(rows) == 0 {
		return stats
	}

	var deviceTotal uint64
	for _, row := range rows {
		deviceTotal += row.Count
	}
	if deviceTotal == 0 {
		return stats
	}

	sum := 0
	largest := 0
	for i, row := range rows {
		pct := int(math.Round(float64(row.Count) / float64(deviceTotal) * 100))
		sum += pct
		if row.Count > rows[largest].Count {
			largest = i
		}
		stats = append(stats, models.DeviceStat{Device: row.Device, Count: row.Count, Percentage: pct})
	}
	stats[largest].Percentage += 100 - sum

	return stats
}
