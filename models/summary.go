// api/models/summary.go
package models

import "time"

// AnalyticsSummary is the cacheable dashboard overview for one tenant and
// one query window. Once composed it is never mutated in place; a new one
// is built on every cache miss.
type AnalyticsSummary struct {
	TotalEvents    uint64           `json:"totalEvents"`
	UniqueUsers    uint64           `json:"uniqueUsers"`
	EventsByType   []EventTypeCount `json:"eventsByType"`
	TimeSeriesData []TimeBucket     `json:"timeSeriesData"`
	TopPages       []PageCount      `json:"topPages"`
	DeviceStats    []DeviceStat     `json:"deviceStats"`
}

type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     uint64 `json:"count"`
}

// TimeBucket is one point of the time series. Bucket is the inclusive start
// of a half-open interval whose width is the window's granularity.
type TimeBucket struct {
	Bucket time.Time `json:"bucket"`
	Count  uint64    `json:"count"`
}

type PageCount struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

// DeviceStat carries both the raw count and the integer percentage of
// device-tagged events. Percentages across a summary sum to exactly 100.
type DeviceStat struct {
	Device     string `json:"device"`
	Count      uint64 `json:"count"`
	Percentage int    `json:"percentage"`
}
