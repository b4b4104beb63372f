// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// AnalyticsEvent represents a single analytics event as stored in ClickHouse.
// Events are append-only; the aggregation path never mutates them.
type AnalyticsEvent struct {
	EventID   string          `json:"eventId"`
	TenantID  string          `json:"tenantId"`
	EventType string          `json:"eventType"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	PagePath  string          `json:"pagePath,omitempty"`
	Browser   string          `json:"browser,omitempty"`
	Device    string          `json:"device,omitempty"`
	Country   string          `json:"country,omitempty"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// Metric is a numeric measurement reported by a tenant's service.
// Same append-only treatment as events.
type Metric struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Service   string    `json:"service"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
