// Package settings stores the per-tenant alert configuration: the fallback
// stock thresholds, the alert recipient and the expiry scan window.
package settings

import "time"

// AlertSettings is the persisted per-tenant alert configuration. Threshold
// columns are nullable; NULL and 0 both mean "use the platform default".
type AlertSettings struct {
	TenantID          int64     `json:"tenant_id"`
	ThresholdCritical *int64    `json:"threshold_critical"`
	ThresholdLow      *int64    `json:"threshold_low"`
	ThresholdMaximum  *int64    `json:"threshold_maximum"`
	NotifyEmail       string    `json:"notify_email"`
	ExpiryWindowDays  int       `json:"expiry_window_days"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultExpiryWindowDays bounds the expiry scan when a tenant has not
// configured a window.
const DefaultExpiryWindowDays = 30
