package suppliers

import (
	"time"
)

// Supplier represents a wholesaler or laboratory the pharmacy orders from.
type Supplier struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	LeadTimeDays int       `json:"lead_time_days"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
