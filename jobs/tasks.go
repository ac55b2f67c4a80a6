package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskStockAlertScan classifies every product of every tenant and raises
	// alerts for rupture and critique positions.
	TaskStockAlertScan = "stock:alert_scan"
	// TaskLotExpiryScan finds lots expiring within each tenant's window.
	TaskLotExpiryScan = "stock:expiry_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// StockAlertScanPayload scopes an alert scan. A zero TenantID scans every
// tenant.
type StockAlertScanPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewStockAlertScanTask constructs the alert scan task.
func NewStockAlertScanTask(payload StockAlertScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlertScan, data), nil
}

// LotExpiryScanPayload scopes an expiry scan. A zero TenantID scans every
// tenant; a zero WindowDays uses each tenant's configured window.
type LotExpiryScanPayload struct {
	TenantID   int64 `json:"tenant_id"`
	WindowDays int   `json:"window_days"`
}

// NewLotExpiryScanTask constructs the expiry scan task.
func NewLotExpiryScanTask(payload LotExpiryScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotExpiryScan, data), nil
}
