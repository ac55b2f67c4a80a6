package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/officine-erp/officine-erp/internal/jobs"
	"github.com/officine-erp/officine-erp/internal/stock"
)

// ExpiryPort finds lots expiring before a cutoff.
type ExpiryPort interface {
	ExpiringLots(ctx context.Context, tenantID int64, cutoff time.Time) ([]stock.Lot, error)
}

// LotExpiryScanJob warns each tenant about lots expiring within its window.
type LotExpiryScanJob struct {
	Tenants TenantPort
	Lots    ExpiryPort
	Mailer  MailerPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLotExpiryScanJob initialises the expiry scan handler.
func NewLotExpiryScanJob(tenants TenantPort, lots ExpiryPort, mailer MailerPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *LotExpiryScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LotExpiryScanJob{
		Tenants: tenants,
		Lots:    lots,
		Mailer:  mailer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry scan.
func (j *LotExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Tenants == nil || j.Lots == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload LotExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLotExpiryScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var tenants []int64
	if payload.TenantID > 0 {
		tenants = []int64{payload.TenantID}
	} else {
		tenants, resultErr = j.Tenants.TenantIDs(ctx)
		if resultErr != nil {
			return resultErr
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, tenantID := range tenants {
		tenantID := tenantID
		group.Go(func() error {
			return j.scanTenant(ctx, tenantID, payload.WindowDays)
		})
	}
	resultErr = group.Wait()
	return resultErr
}

func (j *LotExpiryScanJob) scanTenant(ctx context.Context, tenantID int64, windowDays int) error {
	settings, err := j.Tenants.AlertSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("expiry scan tenant %d: %w", tenantID, err)
	}
	if windowDays <= 0 {
		windowDays = settings.ExpiryWindowDays
	}
	cutoff := j.clock().AddDate(0, 0, windowDays)

	lots, err := j.Lots.ExpiringLots(ctx, tenantID, cutoff)
	if err != nil {
		return fmt.Errorf("expiry scan tenant %d: %w", tenantID, err)
	}
	if len(lots) == 0 {
		return nil
	}

	j.Logger.Warn("expiring lots found",
		slog.Int64("tenant_id", tenantID),
		slog.Int("count", len(lots)),
		slog.Int("window_days", windowDays))

	if j.Mailer == nil || settings.NotifyEmail == "" {
		return nil
	}
	body := fmt.Sprintf("Lots expiring within %d day(s):\n\n", windowDays)
	for _, lot := range lots {
		expiry := ""
		if lot.ExpiresAt != nil {
			expiry = lot.ExpiresAt.Format("2006-01-02")
		}
		body += fmt.Sprintf("- lot %s (product %d): %d unit(s), expires %s\n",
			lot.LotNumber, lot.ProductID, lot.QuantityRemaining, expiry)
	}
	_, err = j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      settings.NotifyEmail,
		Subject: fmt.Sprintf("Expiry alert: %d lot(s) expiring soon", len(lots)),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("expiry scan tenant %d: enqueue email: %w", tenantID, err)
	}
	return nil
}
