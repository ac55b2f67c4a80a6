package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/officine-erp/officine-erp/internal/jobs"
	"github.com/officine-erp/officine-erp/internal/stock"
)

// TenantPort lists the tenants to scan and resolves their alert settings.
type TenantPort interface {
	TenantIDs(ctx context.Context) ([]int64, error)
	AlertSettings(ctx context.Context, tenantID int64) (stock.TenantAlertSettings, error)
}

// OverviewPort classifies a tenant's whole catalog.
type OverviewPort interface {
	Snapshot(ctx context.Context, tenantID int64) (stock.OverviewSnapshot, error)
}

// MailerPort enqueues alert emails.
type MailerPort interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// StockAlertScanJob walks every tenant's stock overview and raises an email
// alert for products in rupture or critique.
type StockAlertScanJob struct {
	Tenants  TenantPort
	Overview OverviewPort
	Mailer   MailerPort
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewStockAlertScanJob initialises the alert scan handler.
func NewStockAlertScanJob(tenants TenantPort, overview OverviewPort, mailer MailerPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAlertScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockAlertScanJob{Tenants: tenants, Overview: overview, Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle executes the alert scan.
func (j *StockAlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Tenants == nil || j.Overview == nil {
		return errors.New("alert scan: handler not configured")
	}
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskStockAlertScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tenants, err := j.tenantScope(ctx, payload.TenantID)
	if err != nil {
		resultErr = err
		return resultErr
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, tenantID := range tenants {
		tenantID := tenantID
		group.Go(func() error {
			return j.scanTenant(ctx, tenantID)
		})
	}
	resultErr = group.Wait()
	return resultErr
}

func (j *StockAlertScanJob) tenantScope(ctx context.Context, tenantID int64) ([]int64, error) {
	if tenantID > 0 {
		return []int64{tenantID}, nil
	}
	return j.Tenants.TenantIDs(ctx)
}

func (j *StockAlertScanJob) scanTenant(ctx context.Context, tenantID int64) error {
	settings, err := j.Tenants.AlertSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("alert scan tenant %d: %w", tenantID, err)
	}
	snapshot, err := j.Overview.Snapshot(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("alert scan tenant %d: %w", tenantID, err)
	}

	var critical []stock.OverviewEntry
	for _, entry := range snapshot.Products {
		switch entry.Classification.Status {
		case stock.StatusRupture, stock.StatusCritique:
			critical = append(critical, entry)
			j.Metrics.AddAlerts(string(entry.Classification.Urgency), tenantID, 1)
		}
	}
	if len(critical) == 0 {
		return nil
	}

	j.Logger.Warn("stock alerts raised",
		slog.Int64("tenant_id", tenantID),
		slog.Int("count", len(critical)))

	if j.Mailer == nil || settings.NotifyEmail == "" {
		return nil
	}
	body := alertBody(critical)
	_, err = j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      settings.NotifyEmail,
		Subject: fmt.Sprintf("Stock alert: %d product(s) need attention", len(critical)),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("alert scan tenant %d: enqueue email: %w", tenantID, err)
	}
	return nil
}

func alertBody(entries []stock.OverviewEntry) string {
	body := "The following products are at or below their critical threshold:\n\n"
	for _, entry := range entries {
		body += fmt.Sprintf("- %s (id %d): %d unit(s), status %s\n",
			entry.ProductName, entry.ProductID, entry.Quantity, entry.Classification.Status)
	}
	return body
}
