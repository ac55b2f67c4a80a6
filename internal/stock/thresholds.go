package stock

// Threshold is an optional positive stock threshold. A zero value and an absent
// value both mean "not configured": a product explicitly saved with 0 must not
// silently disable alerting, it falls through to the next cascade level.
type Threshold struct {
	Value int64
	Valid bool
}

// NewThreshold builds a Threshold, treating values <= 0 as unset.
func NewThreshold(value int64) Threshold {
	if value <= 0 {
		return Threshold{}
	}
	return Threshold{Value: value, Valid: true}
}

// ThresholdFromPtr converts a nullable column value at the ingestion boundary.
func ThresholdFromPtr(value *int64) Threshold {
	if value == nil {
		return Threshold{}
	}
	return NewThreshold(*value)
}

// ProductThresholds carries the per-product override values.
type ProductThresholds struct {
	Critical Threshold
	Low      Threshold
	Maximum  Threshold
}

// TenantAlertSettings carries the per-tenant fallback thresholds plus the
// notification target used by the alert scan job.
type TenantAlertSettings struct {
	TenantID         int64
	Critical         Threshold
	Low              Threshold
	Maximum          Threshold
	NotifyEmail      string
	ExpiryWindowDays int
}

// StockThresholds is the fully resolved triple used for one classification.
type StockThresholds struct {
	Critical int64
	Low      int64
	Maximum  int64
}

// System defaults, applied when neither the product nor the tenant configures a
// threshold. The reference system used two different triples in different call
// sites; this deployment standardises on 2/5/10.
const (
	DefaultCritical = 2
	DefaultLow      = 5
	DefaultMaximum  = 10
)

// ResolveThresholds applies the three-level cascade independently per threshold
// kind: product override, then tenant setting, then system default. It always
// returns a complete triple.
func ResolveThresholds(product ProductThresholds, tenant TenantAlertSettings) StockThresholds {
	return StockThresholds{
		Critical: resolveOne(product.Critical, tenant.Critical, DefaultCritical),
		Low:      resolveOne(product.Low, tenant.Low, DefaultLow),
		Maximum:  resolveOne(product.Maximum, tenant.Maximum, DefaultMaximum),
	}
}

func resolveOne(product, tenant Threshold, fallback int64) int64 {
	if product.Valid {
		return product.Value
	}
	if tenant.Valid {
		return tenant.Value
	}
	return fallback
}
