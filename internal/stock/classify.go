package stock

import "errors"

// StockStatus classifies the current quantity against the resolved thresholds.
type StockStatus string

const (
	// StatusRupture means out of stock.
	StatusRupture StockStatus = "rupture"
	// StatusCritique means at or below the critical threshold.
	StatusCritique StockStatus = "critique"
	// StatusFaible means at or below the low threshold.
	StatusFaible StockStatus = "faible"
	// StatusNormal means within the normal band up to the maximum.
	StatusNormal StockStatus = "normal"
	// StatusSurstock means above the maximum threshold.
	StatusSurstock StockStatus = "surstock"
)

// Rotation coarsely classifies how quickly the stock turns over.
type Rotation string

const (
	RotationRapide  Rotation = "rapide"
	RotationNormale Rotation = "normale"
	RotationLente   Rotation = "lente"
)

// Urgency maps a status onto a display severity.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyDanger   Urgency = "danger"
	UrgencyWarning  Urgency = "warning"
	UrgencyInfo     Urgency = "info"
)

// Classification is the derived display state of a product snapshot.
type Classification struct {
	Status   StockStatus `json:"status"`
	Rotation Rotation    `json:"rotation"`
	Urgency  Urgency     `json:"urgency"`
}

// ErrInvalidThresholds indicates a malformed triple: negative values or an
// ordering other than critical <= low <= maximum.
var ErrInvalidThresholds = errors.New("stock: malformed threshold triple")

// Classify derives status, rotation and urgency from the current quantity and a
// resolved threshold triple. Malformed input is rejected rather than silently
// misclassified.
func Classify(quantity int64, th StockThresholds) (Classification, error) {
	if quantity < 0 {
		return Classification{}, ErrInvalidRequest
	}
	if th.Critical < 0 || th.Low < 0 || th.Maximum < 0 || th.Critical > th.Low || th.Low > th.Maximum {
		return Classification{}, ErrInvalidThresholds
	}

	var status StockStatus
	switch {
	case quantity == 0:
		status = StatusRupture
	case quantity <= th.Critical:
		status = StatusCritique
	case quantity <= th.Low:
		status = StatusFaible
	case quantity <= th.Maximum:
		status = StatusNormal
	default:
		status = StatusSurstock
	}

	rotation := RotationLente
	switch {
	case quantity <= th.Low:
		rotation = RotationRapide
	case quantity <= th.Maximum:
		rotation = RotationNormale
	}

	return Classification{Status: status, Rotation: rotation, Urgency: urgencyFor(status)}, nil
}

func urgencyFor(status StockStatus) Urgency {
	switch status {
	case StatusRupture:
		return UrgencyCritical
	case StatusCritique:
		return UrgencyDanger
	case StatusFaible, StatusSurstock:
		return UrgencyWarning
	default:
		return UrgencyInfo
	}
}
