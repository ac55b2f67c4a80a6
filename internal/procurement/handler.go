package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/officine-erp/officine-erp/internal/platform/httpx"
	"github.com/officine-erp/officine-erp/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/receipts", h.listReceipts)
	r.Post("/receipts", h.createReceipt)
	r.Get("/receipts/{id}", h.showReceipt)
	r.Post("/receipts/{id}/post", h.postReceipt)
	r.Post("/receipts/{id}/cancel", h.cancelReceipt)
	r.Post("/imports", h.importLots)
}

type receiptLinePayload struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LotNumber string          `json:"lot_number" validate:"max=100"`
	ExpiresAt *time.Time      `json:"expires_at"`
	Location  string          `json:"location" validate:"max=100"`
}

type createReceiptPayload struct {
	Number     string               `json:"number" validate:"max=100"`
	SupplierID int64                `json:"supplier_id" validate:"required,gt=0"`
	ReceivedAt *time.Time           `json:"received_at"`
	Note       string               `json:"note" validate:"max=500"`
	Lines      []receiptLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type importLotsPayload struct {
	Reason string               `json:"reason" validate:"max=500"`
	Rows   []receiptLinePayload `json:"rows" validate:"required,min=1,dive"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var payload createReceiptPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateReceiptInput{
		TenantID:   tenantID,
		Number:     payload.Number,
		SupplierID: payload.SupplierID,
		Note:       payload.Note,
		ActorID:    shared.ActorFromContext(r.Context()),
		Lines:      payloadLines(payload.Lines),
	}
	if payload.ReceivedAt != nil {
		input.ReceivedAt = *payload.ReceivedAt
	}

	receipt, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, "create receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "receipt id must be numeric")
		return
	}
	if err := h.service.PostReceipt(r.Context(), tenantID, id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "post receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "posted"})
}

func (h *Handler) cancelReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "receipt id must be numeric")
		return
	}
	if err := h.service.CancelReceipt(r.Context(), tenantID, id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "cancel receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
}

func (h *Handler) showReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "receipt id must be numeric")
		return
	}
	receipt, lines, err := h.service.Receipt(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, "get receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"receipt": receipt,
		"lines":   lines,
	})
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	receipts, err := h.service.Receipts(r.Context(), tenantID, limit)
	if err != nil {
		h.respondError(w, "list receipts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": receipts})
}

func (h *Handler) importLots(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var payload importLotsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lots, err := h.service.ImportLots(r.Context(), ImportLotsInput{
		TenantID: tenantID,
		ActorID:  shared.ActorFromContext(r.Context()),
		Reason:   payload.Reason,
		Rows:     payloadLines(payload.Rows),
	})
	if err != nil {
		h.respondError(w, "import lots", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"lots": lots})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "receipt not found")
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Already Processed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func payloadLines(lines []receiptLinePayload) []ReceiptLineInput {
	out := make([]ReceiptLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, ReceiptLineInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			LotNumber: line.LotNumber,
			ExpiresAt: line.ExpiresAt,
			Location:  line.Location,
		})
	}
	return out
}
