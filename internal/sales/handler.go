package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/officine-erp/officine-erp/internal/platform/httpx"
	"github.com/officine-erp/officine-erp/internal/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
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

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)

	r.Group(func(r chi.Router) {
		// The counter hammers this endpoint; keep its limit separate.
		r.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/checkout", h.checkout)
	})
}

type checkoutLinePayload struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type checkoutPayload struct {
	Number string                `json:"number" validate:"max=100"`
	Lines  []checkoutLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var payload checkoutPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CheckoutInput{
		TenantID: tenantID,
		ActorID:  shared.ActorFromContext(r.Context()),
		Number:   payload.Number,
	}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, CheckoutLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	result, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.respondError(w, "checkout", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	sale, lines, err := h.service.Sale(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sale":          sale,
		"lines":         lines,
		"receipt_total": FormatReceiptTotal(sale.Total),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sales, err := h.service.Sales(r.Context(), tenantID, limit)
	if err != nil {
		h.respondError(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": sales})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":      "Insufficient Stock",
			"status":     http.StatusConflict,
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
			"shortfall":  insufficient.Shortfall(),
		})
	case errors.Is(err, stock.ErrConcurrentModification):
		httpx.Problem(w, http.StatusServiceUnavailable, "Concurrent Modification", "stock contention, retry the checkout")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "sale not found")
	case errors.Is(err, ErrValidation), errors.Is(err, stock.ErrInvalidRequest):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
