package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/officine-erp/officine-erp/internal/platform/httpx"
	"github.com/officine-erp/officine-erp/internal/shared"
)

// Handler wires the JSON endpoints of the stock engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	overview  *Overview
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, overview *Overview) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, overview: overview, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.listLots)
	r.Get("/lots/{lotID}/movements", h.listMovements)
	r.Get("/products/{productID}/status", h.productStatus)
	r.Get("/products/{productID}/thresholds", h.productThresholds)
	r.Get("/overview", h.handleOverview)

	r.Group(func(r chi.Router) {
		// Checkout traffic spikes; bound it separately from the global limit.
		r.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/allocations", h.handleAllocate)
	})
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/returns", h.handleReturn)
	r.Post("/destructions", h.handleDestroy)
}

type allocateRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type adjustRequest struct {
	LotID  int64  `json:"lot_id" validate:"required,gt=0"`
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type transferRequest struct {
	FromLotID int64  `json:"from_lot_id" validate:"required,gt=0"`
	ToLotID   int64  `json:"to_lot_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type lotQuantityRequest struct {
	LotID    int64  `json:"lot_id" validate:"required,gt=0"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plan, err := h.service.Allocate(r.Context(), AllocationInput{
		TenantID:  tenantID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		ActorID:   shared.ActorFromContext(r.Context()),
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondStockError(w, "allocate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		TenantID: tenantID,
		LotID:    req.LotID,
		Delta:    req.Delta,
		ActorID:  shared.ActorFromContext(r.Context()),
		Reason:   req.Reason,
	})
	if err != nil {
		h.respondStockError(w, "adjust", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		TenantID:  tenantID,
		FromLotID: req.FromLotID,
		ToLotID:   req.ToLotID,
		Quantity:  req.Quantity,
		ActorID:   shared.ActorFromContext(r.Context()),
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondStockError(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	h.handleLotQuantity(w, r, "return", func(tenantID, actorID int64, req lotQuantityRequest) (Movement, error) {
		return h.service.Return(r.Context(), ReturnInput{
			TenantID: tenantID,
			LotID:    req.LotID,
			Quantity: req.Quantity,
			ActorID:  actorID,
			Reason:   req.Reason,
		})
	})
}

func (h *Handler) handleDestroy(w http.ResponseWriter, r *http.Request) {
	h.handleLotQuantity(w, r, "destroy", func(tenantID, actorID int64, req lotQuantityRequest) (Movement, error) {
		return h.service.Destroy(r.Context(), DestructionInput{
			TenantID: tenantID,
			LotID:    req.LotID,
			Quantity: req.Quantity,
			ActorID:  actorID,
			Reason:   req.Reason,
		})
	})
}

func (h *Handler) handleLotQuantity(w http.ResponseWriter, r *http.Request, op string, fn func(tenantID, actorID int64, req lotQuantityRequest) (Movement, error)) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var req lotQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := fn(tenantID, shared.ActorFromContext(r.Context()), req)
	if err != nil {
		h.respondStockError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id query parameter required")
		return
	}
	lots, err := h.service.Lots(r.Context(), tenantID, productID)
	if err != nil {
		h.respondStockError(w, "list lots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	lotID, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil || lotID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lot id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), tenantID, lotID, limit)
	if err != nil {
		h.respondStockError(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) productStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	status, err := h.service.Status(r.Context(), tenantID, productID)
	if err != nil {
		h.respondStockError(w, "product status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) productThresholds(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	th, err := h.service.ResolveThresholds(r.Context(), tenantID, productID)
	if err != nil {
		h.respondStockError(w, "resolve thresholds", err)
		return
	}
	httpx.JSON(w, http.StatusOK, th)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	snapshot, err := h.overview.Snapshot(r.Context(), tenantID)
	if err != nil {
		h.respondStockError(w, "overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

// respondStockError maps the stock error taxonomy onto HTTP statuses. Invariant
// violations are a system fault: logged loudly, surfaced as a generic 500.
func (h *Handler) respondStockError(w http.ResponseWriter, op string, err error) {
	var insufficient *InsufficientStockError
	var invariant *InvariantViolationError
	switch {
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":     "Insufficient Stock",
			"status":    http.StatusConflict,
			"product":   insufficient.ProductID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
			"shortfall": insufficient.Shortfall(),
		})
	case errors.As(err, &invariant):
		h.logger.Error("stock invariant violated", slog.String("op", op), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	case errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidThresholds), errors.Is(err, ErrLotMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientQuantity):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "stock is contended, retry shortly")
	default:
		h.logger.Error("stock operation failed", slog.String("op", op), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
