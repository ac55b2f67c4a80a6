package suppliers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mdshared "github.com/officine-erp/officine-erp/internal/masterdata/shared"
	"github.com/officine-erp/officine-erp/internal/platform/httpx"
	"github.com/officine-erp/officine-erp/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers supplier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
}

type supplierForm struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	LeadTimeDays int    `json:"lead_time_days"`
	IsActive     bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := mdshared.ListFilters{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}

	items, total, err := h.service.List(r.Context(), tenantID, filters)
	if err != nil {
		h.logger.Error("list suppliers failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filters.Normalize()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"total":      total,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "supplier id must be numeric")
		return
	}

	supplier, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var form supplierForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	supplier, err := h.service.Create(r.Context(), formToSupplier(tenantID, form))
	if err != nil {
		h.respondError(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "supplier id must be numeric")
		return
	}
	var form supplierForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	if err := h.service.Update(r.Context(), tenantID, id, formToSupplier(tenantID, form)); err != nil {
		h.respondError(w, "update supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "supplier id must be numeric")
		return
	}
	if err := h.service.Deactivate(r.Context(), tenantID, id); err != nil {
		h.respondError(w, "deactivate supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, mdshared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "supplier not found")
	case errors.Is(err, mdshared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "supplier code already exists")
	case errors.Is(err, mdshared.ErrInvalidID), errors.Is(err, mdshared.ErrValidation), errors.Is(err, mdshared.ErrRequiredField):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func formToSupplier(tenantID int64, form supplierForm) Supplier {
	return Supplier{
		TenantID:     tenantID,
		Code:         form.Code,
		Name:         form.Name,
		Address:      form.Address,
		Email:        form.Email,
		Phone:        form.Phone,
		LeadTimeDays: form.LeadTimeDays,
		IsActive:     form.IsActive,
	}
}
