package settings

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

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

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/alerts", h.get)
	r.Put("/alerts", h.update)
}

type alertSettingsForm struct {
	ThresholdCritical *int64 `json:"threshold_critical" validate:"omitempty,gte=0"`
	ThresholdLow      *int64 `json:"threshold_low" validate:"omitempty,gte=0"`
	ThresholdMaximum  *int64 `json:"threshold_maximum" validate:"omitempty,gte=0"`
	NotifyEmail       string `json:"notify_email" validate:"omitempty,email"`
	ExpiryWindowDays  int    `json:"expiry_window_days" validate:"gte=0,lte=365"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	s, err := h.service.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("get settings failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing X-Tenant-ID header")
		return
	}
	var form alertSettingsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	saved, err := h.service.Update(r.Context(), AlertSettings{
		TenantID:          tenantID,
		ThresholdCritical: form.ThresholdCritical,
		ThresholdLow:      form.ThresholdLow,
		ThresholdMaximum:  form.ThresholdMaximum,
		NotifyEmail:       form.NotifyEmail,
		ExpiryWindowDays:  form.ExpiryWindowDays,
	})
	if err != nil {
		if errors.Is(err, shared.ErrTenantRequired) {
			httpx.Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
			return
		}
		h.logger.Error("update settings failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}
