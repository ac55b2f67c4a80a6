package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officine-erp/officine-erp/internal/masterdata/products"
	"github.com/officine-erp/officine-erp/internal/masterdata/suppliers"
	"github.com/officine-erp/officine-erp/internal/observability"
	"github.com/officine-erp/officine-erp/internal/procurement"
	"github.com/officine-erp/officine-erp/internal/sales"
	"github.com/officine-erp/officine-erp/internal/settings"
	"github.com/officine-erp/officine-erp/internal/stock"
	"github.com/officine-erp/officine-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	StockHandler       *stock.Handler
	ProductsHandler    *products.Handler
	SuppliersHandler   *suppliers.Handler
	SettingsHandler    *settings.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	JobHandler         *jobs.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Officine defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.StockHandler != nil {
		r.Route("/stock", params.StockHandler.MountRoutes)
	}
	if params.ProductsHandler != nil {
		r.Route("/products", params.ProductsHandler.MountRoutes)
	}
	if params.SuppliersHandler != nil {
		r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
