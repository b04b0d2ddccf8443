package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/metrics"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/observability"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/invoices"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-sales/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	CustomerHandler      *customers.Handler
	QuotationHandler     *quotations.Handler
	OrderHandler         *orders.Handler
	InvoiceHandler       *invoices.Handler
	FollowUpHandler      *schedule.Handler
	CommunicationHandler *communications.Handler
	ReportHandler        *metrics.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults. The JSON API
// lives under /api/v1; provider webhooks sit outside it.
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

	r.Route("/api/v1", func(r chi.Router) {
		if params.CustomerHandler != nil {
			params.CustomerHandler.MountRoutes(r)
		}
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
		}
		if params.OrderHandler != nil {
			params.OrderHandler.MountRoutes(r)
		}
		if params.InvoiceHandler != nil {
			params.InvoiceHandler.MountRoutes(r)
		}
		if params.FollowUpHandler != nil {
			params.FollowUpHandler.MountRoutes(r)
		}
		if params.CommunicationHandler != nil {
			params.CommunicationHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
	})

	if params.CommunicationHandler != nil {
		params.CommunicationHandler.MountWebhooks(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
