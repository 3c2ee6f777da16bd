package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerline/deposit-core/internal/beat"
	"github.com/ledgerline/deposit-core/internal/dividend"
	"github.com/ledgerline/deposit-core/internal/observability"
	"github.com/ledgerline/deposit-core/internal/transaction"
	"github.com/ledgerline/deposit-core/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	BeatHandler        *beat.Handler
	DividendHandler    *dividend.Handler
	TransactionHandler *transaction.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
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

	guard := RequireToken(params.Logger, params.Config.APITokenHash)

	if params.BeatHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(guard)
			params.BeatHandler.MountRoutes(r)
		})
	}
	if params.DividendHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(guard)
			params.DividendHandler.MountRoutes(r)
		})
	}
	if params.TransactionHandler != nil {
		r.Route("/transactions", params.TransactionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
