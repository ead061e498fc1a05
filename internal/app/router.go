package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	closehttp "github.com/razonete/razonete/internal/close/http"
	"github.com/razonete/razonete/internal/observability"
	reportshttp "github.com/razonete/razonete/internal/reports/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	ReportsHandler *reportshttp.Handler
	CloseHandler   *closehttp.Handler
}

// NewRouter assembles the application router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
		if params.CloseHandler != nil {
			params.CloseHandler.MountRoutes(r)
		}
	})
	return r
}
