package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Evaluations EvaluationService
	// Optional: reported by /healthz.
	Scheduler activeCounter
	// Optional: served at /metrics when set.
	MetricsHandler http.Handler
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evalHandlers := &EvaluationHandlers{Svc: services.Evaluations, Logger: logger}
	registerEvaluationRoutes(mux, evalHandlers)

	health := healthHandler(services.Scheduler)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if services.MetricsHandler != nil {
		mux.Handle("GET /metrics", services.MetricsHandler)
	}

	return LimitBody(services.MaxBodyBytes)(mux)
}

func registerEvaluationRoutes(mux *http.ServeMux, h *EvaluationHandlers) {
	mux.HandleFunc("POST /api/evaluations", h.Submit)
	mux.HandleFunc("GET /api/evaluations", h.List)
	mux.HandleFunc("GET /api/evaluations/{id}", h.Get)
	mux.HandleFunc("POST /api/evaluations/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/catalog", h.Catalog)
}
