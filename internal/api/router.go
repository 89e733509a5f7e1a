package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastprodman/paperledger/internal/metrics"
)

// NewRouter builds the chi router with all API endpoints registered.
// stream may be nil to disable the websocket endpoint.
func NewRouter(svc LedgerService, stream EventStream, log *slog.Logger) http.Handler {
	h := NewHandler(svc, stream, log)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/user/{userId}", func(r chi.Router) {
		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/portfolio", h.GetPortfolioHandler)
		r.Get("/ledger", h.ListLedgerHandler)
		r.Get("/positions", h.ListPositionsHandler)
		r.Post("/positions", h.OpenPositionHandler)
		r.Post("/predictions/{predictionId}/resolve", h.ResolveHandler)
		r.Post("/bankroll/reset", h.ResetBankrollHandler)

		if stream != nil {
			r.Get("/events", h.EventsHandler)
		}
	})

	return r
}
