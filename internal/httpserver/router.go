package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rhbridge/internal/auth"
	"rhbridge/internal/httputil"
	"rhbridge/internal/ticker"
	"rhbridge/internal/trading"
)

type RouterDeps struct {
	AuthHandler   *auth.Handler
	TradeHandler  *trading.Handler
	TickerHandler *ticker.Handler
	InternalToken string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(SecurityHeaders)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/status", d.AuthHandler.Status)
		r.Post("/login", d.AuthHandler.Login)
		r.Post("/sms", d.AuthHandler.SubmitCode)
	})

	r.Route("/api/trade", func(r chi.Router) {
		r.Post("/buy", d.TradeHandler.Buy)
		r.Post("/sell", d.TradeHandler.Sell)
		r.Get("/stops", d.TradeHandler.Stops)
	})

	r.Route("/api/tickers", func(r chi.Router) {
		r.Get("/", d.TickerHandler.State)
		r.Get("/ws", d.TickerHandler.ServeWS)
		r.With(InternalAuth(d.InternalToken)).Post("/ingest", d.TickerHandler.Ingest)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
