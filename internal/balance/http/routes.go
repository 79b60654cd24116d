package balancehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const (
	rateLimit  = 30
	rateWindow = time.Minute
)

// MountRoutes registers the balance endpoints. Query endpoints sit behind a
// per-client limiter: every request here can fan out into several upstream
// ledger calls, and the upstream has its own hard concurrency ceiling.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/balance", h.handleBalances)
		gr.Get("/metrics/net-income", h.handleMetric(h.service.NetIncome))
		gr.Get("/metrics/retained-earnings", h.handleMetric(h.service.RetainedEarnings))
		gr.Get("/metrics/cta", h.handleMetric(h.service.CTA))
	})
	r.Get("/accounts/{number}/title", h.handleAccountTitle)
	r.Get("/lookups/all", h.handleLookups)
	r.Post("/lookups/warmup", h.handleWarmup)
	r.Post("/cache/clear", h.handleCacheClear)
}
