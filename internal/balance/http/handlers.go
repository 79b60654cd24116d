// Package balancehttp exposes the balance service over JSON endpoints.
package balancehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerlens/ledgerlens/internal/balance"
	"github.com/ledgerlens/ledgerlens/internal/platform/httpx"
	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

// Service is the business contract the handlers need.
type Service interface {
	Balances(ctx context.Context, req balance.BalanceRequest) (balance.BalanceResult, error)
	NetIncome(ctx context.Context, req balance.MetricRequest) (balance.MetricResult, error)
	RetainedEarnings(ctx context.Context, req balance.MetricRequest) (balance.MetricResult, error)
	CTA(ctx context.Context, req balance.MetricRequest) (balance.MetricResult, error)
	AccountTitle(ctx context.Context, number string) (string, error)
	Warmup(ctx context.Context) error
}

// CacheAdmin covers the cache lifecycle and lookup listing endpoints.
type CacheAdmin interface {
	Clear(ctx context.Context) error
	LookupEntries(kind string) map[string]int64
}

// lookupKinds drives the /lookups/all listing.
var lookupKinds = []string{
	balance.LookupSubsidiary,
	balance.LookupDepartment,
	balance.LookupLocation,
	balance.LookupClass,
	balance.LookupBudgetCategory,
}

// Handler serves balance queries, derived metrics, and cache admin.
type Handler struct {
	logger  *slog.Logger
	service Service
	cache   CacheAdmin
}

// NewHandler builds the balance handler set.
func NewHandler(logger *slog.Logger, service Service, cache CacheAdmin) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, cache: cache}
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	var req balance.BalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	result, err := h.service.Balances(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, "balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBalanceView(result))
}

func (h *Handler) handleMetric(metric func(context.Context, balance.MetricRequest) (balance.MetricResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := metricRequestFromQuery(r)
		result, err := metric(r.Context(), req)
		if err != nil {
			h.respondDomainError(w, "metric", err)
			return
		}
		httpx.JSON(w, http.StatusOK, newMetricView(result))
	}
}

func (h *Handler) handleAccountTitle(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	title, err := h.service.AccountTitle(r.Context(), number)
	if err != nil {
		h.respondDomainError(w, "account title", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number, "title": title})
}

func (h *Handler) handleWarmup(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Warmup(r.Context()); err != nil {
		// Partial warmup still leaves usable lookups; report and accept.
		h.logger.Warn("lookup warmup incomplete", slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "partial", "detail": err.Error()})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "warm"})
}

func (h *Handler) handleLookups(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[string]int64, len(lookupKinds))
	for _, kind := range lookupKinds {
		out[kind] = h.cache.LookupEntries(kind)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error("cache clear failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Cache Clear Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, balance.ErrPeriodUnresolved):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Period", err.Error())
	case errors.Is(err, balance.ErrNoAccounts):
		httpx.Problem(w, http.StatusNotFound, "No Accounts Matched", err.Error())
	case errors.Is(err, netsuite.ErrRateLimited):
		httpx.Problem(w, http.StatusServiceUnavailable, "Upstream Rate Limited", "the ledger is throttling requests, retry shortly")
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Ledger Query Failed", err.Error())
	}
}

func metricRequestFromQuery(r *http.Request) balance.MetricRequest {
	q := r.URL.Query()
	req := balance.MetricRequest{
		Period:     q.Get("period"),
		FromPeriod: q.Get("fromPeriod"),
		Filters: balance.Filters{
			Subsidiary: q.Get("subsidiary"),
			Department: q.Get("department"),
			Location:   q.Get("location"),
			Class:      q.Get("class"),
		},
	}
	if book, err := strconv.ParseInt(q.Get("book"), 10, 64); err == nil {
		req.Filters.Book = book
	}
	return req
}
