// Package audithttp serves the ledger query log.
package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerlens/ledgerlens/internal/audit"
	"github.com/ledgerlens/ledgerlens/internal/platform/httpx"
)

// Handler serves query log listings.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the audit endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/audit/queries", h.handleQueries)
}

func (h *Handler) handleQueries(w http.ResponseWriter, r *http.Request) {
	filters := audit.QueryFilters{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Limit", "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Since", "since must be RFC3339")
			return
		}
		filters.Since = since
	}

	records, err := h.service.Recent(r.Context(), filters)
	if err != nil {
		h.logger.Error("query log listing failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Query Log Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queries": records})
}
