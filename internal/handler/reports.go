package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/middleware"
)

// ReportsHandler handles report endpoints. Reports are one-off
// reads over the same live order set the dashboard projects, so they share
// the projection provider rather than issuing their own queries.
type ReportsHandler struct {
	provider ProjectionProvider
	clock    clock.Clock
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(provider ProjectionProvider, clk clock.Clock) *ReportsHandler {
	return &ReportsHandler{provider: provider, clock: clk}
}

// RegisterRoutes registers tenant-scoped report endpoints.
// Expected to be mounted inside a tenant-scoped subrouter: /tenants/{tid}/reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/top-menus", h.TopMenus)
	r.Get("/top-categories", h.TopCategories)
	r.Get("/platform-summary", h.PlatformSummary)
	r.Get("/payment-summary", h.PaymentSummary)
}

// --- Response types ---

type paymentSummaryResponse struct {
	PaymentMethod string `json:"payment_method"`
	OrderCount    int    `json:"order_count"`
}

// --- Handlers ---

// TopMenus returns the best selling menu items by revenue.
func (h *ReportsHandler) TopMenus(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownBodies(stats.TopMenus(parseLimit(r))))
}

// TopCategories returns the best selling categories by revenue.
func (h *ReportsHandler) TopCategories(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownBodies(stats.TopCategories(parseLimit(r))))
}

// PlatformSummary returns per-platform order counts, revenue, commission
// and net revenue.
func (h *ReportsHandler) PlatformSummary(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	resp := make([]platformStatBody, len(stats.PlatformBreakdown))
	for i, p := range stats.PlatformBreakdown {
		resp[i] = platformStatBody{
			Platform:   p.Platform,
			OrderCount: p.OrderCount,
			Revenue:    p.Revenue.StringFixed(2),
			Commission: p.Commission.StringFixed(2),
			NetRevenue: p.NetRevenue.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentSummary returns order counts by payment method.
func (h *ReportsHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	resp := make([]paymentSummaryResponse, 0, len(stats.PaymentCounts))
	for _, method := range enum.PaymentMethods() {
		if count, found := stats.PaymentCounts[method]; found {
			resp = append(resp, paymentSummaryResponse{
				PaymentMethod: method,
				OrderCount:    count,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// snapshot resolves the tenant, window params, and a one-off stats snapshot.
// On failure it writes the error response and returns ok=false. The report
// window is independent of the tenant's live dashboard window.
func (h *ReportsHandler) snapshot(w http.ResponseWriter, r *http.Request) (analytics.Stats, bool) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return analytics.Stats{}, false
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return analytics.Stats{}, false
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = enum.PeriodTotal
	}

	var reference time.Time
	reference, err = parseWindowParams(r, h.clock, period)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return analytics.Stats{}, false
	}

	proj, err := h.provider.Projection(r.Context(), tenantID)
	if err != nil {
		log.Printf("ERROR: open projection: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return analytics.Stats{}, false
	}

	return proj.SnapshotFor(period, reference), true
}

// parseLimit parses the limit query param, defaulting to 10 and capped at 100.
func parseLimit(r *http.Request) int {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}
