package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/middleware"
	"github.com/thali-pos/api/internal/projection"
)

// ProjectionProvider hands out per-tenant live projections.
// Satisfied by *projection.Manager.
type ProjectionProvider interface {
	Projection(ctx context.Context, tenantID uuid.UUID) (*projection.Projection, error)
}

// DashboardHandler handles the live dashboard endpoint.
type DashboardHandler struct {
	provider ProjectionProvider
	clock    clock.Clock
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(provider ProjectionProvider, clk clock.Clock) *DashboardHandler {
	return &DashboardHandler{provider: provider, clock: clk}
}

// RegisterRoutes registers dashboard endpoints.
// Expected to be mounted inside a tenant-scoped subrouter: /tenants/{tid}/dashboard
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Stats)
}

// --- Response types ---

type statsResponse struct {
	TotalOrders     int     `json:"total_orders"`
	CompletedOrders int     `json:"completed_orders"`
	RejectedOrders  int     `json:"rejected_orders"`
	PendingOrders   int     `json:"pending_orders"`
	TotalRevenue    string  `json:"total_revenue"`
	AvgOrderValue   string  `json:"avg_order_value"`
	CompletionRate  float64 `json:"completion_rate"`
	RejectionRate   float64 `json:"rejection_rate"`
	PeakHour        int     `json:"peak_hour"`

	MenuBreakdown     []breakdownBody    `json:"menu_breakdown"`
	CategoryBreakdown []breakdownBody    `json:"category_breakdown"`
	PlatformBreakdown []platformStatBody `json:"platform_breakdown"`
	PaymentCounts     map[string]int     `json:"payment_counts"`

	PlatformCommission string `json:"platform_commission"`
	PlatformNetRevenue string `json:"platform_net_revenue"`
}

type breakdownBody struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	OrderCount int64   `json:"order_count"`
	Revenue    string  `json:"revenue"`
	Percentage float64 `json:"percentage"`
}

type platformStatBody struct {
	Platform   string `json:"platform"`
	OrderCount int64  `json:"order_count"`
	Revenue    string `json:"revenue"`
	Commission string `json:"commission"`
	NetRevenue string `json:"net_revenue"`
}

// --- Handlers ---

// Stats returns the current dashboard snapshot for a tenant. An optional
// period query param (daily, weekly, monthly, total) retargets the tenant's
// live window before answering, so WebSocket subscribers follow the same
// view the console just switched to.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	proj, err := h.provider.Projection(r.Context(), tenantID)
	if err != nil {
		log.Printf("ERROR: open projection: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if period := r.URL.Query().Get("period"); period != "" {
		reference, err := parseWindowParams(r, h.clock, period)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		proj.SetWindow(period, reference)
	}

	writeJSON(w, http.StatusOK, toStatsResponse(proj.CurrentSnapshot()))
}

// --- Helpers ---

// parseWindowParams validates the period param and resolves the reference
// date. The date param only matters for daily windows; other periods anchor
// to the current time.
func parseWindowParams(r *http.Request, clk clock.Clock, period string) (time.Time, error) {
	if !enum.ValidPeriod(period) {
		return time.Time{}, fmt.Errorf("invalid period: %s", period)
	}

	reference := clk.Now()
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, clk.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date format: %w", err)
		}
		reference = t
	}
	return reference, nil
}

func toStatsResponse(s analytics.Stats) statsResponse {
	resp := statsResponse{
		TotalOrders:        s.TotalOrders,
		CompletedOrders:    s.CompletedOrders,
		RejectedOrders:     s.RejectedOrders,
		PendingOrders:      s.PendingOrders,
		TotalRevenue:       s.TotalRevenue.StringFixed(2),
		AvgOrderValue:      s.AvgOrderValue.StringFixed(2),
		CompletionRate:     s.CompletionRate,
		RejectionRate:      s.RejectionRate,
		PeakHour:           s.PeakHour,
		PaymentCounts:      s.PaymentCounts,
		PlatformCommission: s.PlatformCommission.StringFixed(2),
		PlatformNetRevenue: s.PlatformNetRevenue.StringFixed(2),
	}

	resp.MenuBreakdown = toBreakdownBodies(s.MenuBreakdown)
	resp.CategoryBreakdown = toBreakdownBodies(s.CategoryBreakdown)

	resp.PlatformBreakdown = make([]platformStatBody, len(s.PlatformBreakdown))
	for i, p := range s.PlatformBreakdown {
		resp.PlatformBreakdown[i] = platformStatBody{
			Platform:   p.Platform,
			OrderCount: p.OrderCount,
			Revenue:    p.Revenue.StringFixed(2),
			Commission: p.Commission.StringFixed(2),
			NetRevenue: p.NetRevenue.StringFixed(2),
		}
	}

	return resp
}

func toBreakdownBodies(in []analytics.Breakdown) []breakdownBody {
	out := make([]breakdownBody, len(in))
	for i, b := range in {
		out[i] = breakdownBody{
			Key:        b.Key,
			Name:       b.Name,
			OrderCount: b.OrderCount,
			Revenue:    b.Revenue.StringFixed(2),
			Percentage: b.Percentage,
		}
	}
	return out
}
