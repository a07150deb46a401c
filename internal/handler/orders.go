package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thali-pos/api/internal/middleware"
	"github.com/thali-pos/api/internal/model"
	"github.com/thali-pos/api/internal/repository"
	"github.com/thali-pos/api/internal/service"
	"github.com/thali-pos/api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*model.OrderRecord, error)
}

// Transitioner applies status changes.
// Satisfied by *service.TransitionEngine.
type Transitioner interface {
	Apply(ctx context.Context, tenantID, orderID uuid.UUID, next string, meta service.TransitionMeta) (model.OrderRecord, error)
}

// OrderStore defines the store methods needed by the read endpoints.
// Satisfied by *repository.Store.
type OrderStore interface {
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (model.OrderRecord, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID) ([]model.OrderRecord, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	engine Transitioner
	store  OrderStore
	hub    *ws.Hub
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, engine Transitioner, store OrderStore, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{svc: svc, engine: engine, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a tenant-scoped subrouter: /tenants/{tid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type placeOrderRequest struct {
	OrderType      string                  `json:"order_type"`
	TableNumber    int32                   `json:"table_number"`
	CustomerName   string                  `json:"customer_name"`
	CustomerMobile string                  `json:"customer_mobile"`
	Platform       string                  `json:"platform"`
	PaymentMethod  string                  `json:"payment_method"`
	Items          []placeOrderItemRequest `json:"items"`
}

type placeOrderItemRequest struct {
	MenuID   string `json:"menu_id"`
	Quantity int32  `json:"quantity"`
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	Note            string `json:"note"`
	RejectionReason string `json:"rejection_reason"`
}

type orderResponse struct {
	ID             uuid.UUID           `json:"id"`
	TenantID       uuid.UUID           `json:"tenant_id"`
	OrderNumber    int32               `json:"order_number"`
	OrderType      string              `json:"order_type"`
	TableNumber    *int32              `json:"table_number"`
	CustomerName   string              `json:"customer_name"`
	CustomerMobile string              `json:"customer_mobile"`
	Status         string              `json:"status"`
	ServingStatus  string              `json:"serving_status"`
	Platform       string              `json:"platform"`
	CommissionRate string              `json:"commission_rate"`
	NetRevenue     string              `json:"net_revenue"`
	PaymentMethod  string              `json:"payment_method"`
	Rejection      *string             `json:"rejection_reason"`
	Items          []orderItemResponse `json:"items"`
	Pricing        pricingResponse     `json:"pricing"`
	Timestamps     timestampsResponse  `json:"timestamps"`
	StatusHistory  []statusEntryBody   `json:"status_history"`
}

type orderItemResponse struct {
	MenuID         uuid.UUID `json:"menu_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	UnitPrice      string    `json:"unit_price"`
	Discount       string    `json:"discount"`
	FinalUnitPrice string    `json:"final_unit_price"`
	Quantity       int32     `json:"quantity"`
	LineTotal      string    `json:"line_total"`
	Vegetarian     bool      `json:"vegetarian"`
	Spicy          bool      `json:"spicy"`
	Recommended    bool      `json:"recommended"`
	Popular        bool      `json:"popular"`
	Bestseller     bool      `json:"bestseller"`
}

type pricingResponse struct {
	Subtotal string `json:"subtotal"`
	TaxRate  string `json:"tax_rate"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type timestampsResponse struct {
	PlacedAt         time.Time  `json:"placed_at"`
	OrderDate        string     `json:"order_date"`
	EstimatedReadyAt time.Time  `json:"estimated_ready_at"`
	PrepStartedAt    *time.Time `json:"prep_started_at"`
	ReadyAt          *time.Time `json:"ready_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	RejectedAt       *time.Time `json:"rejected_at"`
}

type statusEntryBody struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /tenants/{tid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	items := make([]service.PlaceOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.PlaceOrderItemRequest{
			MenuID:   item.MenuID,
			Quantity: item.Quantity,
		}
	}

	order, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		TenantID:       tenantID,
		OrderType:      req.OrderType,
		TableNumber:    req.TableNumber,
		CustomerName:   req.CustomerName,
		CustomerMobile: req.CustomerMobile,
		Platform:       req.Platform,
		PaymentMethod:  req.PaymentMethod,
		Items:          items,
	})
	if err != nil {
		if service.IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: place order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if event, ok := ws.NewEvent(ws.EventOrderCreated, toOrderResponse(*order)); ok {
		h.hub.BroadcastToTenant(tenantID, event)
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(*order))
}

// List handles GET /tenants/{tid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
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

	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	orders, err := h.store.ListOrders(r.Context(), tenantID)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Newest first for the console's order list, then page in memory: the
	// live set is the working set and stays small per tenant.
	status := r.URL.Query().Get("status")
	filtered := make([]model.OrderRecord, 0, len(orders))
	for i := len(orders) - 1; i >= 0; i-- {
		if status != "" && orders[i].Status != status {
			continue
		}
		filtered = append(filtered, orders[i])
	}

	start := offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	resp := make([]orderResponse, 0, end-start)
	for _, o := range filtered[start:end] {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /tenants/{tid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), tenantID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateStatus handles PATCH /tenants/{tid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.engine.Apply(r.Context(), tenantID, orderID, req.Status, service.TransitionMeta{
		Note:            req.Note,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		var invalid *service.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusConflict, map[string]string{"error": invalid.Error()})
		case errors.Is(err, repository.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, repository.ErrStatusConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry"})
		default:
			log.Printf("ERROR: update order status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	if event, ok := ws.NewEvent(ws.EventOrderStatusChanged, toOrderResponse(updated)); ok {
		h.hub.BroadcastToTenant(tenantID, event)
	}

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// --- Helpers ---

func toOrderResponse(o model.OrderRecord) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		TenantID:       o.TenantID,
		OrderNumber:    o.OrderNumber,
		OrderType:      o.OrderType,
		CustomerName:   o.CustomerName,
		CustomerMobile: o.CustomerMobile,
		Status:         o.Status,
		ServingStatus:  o.ServingStatus,
		Platform:       o.Platform,
		CommissionRate: o.CommissionRate.StringFixed(2),
		NetRevenue:     o.NetRevenue.StringFixed(2),
		PaymentMethod:  o.PaymentMethod,
		Pricing: pricingResponse{
			Subtotal: o.Pricing.Subtotal.StringFixed(2),
			TaxRate:  o.Pricing.TaxRate.StringFixed(2),
			Tax:      o.Pricing.Tax.StringFixed(2),
			Total:    o.Pricing.Total.StringFixed(2),
		},
		Timestamps: timestampsResponse{
			PlacedAt:         o.Timestamps.PlacedAt,
			OrderDate:        o.Timestamps.OrderDate.Format("2006-01-02"),
			EstimatedReadyAt: o.Timestamps.EstimatedReadyAt,
			PrepStartedAt:    o.Timestamps.PrepStartedAt,
			ReadyAt:          o.Timestamps.ReadyAt,
			CompletedAt:      o.Timestamps.CompletedAt,
			RejectedAt:       o.Timestamps.RejectedAt,
		},
	}

	if o.TableNumber > 0 {
		resp.TableNumber = &o.TableNumber
	}
	if o.RejectionReason != "" {
		resp.Rejection = &o.RejectionReason
	}

	resp.Items = make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		resp.Items[i] = orderItemResponse{
			MenuID:         item.MenuID,
			Name:           item.Name,
			Category:       item.Category,
			UnitPrice:      item.UnitPrice.StringFixed(2),
			Discount:       item.Discount.StringFixed(2),
			FinalUnitPrice: item.FinalUnitPrice.StringFixed(2),
			Quantity:       item.Quantity,
			LineTotal:      item.LineTotal.StringFixed(2),
			Vegetarian:     item.Vegetarian,
			Spicy:          item.Spicy,
			Recommended:    item.Recommended,
			Popular:        item.Popular,
			Bestseller:     item.Bestseller,
		}
	}

	resp.StatusHistory = make([]statusEntryBody, len(o.StatusHistory))
	for i, entry := range o.StatusHistory {
		resp.StatusHistory[i] = statusEntryBody{
			Status:    entry.Status,
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
		}
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
