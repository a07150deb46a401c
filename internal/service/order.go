package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/thali-pos/api/internal/catalog"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/model"
)

const maxOrderNumberRetries = 3

// Validation errors returned by the order service. All of them are raised
// before anything touches the order store.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidOrderType     = errors.New("invalid order_type")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMenuID        = errors.New("invalid menu_id")
	ErrMenuItemNotFound     = errors.New("menu item not found")
	ErrTableNumberRequired  = errors.New("table_number is required for DINE_IN orders")
	ErrPlatformRequired     = errors.New("platform is required for DELIVERY orders")
	ErrInvalidPlatform      = errors.New("invalid platform")
	ErrCustomerNameRequired = errors.New("customer_name is required")
	ErrInvalidMobile        = errors.New("customer_mobile must be a 10-digit number")
	ErrInvalidPayment       = errors.New("invalid payment_method")
)

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// IsValidationError reports whether err is a pre-persistence validation
// failure that should map to a 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyItems) ||
		errors.Is(err, ErrInvalidOrderType) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidMenuID) ||
		errors.Is(err, ErrMenuItemNotFound) ||
		errors.Is(err, ErrTableNumberRequired) ||
		errors.Is(err, ErrPlatformRequired) ||
		errors.Is(err, ErrInvalidPlatform) ||
		errors.Is(err, ErrCustomerNameRequired) ||
		errors.Is(err, ErrInvalidMobile) ||
		errors.Is(err, ErrInvalidPayment)
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the store methods needed to create orders.
// Satisfied by *repository.Store (and its transaction-bound variant).
type OrderStore interface {
	NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, o *model.OrderRecord) error
}

// NewOrderStore creates an OrderStore bound to a pool or transaction.
type NewOrderStore func(tx pgx.Tx) OrderStore

// PlaceOrderRequest is the input for placing an order: the cart plus
// customer info and order-type-specific fields.
type PlaceOrderRequest struct {
	TenantID       uuid.UUID
	OrderType      string
	TableNumber    int32
	CustomerName   string
	CustomerMobile string
	Platform       string
	PaymentMethod  string
	Items          []PlaceOrderItemRequest
}

// PlaceOrderItemRequest is a single cart line.
type PlaceOrderItemRequest struct {
	MenuID   string
	Quantity int32
}

// OrderService builds, prices, and persists orders.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	catalog  catalog.Catalog
	clock    clock.Clock
	taxRate  decimal.Decimal
	prepSLA  time.Duration
}

// NewOrderService creates an OrderService. taxRatePercent is the flat tax
// applied to the subtotal; prepSLA feeds the estimated-ready timestamp.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, cat catalog.Catalog, clk clock.Clock, taxRatePercent int, prepSLA time.Duration) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		catalog:  cat,
		clock:    clk,
		taxRate:  decimal.NewFromInt(int64(taxRatePercent)),
		prepSLA:  prepSLA,
	}
}

// PlaceOrder validates the request, snapshots menu fields into line items,
// computes pricing, and creates the order atomically. The tenant-scoped
// order number is MAX+1 inside the transaction; the unique index on
// (tenant_id, order_number) catches concurrent creators that read the same
// MAX, and the insert is retried with a fresh number.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.OrderRecord, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	items, err := s.buildItems(ctx, req)
	if err != nil {
		return nil, err
	}

	order := s.buildOrder(req, items)

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		err := s.createOrderTx(ctx, order)
		if err == nil {
			return order, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func validateRequest(req PlaceOrderRequest) error {
	if !enum.ValidOrderType(req.OrderType) {
		return ErrInvalidOrderType
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.MenuID); err != nil {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuID)
		}
	}
	if req.OrderType == enum.OrderTypeDineIn && req.TableNumber <= 0 {
		return ErrTableNumberRequired
	}
	if req.OrderType == enum.OrderTypeDelivery && req.Platform == "" {
		return ErrPlatformRequired
	}
	if req.Platform != "" && !enum.ValidPlatform(req.Platform) {
		return ErrInvalidPlatform
	}
	if req.CustomerName == "" {
		return ErrCustomerNameRequired
	}
	if !mobilePattern.MatchString(req.CustomerMobile) {
		return ErrInvalidMobile
	}
	if req.PaymentMethod != "" && !enum.ValidPaymentMethod(req.PaymentMethod) {
		return ErrInvalidPayment
	}
	return nil
}

// buildItems snapshots name, category, pricing, and tags from the menu
// catalog. The order keeps this denormalized copy; later menu edits never
// change historical orders.
func (s *OrderService) buildItems(ctx context.Context, req PlaceOrderRequest) ([]model.OrderItem, error) {
	items := make([]model.OrderItem, 0, len(req.Items))
	for i, line := range req.Items {
		menuID, _ := uuid.Parse(line.MenuID)
		mi, err := s.catalog.GetMenuItem(ctx, req.TenantID, menuID)
		if err != nil {
			if errors.Is(err, catalog.ErrMenuItemNotFound) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		finalPrice := mi.Price.Sub(mi.Discount)
		if finalPrice.IsNegative() {
			finalPrice = decimal.Zero
		}

		items = append(items, model.OrderItem{
			MenuID:         mi.ID,
			Name:           mi.Name,
			Category:       mi.Category,
			UnitPrice:      mi.Price,
			Discount:       mi.Discount,
			FinalUnitPrice: finalPrice,
			Quantity:       line.Quantity,
			LineTotal:      finalPrice.Mul(decimal.NewFromInt32(line.Quantity)),
			Vegetarian:     mi.Vegetarian,
			Spicy:          mi.Spicy,
			Recommended:    mi.Recommended,
			Popular:        mi.Popular,
			Bestseller:     mi.Bestseller,
		})
	}
	return items, nil
}

func (s *OrderService) buildOrder(req PlaceOrderRequest, items []model.OrderItem) *model.OrderRecord {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	// Tax is rounded exactly once; total = subtotal + rounded tax so that
	// reconstructing pricing from items is reproducible.
	tax := subtotal.Mul(s.taxRate).Div(decimal.NewFromInt(100)).Round(2)
	total := subtotal.Add(tax)

	platform := req.Platform
	if platform == "" {
		platform = enum.PlatformDirect
	}
	commission := enum.CommissionRate(platform)
	netRevenue := total.Mul(decimal.NewFromInt(1).Sub(commission)).Round(2)

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodPending
	}

	now := s.clock.Now()
	order := &model.OrderRecord{
		ID:             uuid.New(),
		TenantID:       req.TenantID,
		OrderType:      req.OrderType,
		TableNumber:    req.TableNumber,
		CustomerName:   req.CustomerName,
		CustomerMobile: req.CustomerMobile,
		Items:          items,
		Pricing: model.Pricing{
			Subtotal: subtotal,
			TaxRate:  s.taxRate,
			Tax:      tax,
			Total:    total,
		},
		Status:         enum.OrderStatusReceived,
		ServingStatus:  enum.ServingStatusPending,
		Platform:       platform,
		CommissionRate: commission,
		NetRevenue:     netRevenue,
		PaymentMethod:  paymentMethod,
		Timestamps: model.Timestamps{
			PlacedAt:         now,
			OrderDate:        clock.DayOf(now, s.clock.Location()),
			EstimatedReadyAt: now.Add(s.prepSLA),
		},
		StatusHistory: []model.StatusEntry{
			{Status: enum.OrderStatusReceived, Timestamp: now, Note: "order placed"},
		},
	}
	return order
}

// createOrderTx assigns the order number and inserts in one transaction.
func (s *OrderService) createOrderTx(ctx context.Context, order *model.OrderRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.NextOrderNumber(ctx, order.TenantID)
	if err != nil {
		return err
	}
	order.OrderNumber = nextNum

	if err := store.CreateOrder(ctx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isOrderNumberConflict checks for a unique violation on the per-tenant
// order number (two transactions read the same MAX).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_tenant_id_order_number_key"
	}
	return false
}
