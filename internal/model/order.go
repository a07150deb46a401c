package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRecord is the canonical shape of a placed order. It is produced
// exactly once, at the repository boundary, and every consumer works with
// this normalized form; nobody re-derives status or dates from raw rows.
type OrderRecord struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	OrderNumber int32     `json:"order_number"`

	OrderType   string `json:"order_type"`
	TableNumber int32  `json:"table_number,omitempty"`

	CustomerName   string `json:"customer_name"`
	CustomerMobile string `json:"customer_mobile"`

	Items   []OrderItem `json:"items"`
	Pricing Pricing     `json:"pricing"`

	Status        string `json:"status"`
	ServingStatus string `json:"serving_status"`

	Platform        string          `json:"platform"`
	CommissionRate  decimal.Decimal `json:"commission_rate"`
	NetRevenue      decimal.Decimal `json:"net_revenue"`
	PaymentMethod   string          `json:"payment_method"`
	RejectionReason string          `json:"rejection_reason,omitempty"`

	Timestamps    Timestamps    `json:"timestamps"`
	StatusHistory []StatusEntry `json:"status_history"`
}

// OrderItem is a denormalized snapshot of a menu item at ordering time.
// Later menu edits never rewrite it.
type OrderItem struct {
	MenuID         uuid.UUID       `json:"menu_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Discount       decimal.Decimal `json:"discount"`
	FinalUnitPrice decimal.Decimal `json:"final_unit_price"`
	Quantity       int32           `json:"quantity"`
	LineTotal      decimal.Decimal `json:"line_total"`

	Vegetarian  bool `json:"vegetarian,omitempty"`
	Spicy       bool `json:"spicy,omitempty"`
	Recommended bool `json:"recommended,omitempty"`
	Popular     bool `json:"popular,omitempty"`
	Bestseller  bool `json:"bestseller,omitempty"`
}

// Pricing is always recomputed from Items, never entered directly.
type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Timestamps groups the lifecycle timestamps of an order. OrderDate is the
// tenant-local calendar day of PlacedAt and is derived, never edited.
type Timestamps struct {
	PlacedAt         time.Time  `json:"placed_at"`
	OrderDate        time.Time  `json:"order_date"`
	EstimatedReadyAt time.Time  `json:"estimated_ready_at"`
	PrepStartedAt    *time.Time `json:"prep_started_at,omitempty"`
	ReadyAt          *time.Time `json:"ready_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
}

// StatusEntry is one append-only status history record. The order's current
// Status always equals the Status of the last entry.
type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// CurrentHistoryStatus returns the status of the last history entry, or ""
// for an order with no history.
func (o *OrderRecord) CurrentHistoryStatus() string {
	if len(o.StatusHistory) == 0 {
		return ""
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}
