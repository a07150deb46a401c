package enum

import "github.com/shopspring/decimal"

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusReceived  = "RECEIVED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusServed    = "SERVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusRejected  = "REJECTED"
)

const (
	ServingStatusPending = "PENDING"
	ServingStatusServed  = "SERVED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

const (
	PlatformDirect   = "DIRECT"
	PlatformSwiggy   = "SWIGGY"
	PlatformZomato   = "ZOMATO"
	PlatformUberEats = "UBER_EATS"
	PlatformOther    = "OTHER"
)

const (
	PaymentMethodCash    = "CASH"
	PaymentMethodUPI     = "UPI"
	PaymentMethodCard    = "CARD"
	PaymentMethodPending = "PENDING"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodTotal   = "total"
)

// CommissionRate returns the aggregator commission charged on the given
// platform, as a fraction of the order total. Direct orders carry none.
func CommissionRate(platform string) decimal.Decimal {
	switch platform {
	case PlatformSwiggy:
		return decimal.NewFromFloat(0.22)
	case PlatformZomato:
		return decimal.NewFromFloat(0.23)
	case PlatformUberEats:
		return decimal.NewFromFloat(0.30)
	case PlatformOther:
		return decimal.NewFromFloat(0.20)
	}
	return decimal.Zero
}

// PaymentMethods lists the known payment methods in display order.
func PaymentMethods() []string {
	return []string{PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard, PaymentMethodPending}
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusReceived, OrderStatusPreparing, OrderStatusReady,
		OrderStatusServed, OrderStatusCompleted, OrderStatusRejected:
		return true
	}
	return false
}

// ValidPeriod reports whether s is a known reporting period.
func ValidPeriod(s string) bool {
	switch s {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodTotal:
		return true
	}
	return false
}

// ValidOrderType reports whether s is a known order type.
func ValidOrderType(s string) bool {
	switch s {
	case OrderTypeDineIn, OrderTypeTakeaway, OrderTypeDelivery:
		return true
	}
	return false
}

// ValidPlatform reports whether s is a known ordering channel.
func ValidPlatform(s string) bool {
	switch s {
	case PlatformDirect, PlatformSwiggy, PlatformZomato,
		PlatformUberEats, PlatformOther:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether s is a known payment method.
func ValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard,
		PaymentMethodPending:
		return true
	}
	return false
}
