package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/model"
)

// Stats is one statistics snapshot over a filtered order set.
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	RejectedOrders  int             `json:"rejected_orders"`
	PendingOrders   int             `json:"pending_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	CompletionRate  float64         `json:"completion_rate"`
	RejectionRate   float64         `json:"rejection_rate"`
	PeakHour        int             `json:"peak_hour"`

	MenuBreakdown     []Breakdown    `json:"menu_breakdown"`
	CategoryBreakdown []Breakdown    `json:"category_breakdown"`
	PlatformBreakdown []PlatformStat `json:"platform_breakdown"`
	PaymentCounts     map[string]int `json:"payment_counts"`

	PlatformCommission decimal.Decimal `json:"platform_commission"`
	PlatformNetRevenue decimal.Decimal `json:"platform_net_revenue"`
}

// Breakdown is one bucket of a per-menu-item or per-category aggregation.
type Breakdown struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	OrderCount int64           `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	Percentage float64         `json:"percentage"`
}

// PlatformStat is one bucket of the per-platform accounting view.
type PlatformStat struct {
	Platform   string          `json:"platform"`
	OrderCount int64           `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	Commission decimal.Decimal `json:"commission"`
	NetRevenue decimal.Decimal `json:"net_revenue"`
}

// Aggregate computes a statistics snapshot over already-filtered orders.
// It is total: it never errors, an empty input yields an all-zero snapshot,
// and malformed orders fall into zero-valued buckets rather than failing.
func Aggregate(orders []model.OrderRecord, loc *time.Location) Stats {
	stats := Stats{
		TotalRevenue:       decimal.Zero,
		AvgOrderValue:      decimal.Zero,
		PlatformCommission: decimal.Zero,
		PlatformNetRevenue: decimal.Zero,
		MenuBreakdown:      []Breakdown{},
		CategoryBreakdown:  []Breakdown{},
		PlatformBreakdown:  []PlatformStat{},
		PaymentCounts:      map[string]int{},
	}

	var hourCounts [24]int
	menuIdx := map[string]int{}
	categoryIdx := map[string]int{}
	platformIdx := map[string]int{}
	platforms := []PlatformStat{}

	for _, o := range orders {
		stats.TotalOrders++
		switch o.Status {
		case enum.OrderStatusCompleted:
			stats.CompletedOrders++
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Pricing.Total)
		case enum.OrderStatusRejected:
			stats.RejectedOrders++
		case enum.OrderStatusReceived:
			stats.PendingOrders++
		}

		if !o.Timestamps.PlacedAt.IsZero() {
			hourCounts[o.Timestamps.PlacedAt.In(loc).Hour()]++
		}

		for _, item := range o.Items {
			key := item.MenuID.String()
			i, ok := menuIdx[key]
			if !ok {
				i = len(stats.MenuBreakdown)
				menuIdx[key] = i
				stats.MenuBreakdown = append(stats.MenuBreakdown, Breakdown{
					Key: key, Name: item.Name, Revenue: decimal.Zero,
				})
			}
			stats.MenuBreakdown[i].OrderCount += int64(item.Quantity)
			stats.MenuBreakdown[i].Revenue = stats.MenuBreakdown[i].Revenue.Add(item.LineTotal)

			category := item.Category
			if category == "" {
				category = "Uncategorized"
			}
			j, ok := categoryIdx[category]
			if !ok {
				j = len(stats.CategoryBreakdown)
				categoryIdx[category] = j
				stats.CategoryBreakdown = append(stats.CategoryBreakdown, Breakdown{
					Key: category, Name: category, Revenue: decimal.Zero,
				})
			}
			stats.CategoryBreakdown[j].OrderCount += int64(item.Quantity)
			stats.CategoryBreakdown[j].Revenue = stats.CategoryBreakdown[j].Revenue.Add(item.LineTotal)
		}

		k, ok := platformIdx[o.Platform]
		if !ok {
			k = len(platforms)
			platformIdx[o.Platform] = k
			platforms = append(platforms, PlatformStat{
				Platform: o.Platform,
				Revenue:  decimal.Zero, Commission: decimal.Zero, NetRevenue: decimal.Zero,
			})
		}
		commission := o.Pricing.Total.Mul(o.CommissionRate)
		platforms[k].OrderCount++
		platforms[k].Revenue = platforms[k].Revenue.Add(o.Pricing.Total)
		platforms[k].Commission = platforms[k].Commission.Add(commission)
		platforms[k].NetRevenue = platforms[k].Revenue.Sub(platforms[k].Commission)
		if o.Platform != enum.PlatformDirect {
			stats.PlatformCommission = stats.PlatformCommission.Add(commission)
		}

		if o.PaymentMethod != "" {
			stats.PaymentCounts[o.PaymentMethod]++
		}
	}
	stats.PlatformBreakdown = platforms

	if stats.CompletedOrders > 0 {
		stats.AvgOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(int64(stats.CompletedOrders))).Round(2)
	}
	if stats.TotalOrders > 0 {
		stats.CompletionRate = float64(stats.CompletedOrders) / float64(stats.TotalOrders) * 100
		stats.RejectionRate = float64(stats.RejectedOrders) / float64(stats.TotalOrders) * 100
	}

	grossPlatformRevenue := decimal.Zero
	for _, p := range platforms {
		grossPlatformRevenue = grossPlatformRevenue.Add(p.Revenue)
	}
	stats.PlatformNetRevenue = grossPlatformRevenue.Sub(stats.PlatformCommission)

	for hour, count := range hourCounts {
		if count > hourCounts[stats.PeakHour] {
			stats.PeakHour = hour
		}
	}

	finishBreakdown(stats.MenuBreakdown)
	finishBreakdown(stats.CategoryBreakdown)

	return stats
}

// finishBreakdown fills percentages and sorts by count descending. The sort
// is stable so equal counts keep first-seen order.
func finishBreakdown(buckets []Breakdown) {
	var totalCount int64
	for _, b := range buckets {
		totalCount += b.OrderCount
	}
	if totalCount > 0 {
		for i := range buckets {
			buckets[i].Percentage = float64(buckets[i].OrderCount) / float64(totalCount) * 100
		}
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].OrderCount > buckets[j].OrderCount
	})
}

// TopMenus returns the first n menu buckets; the breakdown is already
// sorted, so no separate computation path exists.
func (s Stats) TopMenus(n int) []Breakdown {
	if n < 0 {
		n = 0
	}
	if n > len(s.MenuBreakdown) {
		n = len(s.MenuBreakdown)
	}
	return s.MenuBreakdown[:n]
}

// TopCategories returns the first n category buckets.
func (s Stats) TopCategories(n int) []Breakdown {
	if n < 0 {
		n = 0
	}
	if n > len(s.CategoryBreakdown) {
		n = len(s.CategoryBreakdown)
	}
	return s.CategoryBreakdown[:n]
}
