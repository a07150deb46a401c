package analytics

import (
	"time"

	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/model"
)

// FilterWindow selects the orders relevant to a reporting period. It is a
// pure function: same inputs, same outputs, no I/O.
//
// The daily window is anchored to the selected reference date. The weekly
// (Sunday to Saturday) and monthly windows are anchored to now, regardless
// of the reference date — the console has always behaved this way and the
// dashboards rely on it, so it is kept as-is rather than quietly changed.
func FilterWindow(orders []model.OrderRecord, period string, reference, now time.Time, loc *time.Location) []model.OrderRecord {
	switch period {
	case enum.PeriodDaily:
		day := clock.DayOf(reference, loc)
		return filterByDay(orders, day, day)

	case enum.PeriodWeekly:
		today := clock.DayOf(now, loc)
		weekStart := today.AddDate(0, 0, -int(today.Weekday()))
		weekEnd := weekStart.AddDate(0, 0, 6)
		return filterByDay(orders, weekStart, weekEnd)

	case enum.PeriodMonthly:
		local := now.In(loc)
		monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		monthEnd := monthStart.AddDate(0, 1, -1)
		return filterByDay(orders, monthStart, monthEnd)

	default: // enum.PeriodTotal
		return orders
	}
}

// filterByDay keeps orders whose derived order date falls in [start, end],
// inclusive. Both bounds are tenant-local midnights, so day boundaries are
// exact regardless of what time of day the orders were placed.
func filterByDay(orders []model.OrderRecord, start, end time.Time) []model.OrderRecord {
	result := make([]model.OrderRecord, 0, len(orders))
	for _, o := range orders {
		d := o.Timestamps.OrderDate
		if d.Before(start) || d.After(end) {
			continue
		}
		result = append(result, o)
	}
	return result
}
