package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/model"
)

var ist = time.FixedZone("IST", (5*60+30)*60)

var testNow = time.Date(2024, 6, 12, 9, 0, 0, 0, ist)

func testClock() clock.Clock {
	return clock.Fixed{Instant: testNow, Loc: ist}
}

func completedOrder(total string, placedAt time.Time) model.OrderRecord {
	d, err := decimal.NewFromString(total)
	if err != nil {
		panic(err)
	}
	return model.OrderRecord{
		ID:       uuid.New(),
		Status:   "COMPLETED",
		Platform: "DIRECT",
		Pricing:  model.Pricing{Total: d},
		Timestamps: model.Timestamps{
			PlacedAt:  placedAt,
			OrderDate: clock.DayOf(placedAt, ist),
		},
	}
}

func TestProjection_DefaultsToTotalWindow(t *testing.T) {
	p := New(testClock())

	p.OnSnapshot([]model.OrderRecord{
		completedOrder("100", testNow),
		completedOrder("200", testNow.AddDate(0, -3, 0)), // months old
	})

	stats := p.CurrentSnapshot()
	if stats.TotalOrders != 2 {
		t.Errorf("total orders: got %d, want 2 (all-time window)", stats.TotalOrders)
	}
}

func TestProjection_SetWindowNarrowsView(t *testing.T) {
	p := New(testClock())

	p.OnSnapshot([]model.OrderRecord{
		completedOrder("100", testNow),
		completedOrder("200", testNow.AddDate(0, 0, -1)),
	})

	p.SetWindow("daily", testNow)

	stats := p.CurrentSnapshot()
	if stats.TotalOrders != 1 {
		t.Errorf("daily orders: got %d, want 1", stats.TotalOrders)
	}
	if stats.TotalRevenue.String() != "100" {
		t.Errorf("daily revenue: got %s, want 100", stats.TotalRevenue)
	}
}

func TestProjection_SnapshotForLeavesWindowUntouched(t *testing.T) {
	p := New(testClock())

	p.OnSnapshot([]model.OrderRecord{
		completedOrder("100", testNow),
		completedOrder("200", testNow.AddDate(0, 0, -1)),
	})

	oneOff := p.SnapshotFor("daily", testNow)
	if oneOff.TotalOrders != 1 {
		t.Errorf("one-off daily orders: got %d, want 1", oneOff.TotalOrders)
	}

	// The live window is still all-time.
	stats := p.CurrentSnapshot()
	if stats.TotalOrders != 2 {
		t.Errorf("live window after one-off query: got %d orders, want 2", stats.TotalOrders)
	}
}

func TestProjection_PublishesToSubscribers(t *testing.T) {
	p := New(testClock())

	var received []analytics.Stats
	unsubscribe := p.Subscribe(func(s analytics.Stats) {
		received = append(received, s)
	})

	p.OnSnapshot([]model.OrderRecord{completedOrder("100", testNow)})
	if len(received) != 1 {
		t.Fatalf("publishes after snapshot: got %d, want 1", len(received))
	}
	if received[0].TotalOrders != 1 {
		t.Errorf("published total orders: got %d, want 1", received[0].TotalOrders)
	}

	p.SetWindow("daily", testNow)
	if len(received) != 2 {
		t.Fatalf("publishes after window change: got %d, want 2", len(received))
	}

	// Unsubscribe stops delivery; a second call is harmless.
	unsubscribe()
	unsubscribe()
	p.OnSnapshot(nil)
	if len(received) != 2 {
		t.Errorf("publishes after unsubscribe: got %d, want 2", len(received))
	}
}

// --- Manager tests ---

// mockSubscriber implements Subscriber, capturing the snapshot callback so
// tests can push order sets by hand.
type mockSubscriber struct {
	onSnapshot   func([]model.OrderRecord)
	subscribeErr error
	subscribes   int
	unsubscribes int
}

func (m *mockSubscriber) Subscribe(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) (func(), error) {
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	m.subscribes++
	m.onSnapshot = onSnapshot
	onSnapshot(nil)
	return func() { m.unsubscribes++ }, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_ReusesProjectionPerTenant(t *testing.T) {
	sub := &mockSubscriber{}
	m := NewManager(sub, testClock(), discardLogger(), nil)

	tenantID := uuid.New()
	p1, err := m.Projection(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	p2, err := m.Projection(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}

	if p1 != p2 {
		t.Error("same tenant must share one projection")
	}
	if sub.subscribes != 1 {
		t.Errorf("subscriptions: got %d, want 1", sub.subscribes)
	}
}

func TestManager_SubscribeFailureSurfaces(t *testing.T) {
	wantErr := errors.New("db down")
	sub := &mockSubscriber{subscribeErr: wantErr}
	m := NewManager(sub, testClock(), discardLogger(), nil)

	_, err := m.Projection(context.Background(), uuid.New())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected subscribe error, got %v", err)
	}
}

func TestManager_StatsHookReceivesPublishes(t *testing.T) {
	sub := &mockSubscriber{}

	var gotTenant uuid.UUID
	var gotStats []analytics.Stats
	m := NewManager(sub, testClock(), discardLogger(), func(tenantID uuid.UUID, stats analytics.Stats) {
		gotTenant = tenantID
		gotStats = append(gotStats, stats)
	})

	tenantID := uuid.New()
	if _, err := m.Projection(context.Background(), tenantID); err != nil {
		t.Fatalf("projection: %v", err)
	}

	// The initial snapshot already published once.
	if len(gotStats) != 1 {
		t.Fatalf("hook calls after initial snapshot: got %d, want 1", len(gotStats))
	}

	sub.onSnapshot([]model.OrderRecord{completedOrder("100", testNow)})
	if len(gotStats) != 2 {
		t.Fatalf("hook calls after push: got %d, want 2", len(gotStats))
	}
	if gotTenant != tenantID {
		t.Errorf("hook tenant: got %v, want %v", gotTenant, tenantID)
	}
	if gotStats[1].TotalOrders != 1 {
		t.Errorf("hook stats: got %d orders, want 1", gotStats[1].TotalOrders)
	}
}

func TestManager_CloseUnsubscribesAll(t *testing.T) {
	sub := &mockSubscriber{}
	m := NewManager(sub, testClock(), discardLogger(), nil)

	if _, err := m.Projection(context.Background(), uuid.New()); err != nil {
		t.Fatalf("projection: %v", err)
	}

	m.Close()
	m.Close() // idempotent

	if sub.unsubscribes != 1 {
		t.Errorf("unsubscribes: got %d, want 1", sub.unsubscribes)
	}
}
