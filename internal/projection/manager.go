package projection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/model"
)

// Subscriber is the repository's live order-set subscription.
// Satisfied by *repository.Listener.
type Subscriber interface {
	Subscribe(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) (func(), error)
}

// Manager owns one Projection per tenant, lazily created when a dashboard
// first asks for it, each backed by its own repository subscription.
type Manager struct {
	subscriber Subscriber
	clock      clock.Clock
	logger     *slog.Logger
	onStats    func(tenantID uuid.UUID, stats analytics.Stats)

	// Subscriptions live as long as the manager, not the request that
	// triggered them.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantProjection
}

type tenantProjection struct {
	projection  *Projection
	unsubscribe func()
}

// NewManager creates a Manager. onStats, if non-nil, is invoked with every
// published snapshot (the websocket broadcast hook); it may be called from
// the subscription goroutine.
func NewManager(sub Subscriber, clk clock.Clock, logger *slog.Logger, onStats func(uuid.UUID, analytics.Stats)) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		subscriber: sub,
		clock:      clk,
		logger:     logger,
		onStats:    onStats,
		baseCtx:    ctx,
		cancel:     cancel,
		tenants:    map[uuid.UUID]*tenantProjection{},
	}
}

// Projection returns the tenant's projection, starting its subscription on
// first use. The subscription is bound to the manager's lifetime, so a
// projection opened by one request keeps serving later ones; ctx only
// scopes the lookup itself.
func (m *Manager) Projection(ctx context.Context, tenantID uuid.UUID) (*Projection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tp, ok := m.tenants[tenantID]; ok {
		return tp.projection, nil
	}

	proj := New(m.clock)
	if m.onStats != nil {
		proj.Subscribe(func(stats analytics.Stats) {
			m.onStats(tenantID, stats)
		})
	}

	unsubscribe, err := m.subscriber.Subscribe(m.baseCtx, tenantID, proj.OnSnapshot)
	if err != nil {
		return nil, err
	}
	m.tenants[tenantID] = &tenantProjection{projection: proj, unsubscribe: unsubscribe}
	m.logger.Info("projection started", "tenant_id", tenantID)
	return proj, nil
}

// Close cancels every tenant subscription. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	for id, tp := range m.tenants {
		tp.unsubscribe()
		delete(m.tenants, id)
	}
}
