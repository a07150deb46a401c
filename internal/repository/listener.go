package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/thali-pos/api/internal/model"
)

const (
	ordersChannel  = "orders_changed"
	coalesceWindow = 100 * time.Millisecond
	reconnectDelay = 2 * time.Second
)

// Loader reloads a tenant's full order set. Satisfied by *Store.
type Loader interface {
	ListOrders(ctx context.Context, tenantID uuid.UUID) ([]model.OrderRecord, error)
}

// Listener delivers push-based order-set snapshots. Each write to the
// orders table fires a NOTIFY carrying the tenant id; the listener reloads
// the tenant's full set and hands it to the subscriber. Bursts inside the
// coalesce window arrive as one snapshot, so consumers always aggregate
// from final state.
type Listener struct {
	dsn    string
	loader Loader
	logger *slog.Logger
}

// NewListener creates a Listener. The DSN is used for a dedicated LISTEN
// connection per subscription, separate from the pool.
func NewListener(dsn string, loader Loader, logger *slog.Logger) *Listener {
	return &Listener{dsn: dsn, loader: loader, logger: logger}
}

// Subscribe starts delivering snapshots for one tenant: an initial snapshot
// on subscribe, then one per coalesced batch of writes. Snapshots are
// delivered in store write order on a single goroutine. The returned
// function cancels the subscription and is safe to call more than once.
func (l *Listener) Subscribe(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Deliver the initial snapshot synchronously so subscribers never
	// observe an empty window before the first write.
	orders, err := l.loader.ListOrders(subCtx, tenantID)
	if err != nil {
		cancel()
		return nil, err
	}
	onSnapshot(orders)

	go l.run(subCtx, tenantID, onSnapshot)

	var once sync.Once
	unsubscribe := func() {
		once.Do(cancel)
	}
	return unsubscribe, nil
}

func (l *Listener) run(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) {
	for {
		if err := l.listen(ctx, tenantID, onSnapshot); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("order listener disconnected", "tenant_id", tenantID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ordersChannel); err != nil {
		return err
	}

	// The connection may have missed writes while (re)connecting.
	if err := l.deliver(ctx, tenantID, onSnapshot); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != tenantID.String() {
			continue
		}

		// Coalesce the burst: drain further notifications for a short
		// window, then reload once from final state.
		l.drain(ctx, conn)

		if err := l.deliver(ctx, tenantID, onSnapshot); err != nil {
			return err
		}
	}
}

func (l *Listener) drain(ctx context.Context, conn *pgx.Conn) {
	drainCtx, cancel := context.WithTimeout(ctx, coalesceWindow)
	defer cancel()
	for {
		if _, err := conn.WaitForNotification(drainCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return
			}
			return
		}
	}
}

func (l *Listener) deliver(ctx context.Context, tenantID uuid.UUID, onSnapshot func([]model.OrderRecord)) error {
	orders, err := l.loader.ListOrders(ctx, tenantID)
	if err != nil {
		return err
	}
	onSnapshot(orders)
	return nil
}
