package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/model"
	"github.com/thali-pos/api/internal/repository"
)

// InvalidTransitionError reports an attempted status change outside the
// allowed-next set. The order is left untouched.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// allowedTransitions defines the kitchen/service lifecycle. Completed and
// rejected are terminal; re-issuing the current status is a no-op handled
// before this table is consulted.
var allowedTransitions = map[string][]string{
	enum.OrderStatusReceived:  {enum.OrderStatusPreparing, enum.OrderStatusRejected},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusRejected},
	enum.OrderStatusReady:     {enum.OrderStatusServed, enum.OrderStatusCompleted},
	enum.OrderStatusServed:    {enum.OrderStatusCompleted},
}

// ValidateTransition checks the allowed-next table without touching state.
func ValidateTransition(current, next string) error {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return &InvalidTransitionError{From: current, To: next}
}

// TransitionStore defines the store methods the engine needs.
// Satisfied by *repository.Store.
type TransitionStore interface {
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (model.OrderRecord, error)
	UpdateOrderStatus(ctx context.Context, arg repository.UpdateStatusParams) (model.OrderRecord, error)
}

// TransitionMeta carries optional context for a transition.
type TransitionMeta struct {
	Note            string
	RejectionReason string
}

// TransitionEngine validates and applies status changes, stamping
// timestamps and history. It is the single writer path for order status;
// concurrent attempts on the same order are arbitrated by the store's
// current-status guard, not here, and the engine never retries on its own.
type TransitionEngine struct {
	store TransitionStore
	clock clock.Clock
}

// NewTransitionEngine creates a TransitionEngine.
func NewTransitionEngine(store TransitionStore, clk clock.Clock) *TransitionEngine {
	return &TransitionEngine{store: store, clock: clk}
}

// Apply moves an order to next. Re-issuing the status an order already
// holds returns the order unchanged: no history entry, no timestamp
// overwrite, no write.
func (e *TransitionEngine) Apply(ctx context.Context, tenantID, orderID uuid.UUID, next string, meta TransitionMeta) (model.OrderRecord, error) {
	if !enum.ValidOrderStatus(next) {
		return model.OrderRecord{}, &InvalidTransitionError{From: "", To: next}
	}

	order, err := e.store.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return model.OrderRecord{}, err
	}

	if order.Status == next {
		return order, nil
	}

	if err := ValidateTransition(order.Status, next); err != nil {
		return model.OrderRecord{}, err
	}

	now := e.clock.Now()
	params := repository.UpdateStatusParams{
		TenantID:        tenantID,
		OrderID:         orderID,
		FromStatus:      order.Status,
		Status:          next,
		ServingStatus:   order.ServingStatus,
		RejectionReason: order.RejectionReason,
		PrepStartedAt:   order.Timestamps.PrepStartedAt,
		ReadyAt:         order.Timestamps.ReadyAt,
		CompletedAt:     order.Timestamps.CompletedAt,
		RejectedAt:      order.Timestamps.RejectedAt,
	}

	note := meta.Note
	switch next {
	case enum.OrderStatusPreparing:
		params.PrepStartedAt = &now
	case enum.OrderStatusReady:
		params.ReadyAt = &now
	case enum.OrderStatusServed, enum.OrderStatusCompleted:
		params.CompletedAt = &now
		params.ServingStatus = enum.ServingStatusServed
	case enum.OrderStatusRejected:
		params.RejectedAt = &now
		params.RejectionReason = meta.RejectionReason
		if note == "" {
			note = meta.RejectionReason
		}
	}

	params.StatusHistory = append(order.StatusHistory, model.StatusEntry{
		Status:    next,
		Timestamp: now,
		Note:      note,
	})

	updated, err := e.store.UpdateOrderStatus(ctx, params)
	if err != nil {
		// Persistence failures surface as-is; the caller owns retry.
		return model.OrderRecord{}, err
	}
	return updated, nil
}
