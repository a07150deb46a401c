package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/model"
)

// Errors returned by the order store.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed, please retry")
)

// DBTX is the subset of pgx the store needs. Satisfied by *pgxpool.Pool,
// pgx.Tx, and the pgxmock pool in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists orders and decodes rows into the canonical OrderRecord.
// This is the only place raw rows become OrderRecords.
type Store struct {
	db  DBTX
	loc *time.Location
}

// New creates a Store over a pool or transaction.
func New(db DBTX, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

const orderColumns = `id, tenant_id, order_number, order_type, table_number,
	customer_name, customer_mobile, status, serving_status, platform,
	commission_rate, net_revenue, payment_method, rejection_reason,
	items, subtotal, tax_rate, tax, total,
	placed_at, estimated_ready_at, prep_started_at, ready_at, completed_at, rejected_at,
	status_history`

// NextOrderNumber returns MAX(order_number)+1 for a tenant. Only safe when
// called inside the order-creation transaction; the unique index on
// (tenant_id, order_number) arbitrates concurrent creators.
func (s *Store) NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int32, error) {
	const query = `SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders WHERE tenant_id = $1`
	var next int32
	if err := s.db.QueryRow(ctx, query, tenantID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return next, nil
}

// CreateOrder inserts a fully-built OrderRecord. The write is atomic per
// document; there is nothing to roll back on failure.
func (s *Store) CreateOrder(ctx context.Context, o *model.OrderRecord) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}

	const query = `INSERT INTO orders (
		id, tenant_id, order_number, order_type, table_number,
		customer_name, customer_mobile, status, serving_status, platform,
		commission_rate, net_revenue, payment_method,
		items, subtotal, tax_rate, tax, total,
		placed_at, order_date, estimated_ready_at, status_history
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22
	)`

	_, err = s.db.Exec(ctx, query,
		o.ID, o.TenantID, o.OrderNumber, o.OrderType, nullInt32(o.TableNumber),
		o.CustomerName, o.CustomerMobile, o.Status, o.ServingStatus, o.Platform,
		decimalToNumeric(o.CommissionRate), decimalToNumeric(o.NetRevenue), o.PaymentMethod,
		items, decimalToNumeric(o.Pricing.Subtotal), decimalToNumeric(o.Pricing.TaxRate),
		decimalToNumeric(o.Pricing.Tax), decimalToNumeric(o.Pricing.Total),
		o.Timestamps.PlacedAt, o.Timestamps.OrderDate, o.Timestamps.EstimatedReadyAt, history,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateStatusParams carries the already-validated result of a status
// transition. FromStatus guards the write: if the stored status no longer
// matches, nothing is updated and ErrStatusConflict is returned so the
// caller can retry with fresh state.
type UpdateStatusParams struct {
	TenantID        uuid.UUID
	OrderID         uuid.UUID
	FromStatus      string
	Status          string
	ServingStatus   string
	RejectionReason string
	PrepStartedAt   *time.Time
	ReadyAt         *time.Time
	CompletedAt     *time.Time
	RejectedAt      *time.Time
	StatusHistory   []model.StatusEntry
}

// UpdateOrderStatus patches the lifecycle fields of one order.
func (s *Store) UpdateOrderStatus(ctx context.Context, arg UpdateStatusParams) (model.OrderRecord, error) {
	history, err := json.Marshal(arg.StatusHistory)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("marshal status history: %w", err)
	}

	query := `UPDATE orders SET
		status = $1, serving_status = $2, rejection_reason = $3,
		prep_started_at = $4, ready_at = $5, completed_at = $6, rejected_at = $7,
		status_history = $8, updated_at = now()
	WHERE id = $9 AND tenant_id = $10 AND status = $11
	RETURNING ` + orderColumns

	row := s.db.QueryRow(ctx, query,
		arg.Status, arg.ServingStatus, nullText(arg.RejectionReason),
		nullTime(arg.PrepStartedAt), nullTime(arg.ReadyAt), nullTime(arg.CompletedAt), nullTime(arg.RejectedAt),
		history, arg.OrderID, arg.TenantID, arg.FromStatus,
	)
	o, err := s.scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OrderRecord{}, ErrStatusConflict
		}
		return model.OrderRecord{}, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// GetOrder fetches one order scoped to a tenant.
func (s *Store) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (model.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`
	o, err := s.scanOrder(s.db.QueryRow(ctx, query, orderID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OrderRecord{}, ErrOrderNotFound
		}
		return model.OrderRecord{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders returns the full live order set for a tenant, oldest first.
// Aggregation depends on first-seen item order being stable across reloads.
func (s *Store) ListOrders(ctx context.Context, tenantID uuid.UUID) ([]model.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	WHERE tenant_id = $1 ORDER BY placed_at, order_number`
	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var result []model.OrderRecord
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return result, nil
}

// scanOrder decodes one row into the normalized OrderRecord. OrderDate is
// re-derived from placed_at here so the stored column can never drift from
// the invariant.
func (s *Store) scanOrder(row pgx.Row) (model.OrderRecord, error) {
	var (
		o              model.OrderRecord
		tableNumber    pgtype.Int4
		servingStatus  pgtype.Text
		rejectReason   pgtype.Text
		commissionRate pgtype.Numeric
		netRevenue     pgtype.Numeric
		itemsRaw       []byte
		subtotal       pgtype.Numeric
		taxRate        pgtype.Numeric
		tax            pgtype.Numeric
		total          pgtype.Numeric
		prepStartedAt  pgtype.Timestamptz
		readyAt        pgtype.Timestamptz
		completedAt    pgtype.Timestamptz
		rejectedAt     pgtype.Timestamptz
		historyRaw     []byte
	)

	err := row.Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &o.OrderType, &tableNumber,
		&o.CustomerName, &o.CustomerMobile, &o.Status, &servingStatus, &o.Platform,
		&commissionRate, &netRevenue, &o.PaymentMethod, &rejectReason,
		&itemsRaw, &subtotal, &taxRate, &tax, &total,
		&o.Timestamps.PlacedAt, &o.Timestamps.EstimatedReadyAt,
		&prepStartedAt, &readyAt, &completedAt, &rejectedAt,
		&historyRaw,
	)
	if err != nil {
		return model.OrderRecord{}, err
	}

	if tableNumber.Valid {
		o.TableNumber = tableNumber.Int32
	}
	if servingStatus.Valid {
		o.ServingStatus = servingStatus.String
	}
	if rejectReason.Valid {
		o.RejectionReason = rejectReason.String
	}
	o.CommissionRate = numericToDecimal(commissionRate)
	o.NetRevenue = numericToDecimal(netRevenue)
	o.Pricing = model.Pricing{
		Subtotal: numericToDecimal(subtotal),
		TaxRate:  numericToDecimal(taxRate),
		Tax:      numericToDecimal(tax),
		Total:    numericToDecimal(total),
	}
	if prepStartedAt.Valid {
		t := prepStartedAt.Time
		o.Timestamps.PrepStartedAt = &t
	}
	if readyAt.Valid {
		t := readyAt.Time
		o.Timestamps.ReadyAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		o.Timestamps.CompletedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		o.Timestamps.RejectedAt = &t
	}
	o.Timestamps.OrderDate = clock.DayOf(o.Timestamps.PlacedAt, s.loc)

	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return model.OrderRecord{}, fmt.Errorf("decode items: %w", err)
		}
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &o.StatusHistory); err != nil {
			return model.OrderRecord{}, fmt.Errorf("decode status history: %w", err)
		}
	}

	return o, nil
}

// --- Helpers ---

func nullInt32(v int32) pgtype.Int4 {
	if v == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: v, Valid: true}
}

func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
