package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ErrMenuItemNotFound is returned when a menu id has no row for the tenant.
var ErrMenuItemNotFound = errors.New("menu item not found")

// MenuItem is the catalog view an order snapshots at construction time.
// The console's admin screens own the catalog itself; the engine only reads.
type MenuItem struct {
	ID          uuid.UUID
	Name        string
	Category    string
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Vegetarian  bool
	Spicy       bool
	Recommended bool
	Popular     bool
	Bestseller  bool
}

// Catalog looks up menu items for order construction.
type Catalog interface {
	GetMenuItem(ctx context.Context, tenantID, menuID uuid.UUID) (MenuItem, error)
}

// DBTX is the subset of pgx the catalog needs.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads the menu catalog from Postgres.
type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) GetMenuItem(ctx context.Context, tenantID, menuID uuid.UUID) (MenuItem, error) {
	const query = `SELECT id, name, category, price, discount,
		vegetarian, spicy, recommended, popular, bestseller
	FROM menu_items WHERE id = $1 AND tenant_id = $2`

	var (
		item     MenuItem
		category pgtype.Text
		price    pgtype.Numeric
		discount pgtype.Numeric
	)
	err := s.db.QueryRow(ctx, query, menuID, tenantID).Scan(
		&item.ID, &item.Name, &category, &price, &discount,
		&item.Vegetarian, &item.Spicy, &item.Recommended, &item.Popular, &item.Bestseller,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, ErrMenuItemNotFound
		}
		return MenuItem{}, fmt.Errorf("get menu item: %w", err)
	}

	if category.Valid {
		item.Category = category.String
	}
	item.Price = numericToDecimal(price)
	item.Discount = numericToDecimal(discount)
	return item, nil
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
