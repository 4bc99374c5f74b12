package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/inventoryd/internal/domain"
	"github.com/utafrali/inventoryd/internal/repository"
	"github.com/utafrali/inventoryd/pkg/database"
	apperrors "github.com/utafrali/inventoryd/pkg/errors"
)

// LedgerRepository is the PostgreSQL-backed Ledger Store. Point reads used by
// the Read API go directly against the pool; every mutating engine
// operation instead calls Begin to obtain a Session scoped to one
// transaction. Accepting database.DBTX rather than a concrete *pgxpool.Pool
// lets tests substitute pgxmock without a second repository implementation.
type LedgerRepository struct {
	pool database.DBTX
}

// NewLedgerRepository creates a PostgreSQL-backed Ledger Store.
func NewLedgerRepository(pool database.DBTX) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Begin opens a new transactional Session.
func (r *LedgerRepository) Begin(ctx context.Context) (repository.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &ledgerSession{tx: tx}, nil
}

// FindInventory reads the current inventory row without a transaction.
func (r *LedgerRepository) FindInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return findInventory(ctx, r.pool, productID, storeID)
}

// ListInventory returns a page of inventory rows ordered by last_updated.
func (r *LedgerRepository) ListInventory(ctx context.Context, offset, limit int) ([]domain.Inventory, int, error) {
	query := `
		SELECT id, product_id, store_id, available, reserved, total, version, last_updated,
		       count(*) OVER() AS total_count
		FROM inventory
		ORDER BY last_updated DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var (
		items      []domain.Inventory
		totalCount int
	)
	for rows.Next() {
		var i domain.Inventory
		if err := rows.Scan(&i.ID, &i.ProductID, &i.StoreID, &i.Available, &i.Reserved, &i.Total, &i.Version, &i.LastUpdated, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan inventory row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate inventory rows: %w", err)
	}
	if items == nil {
		items = []domain.Inventory{}
	}
	return items, totalCount, nil
}

// ListInventoryByStore returns every inventory row held at storeID.
func (r *LedgerRepository) ListInventoryByStore(ctx context.Context, storeID string) ([]domain.Inventory, error) {
	query := `
		SELECT id, product_id, store_id, available, reserved, total, version, last_updated
		FROM inventory
		WHERE store_id = $1
		ORDER BY product_id ASC`

	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("list inventory by store: %w", err)
	}
	defer rows.Close()

	var items []domain.Inventory
	for rows.Next() {
		var i domain.Inventory
		if err := rows.Scan(&i.ID, &i.ProductID, &i.StoreID, &i.Available, &i.Reserved, &i.Total, &i.Version, &i.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}
	if items == nil {
		items = []domain.Inventory{}
	}
	return items, nil
}

// FindReservation reads a reservation without a transaction.
func (r *LedgerRepository) FindReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return findReservation(ctx, r.pool, id)
}

func findInventory(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, productID, storeID string) (*domain.Inventory, error) {
	query := `
		SELECT id, product_id, store_id, available, reserved, total, version, last_updated
		FROM inventory
		WHERE product_id = $1 AND store_id = $2`

	var i domain.Inventory
	err := q.QueryRow(ctx, query, productID, storeID).Scan(
		&i.ID, &i.ProductID, &i.StoreID, &i.Available, &i.Reserved, &i.Total, &i.Version, &i.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find inventory: %w", err)
	}
	return &i, nil
}

func findReservation(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id string) (*domain.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, store_id, quantity, status, expires_at, created_at, confirmed_at, cancelled_at
		FROM reservations
		WHERE id = $1`

	var res domain.Reservation
	err := q.QueryRow(ctx, query, id).Scan(
		&res.ID, &res.OrderID, &res.ProductID, &res.StoreID, &res.Quantity,
		&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.ConfirmedAt, &res.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &res, nil
}
