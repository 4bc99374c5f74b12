package repository

import (
	"context"
	"time"

	"github.com/utafrali/inventoryd/internal/domain"
)

// LedgerStore is the transactional session contract the Ledger Store
// exposes to the Reservation Engine. Begin returns a new transactional
// Session bound to a single engine operation attempt; Commit/Rollback end
// it. conditional_update_inventory is the only mutation path for inventory
// counters — no other method on Session may change available/reserved/total.
type LedgerStore interface {
	Begin(ctx context.Context) (Session, error)

	// FindInventory reads without a transaction, used by the Read API.
	FindInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error)
	ListInventory(ctx context.Context, offset, limit int) ([]domain.Inventory, int, error)
	ListInventoryByStore(ctx context.Context, storeID string) ([]domain.Inventory, error)

	// FindReservation reads without a transaction, used by the engine's
	// status pre-checks.
	FindReservation(ctx context.Context, id string) (*domain.Reservation, error)
}

// Session is a single transactional unit of work against the Ledger Store.
// Each attempt of a mutating engine operation acquires one Session, performs its
// reads and writes through it, and calls Commit or Rollback on every exit
// path.
type Session interface {
	FindInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error)
	FindReservation(ctx context.Context, id string) (*domain.Reservation, error)

	// ConditionalUpdateInventory applies the given deltas exactly when the
	// stored version equals expectedVersion. On success it increments
	// version by 1 and sets last_updated to commit time. Returns whether a
	// row was affected.
	ConditionalUpdateInventory(ctx context.Context, productID, storeID string, expectedVersion, deltaAvailable, deltaReserved, deltaTotal int) (bool, error)

	InsertReservation(ctx context.Context, r *domain.Reservation) error
	UpdateReservationStatus(ctx context.Context, id, newStatus string, confirmedAt, cancelledAt *time.Time) error

	InsertStockMovement(ctx context.Context, m *domain.StockMovement) error

	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CatalogRepository serves the read-only Product and Store lookups the
// engine consults but never mutates.
type CatalogRepository interface {
	ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	ListStores(ctx context.Context) ([]domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
}
