package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/inventoryd/internal/domain"
)

// ledgerSession implements repository.Session on top of a single pgx.Tx.
// ConditionalUpdateInventory is the only method that mutates the inventory
// counters; every other write is a plain, unconditional statement scoped to
// this transaction's own row (reservation insert/status update, movement
// audit row).
type ledgerSession struct {
	tx pgx.Tx
}

func (s *ledgerSession) FindInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return findInventory(ctx, s.tx, productID, storeID)
}

func (s *ledgerSession) FindReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return findReservation(ctx, s.tx, id)
}

// ConditionalUpdateInventory applies the deltas only if the stored version
// still matches expectedVersion, incrementing version by 1 and stamping
// last_updated. Returns false (no error) when the predicate didn't match —
// callers translate that into OPTIMISTIC_LOCK_CONFLICT.
func (s *ledgerSession) ConditionalUpdateInventory(ctx context.Context, productID, storeID string, expectedVersion, deltaAvailable, deltaReserved, deltaTotal int) (bool, error) {
	query := `
		UPDATE inventory
		SET available = available + $1,
		    reserved = reserved + $2,
		    total = total + $3,
		    version = version + 1,
		    last_updated = now()
		WHERE product_id = $4 AND store_id = $5 AND version = $6`

	ct, err := s.tx.Exec(ctx, query, deltaAvailable, deltaReserved, deltaTotal, productID, storeID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("conditional update inventory: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *ledgerSession) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	query := `
		INSERT INTO reservations (id, order_id, product_id, store_id, quantity, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.tx.Exec(ctx, query, r.ID, r.OrderID, r.ProductID, r.StoreID, r.Quantity, r.Status, r.ExpiresAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *ledgerSession) UpdateReservationStatus(ctx context.Context, id, newStatus string, confirmedAt, cancelledAt *time.Time) error {
	query := `
		UPDATE reservations
		SET status = $1,
		    confirmed_at = COALESCE($2, confirmed_at),
		    cancelled_at = COALESCE($3, cancelled_at)
		WHERE id = $4`

	_, err := s.tx.Exec(ctx, query, newStatus, confirmedAt, cancelledAt, id)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return nil
}

func (s *ledgerSession) InsertStockMovement(ctx context.Context, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (product_id, store_id, delta, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.tx.Exec(ctx, query, m.ProductID, m.StoreID, m.Delta, m.Reason, m.ReferenceID)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

// GetExpiredPending returns PENDING reservations whose deadline has passed,
// for the background sweeper. Runs inside this session's transaction; each
// Expire then re-reads the reservation in its own session.
func (s *ledgerSession) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, store_id, quantity, status, expires_at, created_at, confirmed_at, cancelled_at
		FROM reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`

	rows, err := s.tx.Query(ctx, query, domain.ReservationStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("get expired pending reservations: %w", err)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(
			&res.ID, &res.OrderID, &res.ProductID, &res.StoreID, &res.Quantity,
			&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.ConfirmedAt, &res.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired reservation row: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired reservation rows: %w", err)
	}
	if reservations == nil {
		reservations = []domain.Reservation{}
	}
	return reservations, nil
}

func (s *ledgerSession) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *ledgerSession) Rollback(ctx context.Context) error {
	if err := s.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
