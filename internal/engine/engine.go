// Package engine implements the reservation and stock-mutation state
// machine: Reserve, Confirm, Consume, Cancel, Expire and UpdateStock. Every
// operation that mutates an Inventory row acquires the distributed lock for
// that (product, store) pair before opening a Ledger Store session, and
// releases the lock on every exit path via a deferred finalizer. Confirm is
// the one exception — it only ever touches the Reservation row, so it never
// takes the lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/inventoryd/internal/domain"
	"github.com/utafrali/inventoryd/internal/event"
	"github.com/utafrali/inventoryd/internal/lock"
	"github.com/utafrali/inventoryd/internal/repository"
	apperrors "github.com/utafrali/inventoryd/pkg/errors"
)

// Engine is the Reservation Engine. It holds no request-scoped state; one
// instance is constructed at process start and shared across all request
// goroutines.
type Engine struct {
	ledger         repository.LedgerStore
	lock           *lock.Service
	producer       *event.Producer
	logger         *slog.Logger
	lockTTL        time.Duration
	maxQuantity    int // defense-in-depth bound on Reserve/UpdateStock quantity, independent of the HTTP validator
	cancelAttempts int
}

// New creates a Reservation Engine.
func New(ledger repository.LedgerStore, lockSvc *lock.Service, producer *event.Producer, logger *slog.Logger, lockTTL time.Duration, maxQuantity int) *Engine {
	return &Engine{
		ledger:         ledger,
		lock:           lockSvc,
		producer:       producer,
		logger:         logger,
		lockTTL:        lockTTL,
		maxQuantity:    maxQuantity,
		cancelAttempts: 3,
	}
}

// ReserveResult is the outcome of a successful Reserve call.
type ReserveResult struct {
	ReservationID string
	Status        string
	ExpiresAt     time.Time
	Message       string
}

func (e *Engine) releaseLock(ctx context.Context, key, token string) {
	if err := e.lock.Release(ctx, key, token); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		e.logger.ErrorContext(ctx, "failed to release inventory lock",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) acquireLock(ctx context.Context, productID, storeID string) (key, token string, release func(), err error) {
	key = lock.InventoryKey(productID, storeID)
	token, ok, err := e.lock.Acquire(ctx, key, e.lockTTL)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if !ok {
		return "", "", nil, ErrLockUnavailable
	}
	return key, token, func() { e.releaseLock(ctx, key, token) }, nil
}

// Reserve creates a PENDING reservation and moves quantity from available
// to reserved on the (product, store) inventory row.
func (e *Engine) Reserve(ctx context.Context, orderID, productID, storeID string, quantity, ttlMinutes int) (*ReserveResult, error) {
	if quantity <= 0 || quantity > e.maxQuantity {
		return nil, ErrBusinessRule
	}

	_, _, release, err := e.acquireLock(ctx, productID, storeID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	inv, err := session.FindInventory(ctx, productID, storeID)
	if err != nil {
		return nil, err
	}

	if inv.Available < quantity {
		return nil, ErrInsufficientStock
	}

	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlMinutes) * time.Minute)
	reservation := &domain.Reservation{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  quantity,
		Status:    domain.ReservationStatusPending,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := session.InsertReservation(ctx, reservation); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	ok, err := session.ConditionalUpdateInventory(ctx, productID, storeID, inv.Version, -quantity, quantity, 0)
	if err != nil {
		return nil, fmt.Errorf("reserve conditional update: %w", err)
	}
	if !ok {
		return nil, ErrOptimisticLockConflict
	}

	if err := session.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve session: %w", err)
	}

	if err := e.producer.PublishReservationCreated(ctx, reservation); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish reservation_created event",
			slog.String("reservation_id", reservation.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "reservation created",
		slog.String("reservation_id", reservation.ID),
		slog.String("order_id", orderID),
		slog.String("product_id", productID),
		slog.String("store_id", storeID),
		slog.Int("quantity", quantity),
	)

	return &ReserveResult{
		ReservationID: reservation.ID,
		Status:        reservation.Status,
		ExpiresAt:     expiresAt,
		Message:       "reservation created",
	}, nil
}

// Confirm advances a PENDING reservation to CONFIRMED. It never touches the
// Inventory row and therefore never takes the distributed lock.
func (e *Engine) Confirm(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	pre, err := e.ledger.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !pre.IsPending() {
		return nil, ErrInvalidStatus
	}

	now := time.Now().UTC()
	if pre.IsExpired(now) {
		if err := e.Expire(ctx, reservationID); err != nil {
			return nil, err
		}
		return nil, ErrReservationExpired
	}

	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	res, err := session.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.IsPending() {
		return nil, ErrInvalidStatus
	}
	if res.IsExpired(now) {
		_ = session.Rollback(ctx)
		if err := e.Expire(ctx, reservationID); err != nil {
			return nil, err
		}
		return nil, ErrReservationExpired
	}

	confirmedAt := now
	if err := session.UpdateReservationStatus(ctx, reservationID, domain.ReservationStatusConfirmed, &confirmedAt, nil); err != nil {
		return nil, fmt.Errorf("update reservation status to confirmed: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm session: %w", err)
	}

	res.Status = domain.ReservationStatusConfirmed
	res.ConfirmedAt = &confirmedAt

	if err := e.producer.PublishReservationConfirmed(ctx, res); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish reservation_confirmed event",
			slog.String("reservation_id", reservationID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "reservation confirmed", slog.String("reservation_id", reservationID))
	return res, nil
}

// Consume transitions a CONFIRMED reservation to CONSUMED and deducts the
// reserved quantity from both reserved and total — the point where stock
// physically leaves the store.
func (e *Engine) Consume(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	pre, err := e.ledger.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if pre.Status != domain.ReservationStatusConfirmed {
		return nil, ErrInvalidStatus
	}

	_, _, release, err := e.acquireLock(ctx, pre.ProductID, pre.StoreID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin consume session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	res, err := session.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.ReservationStatusConfirmed {
		return nil, ErrInvalidStatus
	}

	inv, err := session.FindInventory(ctx, res.ProductID, res.StoreID)
	if err != nil {
		return nil, err
	}

	ok, err := session.ConditionalUpdateInventory(ctx, res.ProductID, res.StoreID, inv.Version, 0, -res.Quantity, -res.Quantity)
	if err != nil {
		return nil, fmt.Errorf("consume conditional update: %w", err)
	}
	if !ok {
		return nil, ErrOptimisticLockConflict
	}

	if err := session.UpdateReservationStatus(ctx, reservationID, domain.ReservationStatusConsumed, nil, nil); err != nil {
		return nil, fmt.Errorf("update reservation status to consumed: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consume session: %w", err)
	}

	res.Status = domain.ReservationStatusConsumed

	if err := e.producer.PublishReservationConsumed(ctx, res); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish reservation_consumed event",
			slog.String("reservation_id", reservationID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "reservation consumed", slog.String("reservation_id", reservationID))
	return res, nil
}

// Cancel releases a PENDING or CONFIRMED reservation, restoring its
// quantity to available. Because cancelling is a compensating action the
// caller expects to succeed once the lock is held, a lost optimistic-lock
// race is retried a bounded number of times before surfacing a conflict.
func (e *Engine) Cancel(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	pre, err := e.ledger.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if pre.Status != domain.ReservationStatusPending && pre.Status != domain.ReservationStatusConfirmed {
		return nil, ErrInvalidStatus
	}

	_, _, release, err := e.acquireLock(ctx, pre.ProductID, pre.StoreID)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt < e.cancelAttempts; attempt++ {
		res, done, err := e.tryCancel(ctx, reservationID)
		if err != nil {
			return nil, err
		}
		if done {
			return res, nil
		}
		lastErr = ErrOptimisticLockConflict
	}
	return nil, lastErr
}

// tryCancel runs one attempt of Cancel's conditional update inside its own
// session. done is true once the cancellation has committed; false means
// the caller should retry while still holding the lock.
func (e *Engine) tryCancel(ctx context.Context, reservationID string) (*domain.Reservation, bool, error) {
	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin cancel session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	res, err := session.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, false, err
	}
	if res.Status != domain.ReservationStatusPending && res.Status != domain.ReservationStatusConfirmed {
		return nil, false, ErrInvalidStatus
	}

	inv, err := session.FindInventory(ctx, res.ProductID, res.StoreID)
	if err != nil {
		return nil, false, err
	}

	ok, err := session.ConditionalUpdateInventory(ctx, res.ProductID, res.StoreID, inv.Version, res.Quantity, -res.Quantity, 0)
	if err != nil {
		return nil, false, fmt.Errorf("cancel conditional update: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	cancelledAt := time.Now().UTC()
	if err := session.UpdateReservationStatus(ctx, reservationID, domain.ReservationStatusCancelled, nil, &cancelledAt); err != nil {
		return nil, false, fmt.Errorf("update reservation status to cancelled: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit cancel session: %w", err)
	}

	res.Status = domain.ReservationStatusCancelled
	res.CancelledAt = &cancelledAt

	if err := e.producer.PublishReservationCancelled(ctx, res); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish reservation_cancelled event",
			slog.String("reservation_id", reservationID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "reservation cancelled", slog.String("reservation_id", reservationID))
	return res, true, nil
}

// Expire transitions a PENDING reservation whose TTL has elapsed to
// EXPIRED, restoring its quantity to available. It is triggered lazily by
// Confirm and directly by the background sweeper; both call sites pass a
// reservation ID and let Expire do its own locked re-read, so a second call
// on an already-terminal reservation is a no-op.
func (e *Engine) Expire(ctx context.Context, reservationID string) error {
	pre, err := e.ledger.FindReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !pre.IsPending() {
		return nil
	}

	_, _, release, err := e.acquireLock(ctx, pre.ProductID, pre.StoreID)
	if err != nil {
		return err
	}
	defer release()

	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin expire session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	res, err := session.FindReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.IsPending() {
		return nil
	}

	inv, err := session.FindInventory(ctx, res.ProductID, res.StoreID)
	if err != nil {
		return err
	}

	ok, err := session.ConditionalUpdateInventory(ctx, res.ProductID, res.StoreID, inv.Version, res.Quantity, -res.Quantity, 0)
	if err != nil {
		return fmt.Errorf("expire conditional update: %w", err)
	}
	if !ok {
		return ErrOptimisticLockConflict
	}

	if err := session.UpdateReservationStatus(ctx, reservationID, domain.ReservationStatusExpired, nil, nil); err != nil {
		return fmt.Errorf("update reservation status to expired: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return fmt.Errorf("commit expire session: %w", err)
	}

	res.Status = domain.ReservationStatusExpired
	if err := e.producer.PublishReservationExpired(ctx, res); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish reservation_expired event",
			slog.String("reservation_id", reservationID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "reservation expired", slog.String("reservation_id", reservationID))
	return nil
}

// SweepExpiredReservations scans for PENDING reservations whose TTL has
// elapsed and expires each one. It is invoked periodically by a background
// ticker (see internal/app) to bound the window in which an expired
// reservation still holds reserved stock that no live request will ever
// release.
func (e *Engine) SweepExpiredReservations(ctx context.Context, limit int) (int, error) {
	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin sweep session: %w", err)
	}

	expired, err := session.GetExpiredPending(ctx, time.Now().UTC(), limit)
	if err != nil {
		_ = session.Rollback(ctx)
		return 0, fmt.Errorf("list expired pending reservations: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sweep session: %w", err)
	}

	expiredCount := 0
	for i := range expired {
		if err := e.Expire(ctx, expired[i].ID); err != nil {
			e.logger.ErrorContext(ctx, "failed to expire reservation during sweep",
				slog.String("reservation_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		expiredCount++
	}
	return expiredCount, nil
}

// UpdateStock applies an administrative stock adjustment (stock-in,
// write-off, correction) and records a StockMovement audit row in the same
// transaction as the counter mutation.
func (e *Engine) UpdateStock(ctx context.Context, productID, storeID string, delta int, reason string, referenceID *string) (*domain.Inventory, error) {
	if !domain.IsValidMovementReason(reason) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid movement reason %q", reason))
	}

	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude == 0 || magnitude > e.maxQuantity {
		return nil, ErrBusinessRule
	}

	_, _, release, err := e.acquireLock(ctx, productID, storeID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update-stock session: %w", err)
	}
	defer func() { _ = session.Rollback(ctx) }()

	inv, err := session.FindInventory(ctx, productID, storeID)
	if err != nil {
		return nil, err
	}

	newAvailable := inv.Available + delta
	if newAvailable < 0 {
		return nil, ErrBusinessRule
	}

	ok, err := session.ConditionalUpdateInventory(ctx, productID, storeID, inv.Version, delta, 0, delta)
	if err != nil {
		return nil, fmt.Errorf("update-stock conditional update: %w", err)
	}
	if !ok {
		return nil, ErrOptimisticLockConflict
	}

	movement := &domain.StockMovement{
		ID:          uuid.New().String(),
		ProductID:   productID,
		StoreID:     storeID,
		Delta:       delta,
		Reason:      reason,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := session.InsertStockMovement(ctx, movement); err != nil {
		return nil, fmt.Errorf("insert stock movement: %w", err)
	}

	if err := session.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update-stock session: %w", err)
	}

	updated := &domain.Inventory{
		ID:          inv.ID,
		ProductID:   productID,
		StoreID:     storeID,
		Available:   newAvailable,
		Reserved:    inv.Reserved,
		Total:       inv.Total + delta,
		Version:     inv.Version + 1,
		LastUpdated: movement.CreatedAt,
	}

	if err := e.producer.PublishStockUpdated(ctx, updated); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish stock_updated event",
			slog.String("product_id", productID),
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "stock updated",
		slog.String("product_id", productID),
		slog.String("store_id", storeID),
		slog.Int("delta", delta),
		slog.String("reason", reason),
	)
	return updated, nil
}
