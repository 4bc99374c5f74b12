package engine

import "errors"

// Sentinel errors returned by the Reservation Engine. The HTTP adapter
// translates each into an apperrors.AppError via errors.Is; the engine and
// repository layers never import net/http.
var (
	// ErrInsufficientStock is returned by Reserve when available is less
	// than the requested quantity.
	ErrInsufficientStock = errors.New("engine: insufficient stock")

	// ErrInvalidStatus is returned when an operation is attempted against
	// a reservation whose current status does not permit it.
	ErrInvalidStatus = errors.New("engine: invalid reservation status for this operation")

	// ErrReservationExpired is returned by Confirm when the reservation's
	// TTL has already elapsed; the engine has transitioned it to EXPIRED
	// as a side effect of detecting this.
	ErrReservationExpired = errors.New("engine: reservation expired")

	// ErrOptimisticLockConflict is returned when a conditional update
	// affected zero rows because the inventory version moved under the
	// caller.
	ErrOptimisticLockConflict = errors.New("engine: optimistic lock conflict")

	// ErrLockUnavailable is returned when the distributed lock on the
	// (product, store) key could not be acquired.
	ErrLockUnavailable = errors.New("engine: distributed lock unavailable")

	// ErrBusinessRule is returned when an otherwise well-formed request
	// would violate a business invariant (e.g. stock going negative).
	ErrBusinessRule = errors.New("engine: business rule violation")
)
