package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/inventoryd/internal/domain"
	"github.com/utafrali/inventoryd/internal/engine"
	"github.com/utafrali/inventoryd/internal/repository"
	apperrors "github.com/utafrali/inventoryd/pkg/errors"
	"github.com/utafrali/inventoryd/pkg/httputil"
	"github.com/utafrali/inventoryd/pkg/pagination"
	"github.com/utafrali/inventoryd/pkg/validator"
)

// InventoryHandler handles HTTP requests for reservation, stock-mutation
// and catalog read endpoints.
type InventoryHandler struct {
	engine            *engine.Engine
	ledger            repository.LedgerStore
	catalog           repository.CatalogRepository
	logger            *slog.Logger
	defaultTTLMinutes int
}

// NewInventoryHandler creates a new inventory HTTP handler. defaultTTLMinutes
// is applied to /inventory/reserve requests that omit ttl_minutes; it comes
// from the service's configured RESERVATION_TTL_SECONDS (default 15 min).
func NewInventoryHandler(eng *engine.Engine, ledger repository.LedgerStore, catalog repository.CatalogRepository, logger *slog.Logger, defaultTTLMinutes int) *InventoryHandler {
	return &InventoryHandler{
		engine:            eng,
		ledger:            ledger,
		catalog:           catalog,
		logger:            logger,
		defaultTTLMinutes: defaultTTLMinutes,
	}
}

// --- Request DTOs ---

// ReserveRequest is the JSON request body for POST /inventory/reserve
type ReserveRequest struct {
	OrderID    string `json:"order_id" validate:"required,order_id"`
	ProductID  string `json:"product_id" validate:"required,uuid"`
	StoreID    string `json:"store_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,gte=1,lte=100"`
	TTLMinutes int    `json:"ttl_minutes" validate:"omitempty,gte=1,lte=60"`
}

// ConfirmRequest is the JSON request body for POST /inventory/confirm
type ConfirmRequest struct {
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
	OrderID       string `json:"order_id" validate:"required,order_id"`
}

// ConsumeRequest is the JSON request body for POST /inventory/consume
type ConsumeRequest struct {
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
}

// UpdateStockRequest is the JSON request body for POST /inventory/update-stock
type UpdateStockRequest struct {
	ProductID   string  `json:"product_id" validate:"required,uuid"`
	StoreID     string  `json:"store_id" validate:"required,uuid"`
	Quantity    int     `json:"quantity" validate:"required,gte=1,lte=1000"`
	Operation   string  `json:"operation" validate:"required,oneof=add subtract"`
	Reason      string  `json:"reason" validate:"omitempty,oneof=stock_in write_off adjustment correction"`
	ReferenceID *string `json:"reference_id" validate:"omitempty"`
}

// --- Handlers ---

// Reserve handles POST /inventory/reserve
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ttl := req.TTLMinutes
	if ttl == 0 {
		ttl = h.defaultTTLMinutes
	}

	result, err := h.engine.Reserve(r.Context(), req.OrderID, req.ProductID, req.StoreID, req.Quantity, ttl)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"reservation_id": result.ReservationID,
		"status":         result.Status,
		"expires_at":     result.ExpiresAt,
		"message":        result.Message,
	}})
}

// Confirm handles POST /inventory/confirm
func (h *InventoryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if _, err := h.engine.Confirm(r.Context(), req.ReservationID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"message": "reservation confirmed",
	}})
}

// Consume handles POST /inventory/consume
func (h *InventoryHandler) Consume(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if _, err := h.engine.Consume(r.Context(), req.ReservationID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"message": "reservation consumed",
	}})
}

// Cancel handles POST /inventory/cancel/{reservation_id}
func (h *InventoryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := httputil.ParseUUID(w, chi.URLParam(r, "reservation_id"))
	if !ok {
		return
	}

	if _, err := h.engine.Cancel(r.Context(), reservationID.String()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"message": "reservation cancelled",
	}})
}

// UpdateStock handles POST /inventory/update-stock
func (h *InventoryHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = domain.MovementReasonAdjustment
	}

	delta := req.Quantity
	if req.Operation == "subtract" {
		delta = -req.Quantity
	}

	if _, err := h.engine.UpdateStock(r.Context(), req.ProductID, req.StoreID, delta, reason, req.ReferenceID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"message": "stock updated",
	}})
}

// GetStockLevel handles GET /inventory/stock/{product_id}/{store_id}
func (h *InventoryHandler) GetStockLevel(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "product_id"))
	if !ok {
		return
	}
	storeID, ok := httputil.ParseUUID(w, chi.URLParam(r, "store_id"))
	if !ok {
		return
	}

	inv, err := h.ledger.FindInventory(r.Context(), productID.String(), storeID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	level := domain.StockLevel{
		ProductID: inv.ProductID,
		StoreID:   inv.StoreID,
		Available: inv.Available,
		Reserved:  inv.Reserved,
		Total:     inv.Total,
		Version:   inv.Version,
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: level})
}

// ListInventory handles GET /inventory/all
func (h *InventoryHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	items, total, err := h.ledger.ListInventory(r.Context(), params.Offset, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.Inventory](items, total, params.Page, params.PerPage))
}

// ListProducts handles GET /inventory/products/
func (h *InventoryHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	products, total, err := h.catalog.ListProducts(r.Context(), params.Offset, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.Product](products, total, params.Page, params.PerPage))
}

// ListStores handles GET /stores/
func (h *InventoryHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.catalog.ListStores(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stores})
}

// GetStore handles GET /stores/{store_id}
func (h *InventoryHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	storeID, ok := httputil.ParseUUID(w, chi.URLParam(r, "store_id"))
	if !ok {
		return
	}

	store, err := h.catalog.GetStore(r.Context(), storeID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: store})
}

// GetStoreInventory handles GET /stores/{store_id}/inventory
func (h *InventoryHandler) GetStoreInventory(w http.ResponseWriter, r *http.Request) {
	storeID, ok := httputil.ParseUUID(w, chi.URLParam(r, "store_id"))
	if !ok {
		return
	}

	store, err := h.catalog.GetStore(r.Context(), storeID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	items, err := h.ledger.ListInventoryByStore(r.Context(), storeID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.StoreInventory{
		Store:     *store,
		Inventory: items,
	}})
}

// writeEngineError translates a Reservation Engine sentinel error into an
// apperrors.AppError before delegating to httputil.WriteError. The engine
// package never imports net/http, so this translation lives here, at the
// HTTP adapter boundary.
func (h *InventoryHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrInsufficientStock):
		err = &apperrors.AppError{Code: "INSUFFICIENT_STOCK", Message: "insufficient available stock for this reservation", Status: http.StatusBadRequest, Err: apperrors.ErrInvalidInput}
	case errors.Is(err, engine.ErrBusinessRule):
		err = apperrors.InvalidInput("operation would leave available stock negative")
	case errors.Is(err, engine.ErrInvalidStatus):
		err = apperrors.Conflict("reservation status does not permit this operation")
	case errors.Is(err, engine.ErrReservationExpired):
		err = &apperrors.AppError{Code: "RESERVATION_EXPIRED", Message: "reservation has expired", Status: http.StatusConflict, Err: apperrors.ErrConflict}
	case errors.Is(err, engine.ErrOptimisticLockConflict):
		err = &apperrors.AppError{Code: "OPTIMISTIC_LOCK_CONFLICT", Message: "inventory was modified concurrently, retry the request", Status: http.StatusConflict, Err: apperrors.ErrConflict}
	case errors.Is(err, engine.ErrLockUnavailable):
		err = &apperrors.AppError{Code: "DISTRIBUTED_LOCK_FAILED", Message: "distributed lock unavailable, retry the request", Status: http.StatusServiceUnavailable, Err: apperrors.ErrServiceUnavail}
	}
	httputil.WriteError(w, r, err, h.logger)
}
