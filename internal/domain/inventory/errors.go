package inventory

import (
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
)

func hasCode(target error, code string) bool {
	t, ok := target.(*shared.DomainError)
	return ok && t.Code == code
}

// InsufficientStockError is returned when a reservation asks for more than
// is available. WarehouseID is empty when the shortfall is across all
// warehouses of the SKU.
type InsufficientStockError struct {
	SKU         string
	WarehouseID string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	if e.WarehouseID == "" {
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
			e.SKU, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for %s at %s: requested %d, available %d",
		e.SKU, e.WarehouseID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return hasCode(target, shared.CodeInsufficientStock)
}

func (e *InsufficientStockError) ErrorCode() string { return shared.CodeInsufficientStock }

// InvalidStateError is returned when an operation is attempted on an entity
// whose state does not allow it (commit of a released hold, cancel of a
// fulfilled order, ...).
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Action, e.Entity, e.ID, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return hasCode(target, shared.CodeInvalidState)
}

func (e *InvalidStateError) ErrorCode() string { return shared.CodeInvalidState }

// UnknownWarehouseError is returned for operations naming an unregistered warehouse
type UnknownWarehouseError struct {
	WarehouseID string
}

func (e *UnknownWarehouseError) Error() string {
	return fmt.Sprintf("unknown warehouse %s", e.WarehouseID)
}

func (e *UnknownWarehouseError) Is(target error) bool {
	return hasCode(target, shared.CodeUnknownWarehouse)
}

func (e *UnknownWarehouseError) ErrorCode() string { return shared.CodeUnknownWarehouse }

// WarehouseInactiveError is returned when stock is received into a deactivated warehouse
type WarehouseInactiveError struct {
	WarehouseID string
}

func (e *WarehouseInactiveError) Error() string {
	return fmt.Sprintf("warehouse %s is inactive", e.WarehouseID)
}

func (e *WarehouseInactiveError) Is(target error) bool {
	return hasCode(target, shared.CodeWarehouseInactive)
}

func (e *WarehouseInactiveError) ErrorCode() string { return shared.CodeWarehouseInactive }

// InvalidQuantityError is returned for zero or negative quantities
type InvalidQuantityError struct {
	Quantity int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

func (e *InvalidQuantityError) Is(target error) bool {
	return hasCode(target, shared.CodeInvalidQuantity)
}

func (e *InvalidQuantityError) ErrorCode() string { return shared.CodeInvalidQuantity }

// CapacityExceededError describes a warehouse holding more than its capacity.
// Capacity is advisory: the error travels inside a capacity_exceeded event
// and never fails the restock that caused it.
type CapacityExceededError struct {
	WarehouseID string
	Capacity    int64
	OnHand      int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("warehouse %s holds %d units, capacity %d", e.WarehouseID, e.OnHand, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool {
	return hasCode(target, shared.CodeCapacityExceeded)
}

func (e *CapacityExceededError) ErrorCode() string { return shared.CodeCapacityExceeded }

// QuantityOverflowError is returned when adding stock would push a record's
// on-hand count, or a warehouse total when SKU is empty, past the int64 range.
type QuantityOverflowError struct {
	SKU         string
	WarehouseID string
	OnHand      int64
	Quantity    int64
}

func (e *QuantityOverflowError) Error() string {
	if e.SKU == "" {
		return fmt.Sprintf("adding %d units to warehouse %s overflows its total of %d",
			e.Quantity, e.WarehouseID, e.OnHand)
	}
	return fmt.Sprintf("adding %d units of %s at %s overflows on hand of %d",
		e.Quantity, e.SKU, e.WarehouseID, e.OnHand)
}

func (e *QuantityOverflowError) Is(target error) bool {
	return hasCode(target, shared.CodeInvalidQuantity)
}

func (e *QuantityOverflowError) ErrorCode() string { return shared.CodeInvalidQuantity }
