package inventory

import (
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeStockRecord = "StockRecord"
	AggregateTypeWarehouse   = "Warehouse"
)

// Event type constants
const (
	EventTypeStockReserved    = "stock_reserved"
	EventTypeStockCommitted   = "stock_committed"
	EventTypeStockReleased    = "stock_released"
	EventTypeStockRestocked   = "stock_restocked"
	EventTypeLowStockAlert    = "low_stock_alert"
	EventTypeCapacityExceeded = "capacity_exceeded"
)

// RestockSource tells where restocked units came from
type RestockSource string

const (
	RestockSourceRestock      RestockSource = "restock"
	RestockSourceTransferIn   RestockSource = "transfer_in"
	RestockSourceCompensation RestockSource = "compensation"
)

// StockChange is the payload shared by stock events: the quantity moved and
// the record as it stood right after the mutation.
type StockChange struct {
	SKU           string    `json:"sku"`
	WarehouseID   string    `json:"warehouse_id"`
	Quantity      int64     `json:"quantity"`
	OnHand        int64     `json:"on_hand"`
	Reserved      int64     `json:"reserved"`
	Available     int64     `json:"available"`
	HoldID        uuid.UUID `json:"hold_id,omitempty"`
	ReservationID uuid.UUID `json:"reservation_id,omitempty"`
	OwnerKind     OwnerKind `json:"owner_kind,omitempty"`
	OwnerID       string    `json:"owner_id,omitempty"`
}

func newStockChange(r *StockRecord, quantity int64, h *Hold) StockChange {
	c := StockChange{
		SKU:         r.key.SKU,
		WarehouseID: r.key.WarehouseID,
		Quantity:    quantity,
		OnHand:      r.onHand,
		Reserved:    r.reserved,
		Available:   r.available(),
	}
	if h != nil {
		c.HoldID = h.ID
		c.ReservationID = h.ReservationID
		c.OwnerKind = h.Owner.Kind
		c.OwnerID = h.Owner.ID
	}
	return c
}

// MovedQuantity returns the units the mutation moved
func (c StockChange) MovedQuantity() int64 {
	return c.Quantity
}

// StockReservedEvent is raised when a hold is placed on a record
type StockReservedEvent struct {
	shared.BaseDomainEvent
	StockChange
}

// NewStockReservedEvent creates a new StockReservedEvent
func NewStockReservedEvent(r *StockRecord, h Hold) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReserved, AggregateTypeStockRecord, r.key.String()),
		StockChange:     newStockChange(r, h.Quantity, &h),
	}
}

// EventType returns the event type name
func (e *StockReservedEvent) EventType() string {
	return EventTypeStockReserved
}

// StockCommittedEvent is raised when held units leave the warehouse
type StockCommittedEvent struct {
	shared.BaseDomainEvent
	StockChange
}

// NewStockCommittedEvent creates a new StockCommittedEvent
func NewStockCommittedEvent(r *StockRecord, h Hold) *StockCommittedEvent {
	return &StockCommittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCommitted, AggregateTypeStockRecord, r.key.String()),
		StockChange:     newStockChange(r, h.Quantity, &h),
	}
}

// EventType returns the event type name
func (e *StockCommittedEvent) EventType() string {
	return EventTypeStockCommitted
}

// StockReleasedEvent is raised when a hold is returned to available stock
type StockReleasedEvent struct {
	shared.BaseDomainEvent
	StockChange
}

// NewStockReleasedEvent creates a new StockReleasedEvent
func NewStockReleasedEvent(r *StockRecord, h Hold) *StockReleasedEvent {
	return &StockReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReleased, AggregateTypeStockRecord, r.key.String()),
		StockChange:     newStockChange(r, h.Quantity, &h),
	}
}

// EventType returns the event type name
func (e *StockReleasedEvent) EventType() string {
	return EventTypeStockReleased
}

// StockRestockedEvent is raised when units are added to a record
type StockRestockedEvent struct {
	shared.BaseDomainEvent
	StockChange
	Source    RestockSource `json:"source"`
	Reference string        `json:"reference,omitempty"`
}

// NewStockRestockedEvent creates a new StockRestockedEvent
func NewStockRestockedEvent(r *StockRecord, quantity int64, source RestockSource, reference string) *StockRestockedEvent {
	return &StockRestockedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRestocked, AggregateTypeStockRecord, r.key.String()),
		StockChange:     newStockChange(r, quantity, nil),
		Source:          source,
		Reference:       reference,
	}
}

// EventType returns the event type name
func (e *StockRestockedEvent) EventType() string {
	return EventTypeStockRestocked
}

// LowStockAlertEvent is raised when available stock drops to or below the
// record's low stock threshold
type LowStockAlertEvent struct {
	shared.BaseDomainEvent
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	OnHand      int64  `json:"on_hand"`
	Available   int64  `json:"available"`
	Threshold   int64  `json:"threshold"`
}

// NewLowStockAlertEvent creates a new LowStockAlertEvent
func NewLowStockAlertEvent(r *StockRecord) *LowStockAlertEvent {
	return &LowStockAlertEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLowStockAlert, AggregateTypeStockRecord, r.key.String()),
		SKU:             r.key.SKU,
		WarehouseID:     r.key.WarehouseID,
		OnHand:          r.onHand,
		Available:       r.available(),
		Threshold:       r.lowStockThreshold,
	}
}

// EventType returns the event type name
func (e *LowStockAlertEvent) EventType() string {
	return EventTypeLowStockAlert
}

// CapacityExceededEvent is raised when a warehouse's on-hand total passes its capacity
type CapacityExceededEvent struct {
	shared.BaseDomainEvent
	WarehouseID string                 `json:"warehouse_id"`
	Capacity    int64                  `json:"capacity"`
	OnHand      int64                  `json:"on_hand"`
	Err         *CapacityExceededError `json:"-"`
	Message     string                 `json:"message"`
}

// NewCapacityExceededEvent creates a new CapacityExceededEvent
func NewCapacityExceededEvent(err *CapacityExceededError) *CapacityExceededEvent {
	return &CapacityExceededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCapacityExceeded, AggregateTypeWarehouse, err.WarehouseID),
		WarehouseID:     err.WarehouseID,
		Capacity:        err.Capacity,
		OnHand:          err.OnHand,
		Err:             err,
		Message:         err.Error(),
	}
}

// EventType returns the event type name
func (e *CapacityExceededEvent) EventType() string {
	return EventTypeCapacityExceeded
}
