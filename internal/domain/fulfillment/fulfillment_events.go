package fulfillment

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constants
const (
	AggregateTypeOrder     = "Order"
	AggregateTypeBackorder = "Backorder"
)

// Event type constants
const (
	EventTypeOrderPlaced        = "order_placed"
	EventTypeOrderCancelled     = "order_cancelled"
	EventTypeOrderFulfilled     = "order_fulfilled"
	EventTypeBackorderOpened    = "backorder_opened"
	EventTypeBackorderPromoted  = "backorder_promoted"
	EventTypeBackorderCancelled = "backorder_cancelled"
)

// OrderPlacedEvent is raised once an order has been planned and reserved
type OrderPlacedEvent struct {
	shared.BaseDomainEvent
	OrderID       string           `json:"order_id"`
	CustomerID    string           `json:"customer_id"`
	Status        OrderStatus      `json:"status"`
	ReservationID uuid.UUID        `json:"reservation_id,omitempty"`
	Allocations   []Allocation     `json:"allocations"`
	Residual      map[string]int64 `json:"residual,omitempty"`
}

// NewOrderPlacedEvent creates a new OrderPlacedEvent
func NewOrderPlacedEvent(o OrderView) *OrderPlacedEvent {
	return &OrderPlacedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderPlaced, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		Status:          o.Status,
		ReservationID:   o.ReservationID,
		Allocations:     o.Allocations,
		Residual:        o.Residual,
	}
}

// EventType returns the event type name
func (e *OrderPlacedEvent) EventType() string {
	return EventTypeOrderPlaced
}

// OrderCancelledEvent is raised when an order is cancelled and its stock released
type OrderCancelledEvent struct {
	shared.BaseDomainEvent
	OrderID        string      `json:"order_id"`
	CustomerID     string      `json:"customer_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
}

// NewOrderCancelledEvent creates a new OrderCancelledEvent
func NewOrderCancelledEvent(o *Order, previous OrderStatus) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCancelled, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		PreviousStatus:  previous,
	}
}

// EventType returns the event type name
func (e *OrderCancelledEvent) EventType() string {
	return EventTypeOrderCancelled
}

// OrderFulfilledEvent is raised when every reservation of an order is committed
type OrderFulfilledEvent struct {
	shared.BaseDomainEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Units      int64  `json:"units"`
}

// NewOrderFulfilledEvent creates a new OrderFulfilledEvent
func NewOrderFulfilledEvent(o *Order, units int64) *OrderFulfilledEvent {
	return &OrderFulfilledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderFulfilled, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		Units:           units,
	}
}

// EventType returns the event type name
func (e *OrderFulfilledEvent) EventType() string {
	return EventTypeOrderFulfilled
}

// BackorderOpenedEvent is raised when unmet demand is recorded
type BackorderOpenedEvent struct {
	shared.BaseDomainEvent
	BackorderID uuid.UUID `json:"backorder_id"`
	OrderID     string    `json:"order_id"`
	SKU         string    `json:"sku"`
	CustomerID  string    `json:"customer_id"`
	Quantity    int64     `json:"quantity"`
	ExpectedAt  time.Time `json:"expected_at"`
}

// NewBackorderOpenedEvent creates a new BackorderOpenedEvent
func NewBackorderOpenedEvent(b *Backorder) *BackorderOpenedEvent {
	return &BackorderOpenedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBackorderOpened, AggregateTypeBackorder, b.ID.String()),
		BackorderID:     b.ID,
		OrderID:         b.OrderID,
		SKU:             b.SKU,
		CustomerID:      b.CustomerID,
		Quantity:        b.Quantity,
		ExpectedAt:      b.ExpectedAt,
	}
}

// EventType returns the event type name
func (e *BackorderOpenedEvent) EventType() string {
	return EventTypeBackorderOpened
}

// BackorderPromotedEvent is raised when a backorder's whole quantity is reserved
type BackorderPromotedEvent struct {
	shared.BaseDomainEvent
	BackorderID    uuid.UUID   `json:"backorder_id"`
	OrderID        string      `json:"order_id"`
	SKU            string      `json:"sku"`
	CustomerID     string      `json:"customer_id"`
	Quantity       int64       `json:"quantity"`
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
}

// NewBackorderPromotedEvent creates a new BackorderPromotedEvent
func NewBackorderPromotedEvent(b *Backorder) *BackorderPromotedEvent {
	return &BackorderPromotedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBackorderPromoted, AggregateTypeBackorder, b.ID.String()),
		BackorderID:     b.ID,
		OrderID:         b.OrderID,
		SKU:             b.SKU,
		CustomerID:      b.CustomerID,
		Quantity:        b.Quantity,
		ReservationIDs:  b.reservationIDs(),
	}
}

// EventType returns the event type name
func (e *BackorderPromotedEvent) EventType() string {
	return EventTypeBackorderPromoted
}

// BackorderCancelledEvent is raised when an open backorder is withdrawn
type BackorderCancelledEvent struct {
	shared.BaseDomainEvent
	BackorderID uuid.UUID `json:"backorder_id"`
	OrderID     string    `json:"order_id"`
	SKU         string    `json:"sku"`
	Outstanding int64     `json:"outstanding"`
	Released    int64     `json:"released"`
}

// NewBackorderCancelledEvent creates a new BackorderCancelledEvent
func NewBackorderCancelledEvent(b *Backorder, released int64) *BackorderCancelledEvent {
	return &BackorderCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBackorderCancelled, AggregateTypeBackorder, b.ID.String()),
		BackorderID:     b.ID,
		OrderID:         b.OrderID,
		SKU:             b.SKU,
		Outstanding:     b.Outstanding,
		Released:        released,
	}
}

// EventType returns the event type name
func (e *BackorderCancelledEvent) EventType() string {
	return EventTypeBackorderCancelled
}
