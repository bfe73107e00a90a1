package event

import (
	"github.com/erp/fulfillment/internal/domain/fulfillment"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/transfer"
)

// RegisterAllEvents registers every outbound event type with the serializer
func RegisterAllEvents(serializer *EventSerializer) {
	// Stock records and warehouses
	serializer.Register(inventory.EventTypeStockReserved, &inventory.StockReservedEvent{})
	serializer.Register(inventory.EventTypeStockCommitted, &inventory.StockCommittedEvent{})
	serializer.Register(inventory.EventTypeStockReleased, &inventory.StockReleasedEvent{})
	serializer.Register(inventory.EventTypeStockRestocked, &inventory.StockRestockedEvent{})
	serializer.Register(inventory.EventTypeLowStockAlert, &inventory.LowStockAlertEvent{})
	serializer.Register(inventory.EventTypeCapacityExceeded, &inventory.CapacityExceededEvent{})

	// Orders and backorders
	serializer.Register(fulfillment.EventTypeOrderPlaced, &fulfillment.OrderPlacedEvent{})
	serializer.Register(fulfillment.EventTypeOrderCancelled, &fulfillment.OrderCancelledEvent{})
	serializer.Register(fulfillment.EventTypeOrderFulfilled, &fulfillment.OrderFulfilledEvent{})
	serializer.Register(fulfillment.EventTypeBackorderOpened, &fulfillment.BackorderOpenedEvent{})
	serializer.Register(fulfillment.EventTypeBackorderPromoted, &fulfillment.BackorderPromotedEvent{})
	serializer.Register(fulfillment.EventTypeBackorderCancelled, &fulfillment.BackorderCancelledEvent{})

	// Transfers
	serializer.Register(transfer.EventTypeTransferCompleted, &transfer.TransferCompletedEvent{})
	serializer.Register(transfer.EventTypeTransferFailed, &transfer.TransferFailedEvent{})
}

// NewRegisteredSerializer returns a serializer that knows every outbound event
func NewRegisteredSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterAllEvents(s)
	return s
}
