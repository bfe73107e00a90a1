package transfer

import (
	"github.com/erp/fulfillment/internal/domain/shared"
)

// AggregateTypeTransfer is the aggregate type for transfer events
const AggregateTypeTransfer = "Transfer"

// Event type constants
const (
	EventTypeTransferCompleted = "transfer_completed"
	EventTypeTransferFailed    = "transfer_failed"
)

// TransferCompletedEvent is raised when units arrive at the destination
type TransferCompletedEvent struct {
	shared.BaseDomainEvent
	TransferID      string `json:"transfer_id"`
	SKU             string `json:"sku"`
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	Quantity        int64  `json:"quantity"`
}

// NewTransferCompletedEvent creates a new TransferCompletedEvent
func NewTransferCompletedEvent(t *Transfer) *TransferCompletedEvent {
	return &TransferCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTransferCompleted, AggregateTypeTransfer, t.ID),
		TransferID:      t.ID,
		SKU:             t.SKU,
		FromWarehouseID: t.FromWarehouseID,
		ToWarehouseID:   t.ToWarehouseID,
		Quantity:        t.Quantity,
	}
}

// EventType returns the event type name
func (e *TransferCompletedEvent) EventType() string {
	return EventTypeTransferCompleted
}

// TransferFailedEvent is raised when a transfer is aborted. Compensated is
// set when units already taken from the source were credited back.
type TransferFailedEvent struct {
	shared.BaseDomainEvent
	TransferID      string `json:"transfer_id"`
	SKU             string `json:"sku"`
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	Quantity        int64  `json:"quantity"`
	Reason          string `json:"reason"`
	Compensated     bool   `json:"compensated"`
}

// NewTransferFailedEvent creates a new TransferFailedEvent
func NewTransferFailedEvent(t *Transfer) *TransferFailedEvent {
	return &TransferFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTransferFailed, AggregateTypeTransfer, t.ID),
		TransferID:      t.ID,
		SKU:             t.SKU,
		FromWarehouseID: t.FromWarehouseID,
		ToWarehouseID:   t.ToWarehouseID,
		Quantity:        t.Quantity,
		Reason:          t.FailureReason,
		Compensated:     t.Compensated,
	}
}

// EventType returns the event type name
func (e *TransferFailedEvent) EventType() string {
	return EventTypeTransferFailed
}
