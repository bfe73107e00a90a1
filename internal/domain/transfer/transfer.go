package transfer

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transfer
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transfer moves units of one SKU between two warehouses
type Transfer struct {
	ID              string     `json:"id"`
	SKU             string     `json:"sku"`
	FromWarehouseID string     `json:"from_warehouse_id"`
	ToWarehouseID   string     `json:"to_warehouse_id"`
	Quantity        int64      `json:"quantity"`
	Status          Status     `json:"status"`
	ReservationID   uuid.UUID  `json:"reservation_id,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	Compensated     bool       `json:"compensated"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func newTransfer(sku, from, to string, quantity int64, now time.Time) *Transfer {
	return &Transfer{
		ID:              uuid.New().String(),
		SKU:             sku,
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Quantity:        quantity,
		Status:          StatusPending,
		CreatedAt:       now,
	}
}

func (t *Transfer) complete(now time.Time) {
	t.Status = StatusCompleted
	t.CompletedAt = &now
}

func (t *Transfer) fail(reason string, compensated bool, now time.Time) {
	t.Status = StatusFailed
	t.FailureReason = reason
	t.Compensated = compensated
	t.CompletedAt = &now
}
