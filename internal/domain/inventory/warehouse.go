package inventory

import (
	"fmt"
	"strings"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Warehouse is a stocking location.
// Capacity is the advisory total of on-hand units across all SKUs; zero
// means unbounded.
type Warehouse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Capacity int64  `json:"capacity"`
	Active   bool   `json:"active"`
}

func (w *Warehouse) validate() error {
	w.ID = strings.TrimSpace(w.ID)
	if w.ID == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "warehouse id cannot be empty")
	}
	if w.Capacity < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("warehouse %s capacity cannot be negative", w.ID))
	}
	if w.Name == "" {
		w.Name = w.ID
	}
	return nil
}

// RecordKey identifies one stock record
type RecordKey struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
}

// String returns "warehouse/sku"
func (k RecordKey) String() string {
	return k.WarehouseID + "/" + k.SKU
}

// Less orders keys by warehouse id, then SKU. Multi-record operations
// acquire record locks in this order.
func (k RecordKey) Less(o RecordKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	return k.SKU < o.SKU
}

// OwnerKind is the kind of entity a reservation belongs to
type OwnerKind string

const (
	OwnerOrder     OwnerKind = "order"
	OwnerTransfer  OwnerKind = "transfer"
	OwnerBackorder OwnerKind = "backorder"
)

// Owner identifies the order, transfer or backorder that holds stock
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func (o Owner) String() string {
	return string(o.Kind) + ":" + o.ID
}
