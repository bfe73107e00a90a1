package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/fulfillment/internal/domain/fulfillment"
	"github.com/erp/fulfillment/internal/domain/transfer"
)

// OrderLineRequest is one requested SKU of an order
type OrderLineRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	CustomerID         string             `json:"customer_id" validate:"required,max=100"`
	Lines              []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
	PreferredWarehouse string             `json:"preferred_warehouse" validate:"omitempty,max=64"`
	BackorderPolicy    string             `json:"backorder_policy" validate:"omitempty,oneof=allow reject"`
}

// OrderResult is the outcome of placing an order
type OrderResult = fulfillment.OrderResult

// RestockRequest represents a request to add stock to a warehouse
type RestockRequest struct {
	SKU         string `json:"sku" validate:"required,max=64"`
	WarehouseID string `json:"warehouse_id" validate:"required,max=64"`
	Quantity    int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

// TransferRequest represents a request to move stock between warehouses
type TransferRequest struct {
	SKU             string `json:"sku" validate:"required,max=64"`
	FromWarehouseID string `json:"from_warehouse_id" validate:"required,max=64"`
	ToWarehouseID   string `json:"to_warehouse_id" validate:"required,max=64,nefield=FromWarehouseID"`
	Quantity        int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

// TransferResult is the final state of a transfer
type TransferResult struct {
	TransferID      string          `json:"transfer_id"`
	Status          transfer.Status `json:"status"`
	SKU             string          `json:"sku"`
	FromWarehouseID string          `json:"from_warehouse_id"`
	ToWarehouseID   string          `json:"to_warehouse_id"`
	Quantity        int64           `json:"quantity"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Compensated     bool            `json:"compensated"`
}

func toTransferResult(t *transfer.Transfer) *TransferResult {
	return &TransferResult{
		TransferID:      t.ID,
		Status:          t.Status,
		SKU:             t.SKU,
		FromWarehouseID: t.FromWarehouseID,
		ToWarehouseID:   t.ToWarehouseID,
		Quantity:        t.Quantity,
		FailureReason:   t.FailureReason,
		Compensated:     t.Compensated,
	}
}

// Availability is the stock of one SKU in one warehouse
type Availability struct {
	WarehouseID       string `json:"warehouse_id"`
	OnHand            int64  `json:"on_hand"`
	Reserved          int64  `json:"reserved"`
	Available         int64  `json:"available"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
}

// LowStockItem is a stock record at or below its threshold
type LowStockItem struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	OnHand      int64  `json:"on_hand"`
	Available   int64  `json:"available"`
	Threshold   int64  `json:"threshold"`
}

// ComponentRequest is one entry of a bundle definition
type ComponentRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int64  `json:"quantity" validate:"gt=0,lte=1000000000"`
}

// DefineSKURequest represents a request to add or replace a catalog entry
type DefineSKURequest struct {
	SKU        string             `json:"sku" validate:"required,max=64"`
	Name       string             `json:"name" validate:"max=200"`
	Kind       string             `json:"kind" validate:"required,oneof=product variant bundle"`
	ParentSKU  string             `json:"parent_sku" validate:"required_if=Kind variant,max=64"`
	Attributes map[string]string  `json:"attributes"`
	Components []ComponentRequest `json:"components" validate:"required_if=Kind bundle,dive"`
}

// RegisterWarehouseRequest represents a request to register a warehouse
type RegisterWarehouseRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	Name     string `json:"name" validate:"max=200"`
	Location string `json:"location" validate:"max=200"`
	Capacity int64  `json:"capacity" validate:"gte=0"`
}

// SetThresholdRequest represents a request to change a low stock threshold
type SetThresholdRequest struct {
	SKU         string `json:"sku" validate:"required,max=64"`
	WarehouseID string `json:"warehouse_id" validate:"required,max=64"`
	Threshold   int64  `json:"threshold" validate:"gte=0"`
}

// WarehouseUtilization reports how full one warehouse is
type WarehouseUtilization struct {
	WarehouseID string `json:"warehouse_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	Capacity    int64  `json:"capacity"`
	OnHand      int64  `json:"on_hand"`
	Reserved    int64  `json:"reserved"`
	SKUCount    int    `json:"sku_count"`
	// UtilizationPercent is on-hand over capacity, nil for unbounded warehouses
	UtilizationPercent *decimal.Decimal `json:"utilization_percent,omitempty"`
}

// BackorderFilter selects backorders to list
type BackorderFilter struct {
	SKU    string `form:"sku" validate:"omitempty,max=64"`
	Status string `form:"status" validate:"omitempty,oneof=open promoted cancelled"`
}

// BackorderResponse is a backorder in API responses
type BackorderResponse = fulfillment.BackorderView

// idString formats optional ids
func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
