package dto

// LowStockQuery selects the threshold for a low stock report. Without a
// threshold every record is compared with its own.
type LowStockQuery struct {
	Threshold *int64 `form:"threshold" binding:"omitempty,gte=0"`
}

// SKUParam binds a SKU path parameter
type SKUParam struct {
	SKU string `uri:"sku" binding:"required,max=64"`
}

// IDParam binds an id path parameter
type IDParam struct {
	ID string `uri:"id" binding:"required,max=64"`
}

// ThresholdRequest is the body of a threshold update. SKU and warehouse
// come from the path.
type ThresholdRequest struct {
	Threshold int64 `json:"threshold" binding:"gte=0"`
}
