package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// StockHandler handles stock level, transfer and threshold endpoints
type StockHandler struct {
	BaseHandler
	service *appinventory.InventoryService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(service *appinventory.InventoryService) *StockHandler {
	return &StockHandler{service: service}
}

// RegisterRoutes mounts the stock routes
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stock := rg.Group("/stock")
	stock.POST("/restock", h.Restock)
	stock.GET("/low", h.LowStock)
	stock.PUT("/:sku/warehouses/:id/threshold", h.SetThreshold)

	rg.GET("/availability/:sku", h.Availability)

	transfers := rg.Group("/transfers")
	transfers.POST("", h.Transfer)
	transfers.GET("/:id", h.GetTransfer)
}

// Restock godoc
// @ID           restock
// @Summary      Restock a SKU
// @Description  Adds units of a SKU to a warehouse, promotes waiting backorders and returns the new levels
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body appinventory.RestockRequest true "Restock"
// @Success      200 {object} dto.Response{data=appinventory.Availability}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response "Unknown warehouse"
// @Failure      409 {object} dto.Response "Warehouse inactive or full"
// @Router       /stock/restock [post]
func (h *StockHandler) Restock(c *gin.Context) {
	var req appinventory.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.service.Restock(ctx, req); err != nil {
		h.HandleError(c, err)
		return
	}
	levels, err := h.service.GetAvailability(ctx, req.SKU)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, levels[req.WarehouseID])
}

// Transfer godoc
// @ID           transferStock
// @Summary      Transfer stock
// @Description  Moves units between warehouses. A failed transfer answers with the error and the transfer's final state.
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        request body appinventory.TransferRequest true "Transfer"
// @Success      201 {object} dto.Response{data=appinventory.TransferResult}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response{data=appinventory.TransferResult}
// @Router       /transfers [post]
func (h *StockHandler) Transfer(c *gin.Context) {
	var req appinventory.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), req)
	if err != nil {
		if result != nil {
			h.respondError(c, err, result)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GetTransfer godoc
// @ID           getTransfer
// @Summary      Get a transfer
// @Description  Returns one transfer and its current state
// @Tags         transfers
// @Produce      json
// @Param        id path string true "Transfer ID"
// @Success      200 {object} dto.Response{data=appinventory.TransferResult}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /transfers/{id} [get]
func (h *StockHandler) GetTransfer(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.GetTransfer(c.Request.Context(), param.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Availability godoc
// @ID           getAvailability
// @Summary      Get SKU availability
// @Description  Returns on-hand, reserved and available units of a SKU keyed by warehouse
// @Tags         stock
// @Produce      json
// @Param        sku path string true "SKU" maxlength(64)
// @Success      200 {object} dto.Response{data=map[string]appinventory.Availability}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /availability/{sku} [get]
func (h *StockHandler) Availability(c *gin.Context) {
	var param dto.SKUParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	levels, err := h.service.GetAvailability(c.Request.Context(), param.SKU)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, levels)
}

// LowStock godoc
// @ID           listLowStock
// @Summary      List low stock
// @Description  Lists stock records at or below their threshold, or at or below the threshold query parameter when given
// @Tags         stock
// @Produce      json
// @Param        threshold query int false "Override threshold" minimum(0)
// @Success      200 {object} dto.Response{data=[]appinventory.LowStockItem}
// @Failure      400 {object} dto.Response
// @Router       /stock/low [get]
func (h *StockHandler) LowStock(c *gin.Context) {
	var query dto.LowStockQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	items, err := h.service.ListLowStock(c.Request.Context(), query.Threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items))
}

// SetThreshold godoc
// @ID           setLowStockThreshold
// @Summary      Set low stock threshold
// @Description  Changes the low stock threshold of one stock record
// @Tags         stock
// @Accept       json
// @Param        sku path string true "SKU"
// @Param        id path string true "Warehouse ID"
// @Param        request body dto.ThresholdRequest true "Threshold"
// @Success      204
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /stock/{sku}/warehouses/{id}/threshold [put]
func (h *StockHandler) SetThreshold(c *gin.Context) {
	var body dto.ThresholdRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}

	req := appinventory.SetThresholdRequest{
		SKU:         c.Param("sku"),
		WarehouseID: c.Param("id"),
		Threshold:   body.Threshold,
	}
	if err := h.service.SetLowStockThreshold(c.Request.Context(), req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
