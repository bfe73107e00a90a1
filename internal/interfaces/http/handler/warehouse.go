package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// WarehouseHandler handles warehouse registration and reporting endpoints
type WarehouseHandler struct {
	BaseHandler
	service *appinventory.InventoryService
}

// NewWarehouseHandler creates a new WarehouseHandler
func NewWarehouseHandler(service *appinventory.InventoryService) *WarehouseHandler {
	return &WarehouseHandler{service: service}
}

// RegisterRoutes mounts the warehouse routes
func (h *WarehouseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	warehouses := rg.Group("/warehouses")
	warehouses.POST("", h.Register)
	warehouses.GET("", h.List)
	warehouses.GET("/utilization", h.Utilization)
	warehouses.POST("/:id/deactivate", h.Deactivate)
}

// Register godoc
// @ID           registerWarehouse
// @Summary      Register a warehouse
// @Description  Adds a warehouse. A capacity of zero means unbounded.
// @Tags         warehouses
// @Accept       json
// @Produce      json
// @Param        request body appinventory.RegisterWarehouseRequest true "Warehouse"
// @Success      201 {object} dto.Response{data=inventory.Warehouse}
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response "Warehouse already exists"
// @Router       /warehouses [post]
func (h *WarehouseHandler) Register(c *gin.Context) {
	var req appinventory.RegisterWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	w, err := h.service.RegisterWarehouse(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, w)
}

// List godoc
// @ID           listWarehouses
// @Summary      List warehouses
// @Description  Returns every warehouse
// @Tags         warehouses
// @Produce      json
// @Success      200 {object} dto.Response{data=[]inventory.Warehouse}
// @Router       /warehouses [get]
func (h *WarehouseHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewListResponse(h.service.ListWarehouses(c.Request.Context())))
}

// Deactivate godoc
// @ID           deactivateWarehouse
// @Summary      Deactivate a warehouse
// @Description  Stops restocks and new reservations in a warehouse. Existing holds stay valid.
// @Tags         warehouses
// @Param        id path string true "Warehouse ID"
// @Success      204
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /warehouses/{id}/deactivate [post]
func (h *WarehouseHandler) Deactivate(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	if err := h.service.DeactivateWarehouse(c.Request.Context(), param.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Utilization godoc
// @ID           warehouseUtilization
// @Summary      Warehouse utilization
// @Description  Reports on-hand stock against capacity per warehouse
// @Tags         warehouses
// @Produce      json
// @Success      200 {object} dto.Response{data=[]appinventory.WarehouseUtilization}
// @Router       /warehouses/utilization [get]
func (h *WarehouseHandler) Utilization(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewListResponse(h.service.WarehouseUtilization(c.Request.Context())))
}
