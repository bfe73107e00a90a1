package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// OrderHandler handles order placement and lifecycle endpoints
type OrderHandler struct {
	BaseHandler
	service *appinventory.InventoryService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(service *appinventory.InventoryService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes mounts the order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	orders.POST("", h.Place)
	orders.GET("", h.List)
	orders.GET("/:id", h.Get)
	orders.POST("/:id/fulfill", h.Fulfill)
	orders.POST("/:id/cancel", h.Cancel)
}

// Place godoc
// @ID           placeOrder
// @Summary      Place an order
// @Description  Expands bundles, reserves stock across warehouses and backorders uncovered demand unless the backorder policy is reject
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body appinventory.PlaceOrderRequest true "Order lines"
// @Success      201 {object} dto.Response{data=appinventory.OrderResult}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response "Unknown SKU"
// @Failure      409 {object} dto.Response "Insufficient stock with reject policy"
// @Failure      422 {object} dto.Response "Cyclic bundle"
// @Failure      500 {object} dto.Response
// @Router       /orders [post]
func (h *OrderHandler) Place(c *gin.Context) {
	var req appinventory.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get godoc
// @ID           getOrder
// @Summary      Get an order
// @Description  Returns one order with its reservations and backorders
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID"
// @Success      200 {object} dto.Response{data=fulfillment.OrderView}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), param.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// List godoc
// @ID           listOrders
// @Summary      List orders
// @Description  Returns every order, oldest first
// @Tags         orders
// @Produce      json
// @Success      200 {object} dto.Response{data=[]fulfillment.OrderView}
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewListResponse(h.service.ListOrders(c.Request.Context())))
}

// Fulfill godoc
// @ID           fulfillOrder
// @Summary      Fulfill an order
// @Description  Commits the reservations of a reserved order and returns the updated order
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID"
// @Success      200 {object} dto.Response{data=fulfillment.OrderView}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response "Order is not reserved"
// @Router       /orders/{id}/fulfill [post]
func (h *OrderHandler) Fulfill(c *gin.Context) {
	h.transition(c, h.service.FulfillOrder)
}

// Cancel godoc
// @ID           cancelOrder
// @Summary      Cancel an order
// @Description  Releases every hold and cancels open backorders of the order
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID"
// @Success      200 {object} dto.Response{data=fulfillment.OrderView}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response "Order already fulfilled"
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.CancelOrder)
}

func (h *OrderHandler) transition(c *gin.Context, apply func(ctx context.Context, orderID string) error) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := apply(ctx, param.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	order, err := h.service.GetOrder(ctx, param.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}
