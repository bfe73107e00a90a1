package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// BackorderHandler lists backorders
type BackorderHandler struct {
	BaseHandler
	service *appinventory.InventoryService
}

// NewBackorderHandler creates a new BackorderHandler
func NewBackorderHandler(service *appinventory.InventoryService) *BackorderHandler {
	return &BackorderHandler{service: service}
}

// RegisterRoutes mounts the backorder routes
func (h *BackorderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/backorders", h.List)
}

// List godoc
// @ID           listBackorders
// @Summary      List backorders
// @Description  Returns backorders filtered by the sku and status query parameters, oldest first
// @Tags         backorders
// @Produce      json
// @Param        sku query string false "SKU" maxlength(64)
// @Param        status query string false "Backorder status" Enums(open, promoted, cancelled)
// @Success      200 {object} dto.Response{data=[]appinventory.BackorderResponse}
// @Failure      400 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Router       /backorders [get]
func (h *BackorderHandler) List(c *gin.Context) {
	var filter appinventory.BackorderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}

	items, err := h.service.ListBackorders(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items))
}
