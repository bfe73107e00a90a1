package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// CatalogHandler handles SKU definition endpoints
type CatalogHandler struct {
	BaseHandler
	service *appinventory.InventoryService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(service *appinventory.InventoryService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// RegisterRoutes mounts the catalog routes
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	skus := rg.Group("/skus")
	skus.POST("", h.Define)
	skus.GET("", h.List)
	skus.GET("/:sku", h.Get)
}

// Define godoc
// @ID           defineSku
// @Summary      Define a SKU
// @Description  Adds or replaces a product, variant or bundle. Bundles that contain themselves are rejected.
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        request body appinventory.DefineSKURequest true "SKU definition"
// @Success      200 {object} dto.Response{data=catalog.Definition}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response "Unknown component SKU"
// @Failure      422 {object} dto.Response "Cyclic bundle"
// @Failure      500 {object} dto.Response
// @Router       /skus [post]
func (h *CatalogHandler) Define(c *gin.Context) {
	var req appinventory.DefineSKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	def, err := h.service.DefineSKU(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, def)
}

// Get godoc
// @ID           getSku
// @Summary      Get a SKU
// @Description  Returns one catalog entry
// @Tags         catalog
// @Produce      json
// @Param        sku path string true "SKU" maxlength(64)
// @Success      200 {object} dto.Response{data=catalog.Definition}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /skus/{sku} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	var param dto.SKUParam
	if err := c.ShouldBindUri(&param); err != nil {
		h.BindError(c, err)
		return
	}

	def, err := h.service.GetSKU(c.Request.Context(), param.SKU)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, def)
}

// List godoc
// @ID           listSkus
// @Summary      List SKUs
// @Description  Returns every catalog entry
// @Tags         catalog
// @Produce      json
// @Success      200 {object} dto.Response{data=[]catalog.Definition}
// @Router       /skus [get]
func (h *CatalogHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewListResponse(h.service.ListSKUs(c.Request.Context())))
}
