package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockdash/server/internal/services"
)

// SupplierController поиск поставщиков товара
type SupplierController struct {
	search services.SupplierSearcher
}

// NewSupplierController создает новый контроллер
func NewSupplierController(search services.SupplierSearcher) *SupplierController {
	return &SupplierController{search: search}
}

// GetSuppliersForItem GET /api/v1/suppliers/items/:item_id?search=...
func (c *SupplierController) GetSuppliersForItem(ctx *gin.Context) {
	suppliers, err := c.search.SuppliersForItem(ctx.Request.Context(), ctx.Param("item_id"), ctx.Query("search"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"suppliers": suppliers,
	})
}
