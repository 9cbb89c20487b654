// internal/interfaces/http/handlers/catalog.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"gorm.io/gorm"
)

// CatalogHandler handles product, component and supplier master data
// endpoints
type CatalogHandler struct {
	db     *gorm.DB
	config *config.Config
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(db *gorm.DB, cfg *config.Config) *CatalogHandler {
	return &CatalogHandler{db: db, config: cfg}
}

// GetProducts handles GET /catalog/products
func (h *CatalogHandler) GetProducts(c *gin.Context) {
	var products []catalog.Product
	if err := h.db.Preload("BOM").Order("code ASC").Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Products retrieved successfully",
		"data":    products,
	})
}

// GetProduct handles GET /catalog/products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var product catalog.Product
	if err := h.db.Preload("BOM").Where("id = ?", uint(productID)).First(&product).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    product,
	})
}

// CreateProductRequest is a new product with its bill of materials.
type CreateProductRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
	BOM  []struct {
		ComponentID     uint    `json:"component_id" binding:"required"`
		QuantityPerUnit float64 `json:"quantity_per_unit" binding:"required,gt=0"`
		Position        int     `json:"position"`
	} `json:"bom" binding:"dive"`
}

// CreateProduct handles POST /catalog/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	product := catalog.Product{Code: req.Code, Name: req.Name}
	for i, line := range req.BOM {
		position := line.Position
		if position == 0 {
			position = i + 1
		}
		product.BOM = append(product.BOM, catalog.BOMLine{
			ComponentID:     line.ComponentID,
			QuantityPerUnit: line.QuantityPerUnit,
			Position:        position,
		})
	}

	if err := h.db.Create(&product).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Product created successfully",
		"data":    product,
	})
}

// GetComponents handles GET /catalog/components
func (h *CatalogHandler) GetComponents(c *gin.Context) {
	var components []catalog.Component
	if err := h.db.Order("code ASC").Find(&components).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve components"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Components retrieved successfully",
		"data":    components,
	})
}

// CreateComponent handles POST /catalog/components
func (h *CatalogHandler) CreateComponent(c *gin.Context) {
	var component catalog.Component
	if err := c.ShouldBindJSON(&component); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.db.Create(&component).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Component created successfully",
		"data":    component,
	})
}

// GetSuppliers handles GET /catalog/suppliers
func (h *CatalogHandler) GetSuppliers(c *gin.Context) {
	var suppliers []catalog.Supplier
	if err := h.db.Order("name ASC").Find(&suppliers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve suppliers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Suppliers retrieved successfully",
		"data":    suppliers,
	})
}

// CreateSupplier handles POST /catalog/suppliers
func (h *CatalogHandler) CreateSupplier(c *gin.Context) {
	var supplier catalog.Supplier
	if err := c.ShouldBindJSON(&supplier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.db.Create(&supplier).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Supplier created successfully",
		"data":    supplier,
	})
}

// LinkComponentSupplier handles POST /catalog/components/:id/suppliers
func (h *CatalogHandler) LinkComponentSupplier(c *gin.Context) {
	componentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
		return
	}

	var link catalog.ComponentSupplier
	if err := c.ShouldBindJSON(&link); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	link.ComponentID = uint(componentID)

	if err := h.db.Create(&link).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Supplier linked to component successfully",
		"data":    link,
	})
}
