// internal/interfaces/http/handlers/stock.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"gorm.io/gorm"
)

// StockHandler handles stock, availability and goods receipt endpoints
type StockHandler struct {
	db           *gorm.DB
	bom          *catalog.BOMService
	availability *inventory.AvailabilityService
	receipt      *inventory.ReceiptService
	config       *config.Config
}

// NewStockHandler creates a new stock handler
func NewStockHandler(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *StockHandler {
	ledger := inventory.NewLedgerService(db, log)
	return &StockHandler{
		db:           db,
		bom:          catalog.NewBOMService(db),
		availability: inventory.NewAvailabilityService(db, log),
		receipt:      inventory.NewReceiptService(db, ledger, log),
		config:       cfg,
	}
}

// CheckAvailabilityRequest asks whether the exploded component need of a
// set of product lines is covered by a delivery date.
type CheckAvailabilityRequest struct {
	Lines          []catalog.ProductQuantity `json:"lines" binding:"required,min=1,dive"`
	DeliveryDate   time.Time                 `json:"delivery_date" binding:"required"`
	ExcludeOrderID *uint                     `json:"exclude_order_id"`
}

// CheckAvailability handles POST /stock/availability/check
func (h *StockHandler) CheckAvailability(c *gin.Context) {
	var req CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	needed, err := h.bom.Explode(req.Lines)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := h.availability.Check(needed, req.DeliveryDate, req.ExcludeOrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Availability checked successfully",
		"data":    result,
	})
}

// ReceiveLot handles POST /stock/receipts
func (h *StockHandler) ReceiveLot(c *gin.Context) {
	var req inventory.ReceiveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	lot, err := h.receipt.ReceiveLot(&req)
	if err != nil {
		if errors.Is(err, inventory.ErrDuplicateLot) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Lot received successfully",
		"data":    lot,
	})
}

// CorrectLotRequest sets the counted quantity of an already received lot.
type CorrectLotRequest struct {
	Quantity *float64 `json:"quantity" binding:"required"`
}

// CorrectLot handles PUT /stock/lots/:id
func (h *StockHandler) CorrectLot(c *gin.Context) {
	lotID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	var req CorrectLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	lot, err := h.receipt.CorrectLot(uint(lotID), *req.Quantity)
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientReserved) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot corrected successfully",
		"data":    lot,
	})
}

// GetStockLevels handles GET /stock/levels
func (h *StockHandler) GetStockLevels(c *gin.Context) {
	query := h.db.Preload("Lots").Preload("Reservations")

	if componentIDParam := c.Query("component_id"); componentIDParam != "" {
		componentID, err := strconv.ParseUint(componentIDParam, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component ID"})
			return
		}
		query = query.Where("component_id = ?", uint(componentID))
	}

	var levels []inventory.StockLevel
	if err := query.Order("component_id ASC").Find(&levels).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stock levels"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock levels retrieved successfully",
		"data":    levels,
	})
}

// GetStockMovements handles GET /stock/levels/:id/movements
func (h *StockHandler) GetStockMovements(c *gin.Context) {
	levelID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stock level ID"})
		return
	}

	limit := 100
	if limitParam := c.Query("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	var movements []inventory.StockMovement
	err = h.db.Where("stock_level_id = ?", uint(levelID)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stock movements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// GetReservations handles GET /stock/reservations
func (h *StockHandler) GetReservations(c *gin.Context) {
	query := h.db.Model(&inventory.StockReservation{})

	if orderIDParam := c.Query("order_id"); orderIDParam != "" {
		orderID, err := strconv.ParseUint(orderIDParam, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
			return
		}
		query = query.Where("order_id = ?", uint(orderID))
	}

	var reservations []inventory.StockReservation
	if err := query.Order("created_at ASC").Find(&reservations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reservations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservations retrieved successfully",
		"data":    reservations,
	})
}
