// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"gorm.io/gorm"
)

// OrderHandler handles customer order endpoints. Every mutation routes
// through the reconciler so reservation and procurement state stay
// consistent with the order book.
type OrderHandler struct {
	db          *gorm.DB
	reconciler  *planning.Reconciler
	consumption *inventory.ConsumptionService
	config      *config.Config
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *OrderHandler {
	ledger := inventory.NewLedgerService(db, log)
	reconciler := planning.NewReconciler(
		db,
		catalog.NewBOMService(db),
		inventory.NewAvailabilityService(db, log),
		ledger,
		procurement.NewGeneratorService(db, ledger, log),
		log,
	)
	return &OrderHandler{
		db:          db,
		reconciler:  reconciler,
		consumption: inventory.NewConsumptionService(db, ledger, log),
		config:      cfg,
	}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req planning.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	placed, poNumbers, err := h.reconciler.PlaceOrder(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data": gin.H{
			"order":      placed,
			"po_numbers": poNumbers,
		},
	})
}

// GetOrders handles GET /orders
func (h *OrderHandler) GetOrders(c *gin.Context) {
	query := h.db.Preload("Items")

	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []order.Order
	if err := query.Order("delivery_date ASC, id ASC").Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var o order.Order
	if err := h.db.Preload("Items").Where("id = ?", uint(orderID)).First(&o).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}

// UpdateOrderRequest carries the new line set and optional delivery date
// of an order edit.
type UpdateOrderRequest struct {
	Lines        []planning.OrderLine `json:"lines" binding:"required,dive"`
	DeliveryDate *time.Time           `json:"delivery_date"`
}

// UpdateOrder handles PUT /orders/:id
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.reconciler.HandleOrderUpdate(uint(orderID), req.Lines, req.DeliveryDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": result.Message,
		"data":    result,
	})
}

// DeleteOrder handles DELETE /orders/:id
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	orphaned, err := h.reconciler.HandleOrderDelete(uint(orderID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order deleted successfully",
		"data": gin.H{
			"orphaned_po_numbers": orphaned,
		},
	})
}

// AdvancePhaseRequest moves pieces of an order item out of its current
// production phase. Quantity defaults to the full line.
type AdvancePhaseRequest struct {
	Quantity float64 `json:"quantity"`
}

// AdvancePhase handles POST /orders/items/:itemId/advance-phase
func (h *OrderHandler) AdvancePhase(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order item ID"})
		return
	}

	var req AdvancePhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	item, err := h.consumption.AdvancePhase(uint(itemID), req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order item advanced to next phase",
		"data":    item,
	})
}
