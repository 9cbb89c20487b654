// internal/interfaces/http/handlers/procurement.go
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
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"gorm.io/gorm"
)

// ProcurementHandler handles purchase order generation and shortfall
// capture endpoints
type ProcurementHandler struct {
	db           *gorm.DB
	bom          *catalog.BOMService
	availability *inventory.AvailabilityService
	generator    *procurement.GeneratorService
	shortfall    *procurement.ShortfallService
	config       *config.Config
}

// NewProcurementHandler creates a new procurement handler
func NewProcurementHandler(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *ProcurementHandler {
	ledger := inventory.NewLedgerService(db, log)
	return &ProcurementHandler{
		db:           db,
		bom:          catalog.NewBOMService(db),
		availability: inventory.NewAvailabilityService(db, log),
		generator:    procurement.NewGeneratorService(db, ledger, log),
		shortfall:    procurement.NewShortfallService(db, cfg.Planner.ReorderBufferDays, log),
		config:       cfg,
	}
}

// GeneratePOsRequest asks for purchase orders covering the shortage of a
// customer order's product lines by its delivery date.
type GeneratePOsRequest struct {
	OriginOrderID uint                      `json:"origin_order_id" binding:"required"`
	Lines         []catalog.ProductQuantity `json:"lines" binding:"required,min=1,dive"`
	DeliveryDate  time.Time                 `json:"delivery_date" binding:"required"`
}

// GeneratePOs handles POST /procurement/generate
func (h *ProcurementHandler) GeneratePOs(c *gin.Context) {
	var req GeneratePOsRequest
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

	excludeID := req.OriginOrderID
	check, err := h.availability.Check(needed, req.DeliveryDate, &excludeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if check.OK {
		c.JSON(http.StatusOK, gin.H{
			"message": "Need fully covered, no purchase orders required",
			"data":    gin.H{"po_numbers": []string{}},
		})
		return
	}

	enriched, err := h.generator.ChooseSuppliers(check.Shortage)
	if err != nil {
		if errors.Is(err, procurement.ErrNoSupplier) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	numbers, err := h.generator.GenerateFromShortage(enriched, req.OriginOrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Purchase orders generated successfully",
		"data": gin.H{
			"shortage":   check.Shortage,
			"po_numbers": numbers,
		},
	})
}

// CaptureShortfall handles POST /procurement/orders/:id/shortfall
func (h *ProcurementHandler) CaptureShortfall(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	recovery, err := h.shortfall.Capture(uint(orderID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if recovery == nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "Supplier order delivered in full, no shortfall",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Shortfall captured into recovery order",
		"data":    recovery,
	})
}
