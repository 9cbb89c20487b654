// internal/interfaces/http/handlers/planning.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"gorm.io/gorm"
)

// PlanningHandler handles reconciliation run endpoints
type PlanningHandler struct {
	db      *gorm.DB
	planner *planning.Planner
	config  *config.Config
}

// NewPlanningHandler creates a new planning handler
func NewPlanningHandler(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log *logrus.Logger) *PlanningHandler {
	ledger := inventory.NewLedgerService(db, log)
	reconciler := planning.NewReconciler(
		db,
		catalog.NewBOMService(db),
		inventory.NewAvailabilityService(db, log),
		ledger,
		procurement.NewGeneratorService(db, ledger, log),
		log,
	)
	planner := planning.NewPlanner(db, redisClient, reconciler,
		cfg.Planner.Interval, cfg.Planner.LockTTL, log)
	return &PlanningHandler{
		db:      db,
		planner: planner,
		config:  cfg,
	}
}

// TriggerRun handles POST /planning/runs
func (h *PlanningHandler) TriggerRun(c *gin.Context) {
	run, err := h.planner.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, planning.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A reconciliation run is already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Reconciliation run completed",
		"data":    run,
	})
}

// GetRuns handles GET /planning/runs
func (h *PlanningHandler) GetRuns(c *gin.Context) {
	var runs []planning.ReconciliationRun
	err := h.db.Order("started_at DESC").Limit(50).Find(&runs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reconciliation runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reconciliation runs retrieved successfully",
		"data":    runs,
	})
}

// GetRun handles GET /planning/runs/:code
func (h *PlanningHandler) GetRun(c *gin.Context) {
	var run planning.ReconciliationRun
	err := h.db.Where("run_code = ?", c.Param("code")).First(&run).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reconciliation run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reconciliation run retrieved successfully",
		"data":    run,
	})
}
