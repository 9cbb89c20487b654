// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/interfaces/http/handlers"
	"gorm.io/gorm"
)

// SetupRoutes wires every API route group
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log *logrus.Logger) {
	SetupCatalogRoutes(rg, db, cfg)
	SetupStockRoutes(rg, db, cfg, log)
	SetupOrderRoutes(rg, db, cfg, log)
	SetupProcurementRoutes(rg, db, cfg, log)
	SetupPlanningRoutes(rg, db, redisClient, cfg, log)
}

// SetupCatalogRoutes sets up product/component/supplier master data routes
func SetupCatalogRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	catalogHandler := handlers.NewCatalogHandler(db, cfg)

	catalogGroup := rg.Group("/catalog")
	{
		catalogGroup.GET("/products", catalogHandler.GetProducts)
		catalogGroup.POST("/products", catalogHandler.CreateProduct)
		catalogGroup.GET("/products/:id", catalogHandler.GetProduct)

		catalogGroup.GET("/components", catalogHandler.GetComponents)
		catalogGroup.POST("/components", catalogHandler.CreateComponent)
		catalogGroup.POST("/components/:id/suppliers", catalogHandler.LinkComponentSupplier)

		catalogGroup.GET("/suppliers", catalogHandler.GetSuppliers)
		catalogGroup.POST("/suppliers", catalogHandler.CreateSupplier)
	}
}

// SetupStockRoutes sets up stock, availability and goods receipt routes
func SetupStockRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config, log *logrus.Logger) {
	stockHandler := handlers.NewStockHandler(db, cfg, log)

	stock := rg.Group("/stock")
	{
		stock.POST("/availability/check", stockHandler.CheckAvailability)
		stock.POST("/receipts", stockHandler.ReceiveLot)
		stock.PUT("/lots/:id", stockHandler.CorrectLot)

		stock.GET("/levels", stockHandler.GetStockLevels)
		stock.GET("/levels/:id/movements", stockHandler.GetStockMovements)
		stock.GET("/reservations", stockHandler.GetReservations)
	}
}

// SetupOrderRoutes sets up customer order routes
func SetupOrderRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config, log *logrus.Logger) {
	orderHandler := handlers.NewOrderHandler(db, cfg, log)

	orders := rg.Group("/orders")
	{
		orders.GET("", orderHandler.GetOrders)
		orders.POST("", orderHandler.CreateOrder)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.PUT("/:id", orderHandler.UpdateOrder)
		orders.DELETE("/:id", orderHandler.DeleteOrder)

		orders.POST("/items/:itemId/advance-phase", orderHandler.AdvancePhase)
	}
}

// SetupProcurementRoutes sets up purchase order routes
func SetupProcurementRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config, log *logrus.Logger) {
	procurementHandler := handlers.NewProcurementHandler(db, cfg, log)

	procurementGroup := rg.Group("/procurement")
	{
		procurementGroup.POST("/generate", procurementHandler.GeneratePOs)
		procurementGroup.POST("/orders/:id/shortfall", procurementHandler.CaptureShortfall)
	}
}

// SetupPlanningRoutes sets up reconciliation run routes
func SetupPlanningRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log *logrus.Logger) {
	planningHandler := handlers.NewPlanningHandler(db, redisClient, cfg, log)

	planningGroup := rg.Group("/planning")
	{
		planningGroup.POST("/runs", planningHandler.TriggerRun)
		planningGroup.GET("/runs", planningHandler.GetRuns)
		planningGroup.GET("/runs/:code", planningHandler.GetRun)
	}
}
