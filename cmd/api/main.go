// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/config"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"github.com/your-org/manufacturing-erp/internal/infrastructure/database/postgres"
	"github.com/your-org/manufacturing-erp/internal/infrastructure/database/redis"
	"github.com/your-org/manufacturing-erp/internal/interfaces/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	logger := newLogger(cfg)

	// Connect to database
	db, err := postgres.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Health check
	if err := db.Health(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	if err := redisClient.Health(); err != nil {
		log.Fatalf("Redis health check failed: %v", err)
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB())

	if err := migration.RunAutoMigrations(); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	if err := migration.CreateIndexes(); err != nil {
		log.Printf("Warning: Index creation failed: %v", err)
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.Printf("Warning: Data seeding failed: %v", err)
		}
		migration.GetTableInfo()
	}

	log.Println("✅ All systems operational!")

	// Background planner: periodic settle pass over open customer orders
	plannerCtx, stopPlanner := context.WithCancel(context.Background())
	defer stopPlanner()

	if cfg.Planner.Enabled {
		ledger := inventory.NewLedgerService(db.GetDB(), logger)
		reconciler := planning.NewReconciler(
			db.GetDB(),
			catalog.NewBOMService(db.GetDB()),
			inventory.NewAvailabilityService(db.GetDB(), logger),
			ledger,
			procurement.NewGeneratorService(db.GetDB(), ledger, logger),
			logger,
		)
		planner := planning.NewPlanner(db.GetDB(), redisClient.GetClient(), reconciler,
			cfg.Planner.Interval, cfg.Planner.LockTTL, logger)
		go planner.Start(plannerCtx)
	}

	// Create and start HTTP server
	server := http.NewServer(cfg, db.GetDB(), redisClient.GetClient(), logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("👋 Shutting down gracefully...")

	stopPlanner()

	// Give server 30 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	log.Println("✅ Server shutdown completed")
}

// newLogger builds the shared structured logger from config.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
