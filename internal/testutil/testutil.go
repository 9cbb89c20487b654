// internal/testutil/testutil.go
package testutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const TestSchema = "test_erp"

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// QuietLogger returns a logrus logger that discards output, for services
// under test.
func QuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// SetupTestDB creates a test database connection using a dedicated test
// schema. Each test gets an isolated schema that is dropped afterwards.
// Tests are skipped when no database is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "erp_user")
	password := getEnv("DB_PASSWORD", "erp_password")
	dbname := getEnv("DB_NAME", "erp_db")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping: test database not reachable: %v", err)
	}
	if err := setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)).Error; err != nil {
		t.Skipf("Skipping: cannot create test schema: %v", err)
	}
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so all pooled
	// connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&catalog.ComponentCategory{},
		&catalog.Component{},
		&catalog.Product{},
		&catalog.BOMLine{},
		&catalog.Supplier{},
		&catalog.ComponentSupplier{},
		&order.NumberSequence{},
		&order.Order{},
		&order.OrderItem{},
		&order.OrderItemShortfall{},
		&inventory.Warehouse{},
		&inventory.StockLevel{},
		&inventory.StockLevelLot{},
		&inventory.StockReservation{},
		&inventory.PoReservation{},
		&inventory.StockMovement{},
		&inventory.LotSequence{},
		&planning.ReconciliationRun{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SeedWarehouse creates the default test warehouse
func SeedWarehouse(t *testing.T, db *gorm.DB) *inventory.Warehouse {
	t.Helper()
	warehouse := &inventory.Warehouse{
		Code:      "MAIN",
		Name:      "Main Warehouse",
		IsDefault: true,
		IsActive:  true,
	}
	if err := db.Create(warehouse).Error; err != nil {
		t.Fatalf("Failed to seed warehouse: %v", err)
	}
	return warehouse
}

// SeedCategory creates a component category consumed at the given phase
func SeedCategory(t *testing.T, db *gorm.DB, name string, phase int) *catalog.ComponentCategory {
	t.Helper()
	category := &catalog.ComponentCategory{
		Name:            name,
		Code:            fmt.Sprintf("CAT-%s-%d", name, phase),
		ConsumedAtPhase: phase,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("Failed to seed category: %v", err)
	}
	return category
}

// SeedComponent creates a component in the given category
func SeedComponent(t *testing.T, db *gorm.DB, code string, categoryID uint) *catalog.Component {
	t.Helper()
	component := &catalog.Component{
		Code:          code,
		Description:   "Component " + code,
		UnitOfMeasure: "pcs",
		CategoryID:    categoryID,
	}
	if err := db.Create(component).Error; err != nil {
		t.Fatalf("Failed to seed component: %v", err)
	}
	return component
}

// SeedProduct creates a product whose BOM needs quantityPerUnit of each
// given component
func SeedProduct(t *testing.T, db *gorm.DB, code string, lines map[uint]float64) *catalog.Product {
	t.Helper()
	product := &catalog.Product{Code: code, Name: "Product " + code}
	position := 1
	for componentID, qty := range lines {
		product.BOM = append(product.BOM, catalog.BOMLine{
			ComponentID:     componentID,
			QuantityPerUnit: qty,
			Position:        position,
		})
		position++
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return product
}

// SeedSupplier creates a supplier able to deliver the given components
func SeedSupplier(t *testing.T, db *gorm.DB, name string, componentIDs []uint, leadTimeDays int, lastCost float64) *catalog.Supplier {
	t.Helper()
	supplier := &catalog.Supplier{Code: "SUP-" + name, Name: name, IsActive: true}
	if err := db.Create(supplier).Error; err != nil {
		t.Fatalf("Failed to seed supplier: %v", err)
	}
	for _, componentID := range componentIDs {
		link := &catalog.ComponentSupplier{
			ComponentID:  componentID,
			SupplierID:   supplier.ID,
			LeadTimeDays: leadTimeDays,
			LastCost:     lastCost,
		}
		if err := db.Create(link).Error; err != nil {
			t.Fatalf("Failed to link supplier to component: %v", err)
		}
	}
	return supplier
}

// SeedCustomerOrder creates an open customer order with one line per
// product id
func SeedCustomerOrder(t *testing.T, db *gorm.DB, number string, deliveryDate time.Time, lines map[uint]float64) *order.Order {
	t.Helper()
	customerID := uint(1)
	o := &order.Order{
		OrderNumber:  number,
		Kind:         order.KindCustomer,
		CustomerID:   &customerID,
		DeliveryDate: deliveryDate,
		Status:       order.StatusOpen,
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("Failed to seed customer order: %v", err)
	}
	for productID, qty := range lines {
		pid := productID
		item := &order.OrderItem{OrderID: o.ID, ProductID: &pid, Quantity: qty, UnitPrice: 10}
		if err := db.Create(item).Error; err != nil {
			t.Fatalf("Failed to seed order line: %v", err)
		}
		o.Items = append(o.Items, *item)
	}
	return o
}

// SeedSupplierOrder creates an open supplier order with one line per
// component id
func SeedSupplierOrder(t *testing.T, db *gorm.DB, number string, supplierID uint, deliveryDate time.Time, lines map[uint]float64) *order.Order {
	t.Helper()
	sid := supplierID
	o := &order.Order{
		OrderNumber:  number,
		Kind:         order.KindSupplier,
		SupplierID:   &sid,
		DeliveryDate: deliveryDate,
		Status:       order.StatusOpen,
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("Failed to seed supplier order: %v", err)
	}
	for componentID, qty := range lines {
		cid := componentID
		item := &order.OrderItem{OrderID: o.ID, ComponentID: &cid, Quantity: qty, UnitPrice: 2}
		if err := db.Create(item).Error; err != nil {
			t.Fatalf("Failed to seed supplier order line: %v", err)
		}
		o.Items = append(o.Items, *item)
	}
	return o
}

// SeedStock creates a stock level with one lot holding the full quantity
func SeedStock(t *testing.T, db *gorm.DB, componentID, warehouseID uint, quantity float64, lotCode string) *inventory.StockLevel {
	t.Helper()
	level := &inventory.StockLevel{
		ComponentID: componentID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
	}
	if err := db.Create(level).Error; err != nil {
		t.Fatalf("Failed to seed stock level: %v", err)
	}
	if quantity > 0 {
		lot := &inventory.StockLevelLot{
			StockLevelID:     level.ID,
			Quantity:         quantity,
			ReceivedQuantity: quantity,
			InternalLotCode:  lotCode,
		}
		if err := db.Create(lot).Error; err != nil {
			t.Fatalf("Failed to seed stock lot: %v", err)
		}
	}
	return level
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
