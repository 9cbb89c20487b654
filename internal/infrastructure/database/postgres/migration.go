// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"github.com/your-org/manufacturing-erp/internal/pkg/lotcode"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Define all models that need migration in dependency order
	models := []interface{}{
		// Catalog domain - Base tables
		&catalog.ComponentCategory{},
		&catalog.Component{},
		&catalog.Product{},
		&catalog.BOMLine{},
		&catalog.Supplier{},
		&catalog.ComponentSupplier{},

		// Order domain
		&order.NumberSequence{},
		&order.Order{},
		&order.OrderItem{},
		&order.OrderItemShortfall{},

		// Inventory domain - Dependent tables
		&inventory.Warehouse{},
		&inventory.StockLevel{},
		&inventory.StockLevelLot{},
		&inventory.StockReservation{},
		&inventory.PoReservation{},
		&inventory.StockMovement{},
		&inventory.LotSequence{},

		// Planning domain
		&planning.ReconciliationRun{},
	}

	// Run auto-migration for each model
	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Catalog indexes
		"CREATE INDEX IF NOT EXISTS idx_components_code ON components(code)",
		"CREATE INDEX IF NOT EXISTS idx_products_code ON products(code)",
		"CREATE INDEX IF NOT EXISTS idx_bom_lines_component ON bom_lines(component_id)",
		"CREATE INDEX IF NOT EXISTS idx_component_suppliers_lead ON component_suppliers(component_id, lead_time_days, last_cost)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_kind_status ON orders(kind, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_kind_supplier_delivery ON orders(kind, supplier_id, delivery_date, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_delivery_date ON orders(delivery_date)",
		"CREATE INDEX IF NOT EXISTS idx_orders_parent ON orders(parent_order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_component ON order_items(component_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_generated_by ON order_items(generated_by_order_customer_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_item_shortfalls_item ON order_item_shortfalls(order_item_id)",

		// Inventory indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_levels_component ON stock_levels(component_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_level_lots_level_created ON stock_level_lots(stock_level_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_stock_level_lots_order ON stock_level_lots(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_level_created ON stock_reservations(stock_level_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_order ON stock_reservations(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_po_reservations_item ON po_reservations(order_item_id)",
		"CREATE INDEX IF NOT EXISTS idx_po_reservations_customer ON po_reservations(order_customer_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_level_created ON stock_movements(stock_level_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_type ON stock_movements(type)",

		// Planning indexes
		"CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_started ON reconciliation_runs(started_at DESC)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedWarehouse(); err != nil {
		return fmt.Errorf("failed to seed warehouse: %w", err)
	}

	if err := m.seedComponentCategories(); err != nil {
		return fmt.Errorf("failed to seed component categories: %w", err)
	}

	if err := m.seedLotSequence(); err != nil {
		return fmt.Errorf("failed to seed lot sequence: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// seedWarehouse creates the default warehouse
func (m *Migration) seedWarehouse() error {
	log.Println("🏭 Seeding default warehouse...")

	var existing inventory.Warehouse
	result := m.db.Where("code = ?", "MAIN").First(&existing)
	if result.Error != nil {
		warehouse := inventory.Warehouse{
			Code:      "MAIN",
			Name:      "Main Warehouse",
			IsDefault: true,
			IsActive:  true,
		}
		if err := m.db.Create(&warehouse).Error; err != nil {
			return err
		}
		log.Println("✅ Created default warehouse: MAIN")
	} else {
		log.Println("⏭️ Default warehouse already exists")
	}

	return nil
}

// seedComponentCategories creates default categories with their
// production phase mapping.
func (m *Migration) seedComponentCategories() error {
	log.Println("🏷️ Seeding component categories...")

	categories := []catalog.ComponentCategory{
		{
			Name:            "Raw Material",
			Code:            "RAW",
			ConsumedAtPhase: 1,
		},
		{
			Name:            "Mechanical Part",
			Code:            "MECH",
			ConsumedAtPhase: 2,
		},
		{
			Name:            "Electronic Part",
			Code:            "ELEC",
			ConsumedAtPhase: 2,
		},
		{
			Name:            "Packaging",
			Code:            "PACK",
			ConsumedAtPhase: 3,
		},
	}

	for _, category := range categories {
		var existing catalog.ComponentCategory
		result := m.db.Where("code = ?", category.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&category).Error; err != nil {
				return err
			}
			log.Printf("✅ Created component category: %s", category.Name)
		} else {
			log.Printf("⏭️ Component category already exists: %s", category.Name)
		}
	}

	return nil
}

// seedLotSequence initializes the internal lot code counter.
func (m *Migration) seedLotSequence() error {
	var count int64
	m.db.Model(&inventory.LotSequence{}).Count(&count)
	if count > 0 {
		log.Println("⏭️ Lot sequence already initialized")
		return nil
	}

	// Empty last code makes the first issued lot lotcode.First.
	seq := inventory.LotSequence{LastCode: ""}
	if err := m.db.Create(&seq).Error; err != nil {
		return err
	}
	log.Printf("✅ Initialized lot sequence, first code will be %s", lotcode.First)
	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Define tables in reverse dependency order
	tables := []string{
		"reconciliation_runs",
		"stock_movements",
		"po_reservations",
		"stock_reservations",
		"stock_level_lots",
		"stock_levels",
		"lot_sequences",
		"warehouses",
		"order_item_shortfalls",
		"order_items",
		"orders",
		"number_sequences",
		"component_suppliers",
		"suppliers",
		"bom_lines",
		"products",
		"components",
		"component_categories",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	// Get list of tables
	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	return nil
}
