// internal/domain/procurement/shortfall_test.go
package procurement_test

import (
	"math"
	"testing"
	"time"

	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"github.com/your-org/manufacturing-erp/internal/testutil"
)

func TestCaptureCreatesRecoveryOrderForGap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)

	po := testutil.SeedSupplierOrder(t, db, "PO-000777", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{steel.ID: 10})

	// Only 7 of the ordered 10 actually arrived.
	level := testutil.SeedStock(t, db, steel.ID, warehouse.ID, 0, "")
	lot := inventory.StockLevelLot{
		StockLevelID:     level.ID,
		OrderID:          &po.ID,
		Quantity:         7,
		ReceivedQuantity: 7,
		InternalLotCode:  "AA000",
	}
	if err := db.Create(&lot).Error; err != nil {
		t.Fatalf("failed to seed received lot: %v", err)
	}
	if err := db.Model(&inventory.StockLevel{}).Where("id = ?", level.ID).
		Update("quantity", 7).Error; err != nil {
		t.Fatalf("failed to set level quantity: %v", err)
	}

	shortfall := procurement.NewShortfallService(db, 7, testutil.QuietLogger())
	child, err := shortfall.Capture(po.ID)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if child == nil {
		t.Fatal("expected a recovery order, got nil")
	}

	if child.ParentOrderID == nil || *child.ParentOrderID != po.ID {
		t.Errorf("recovery parent = %v, want %d", child.ParentOrderID, po.ID)
	}
	if !child.IsSupplier() {
		t.Errorf("recovery kind = %s, want supplier", child.Kind)
	}

	wantDelivery := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, 7)
	if !child.DeliveryDate.Equal(wantDelivery) {
		t.Errorf("recovery delivery = %v, want %v", child.DeliveryDate, wantDelivery)
	}

	var lines []order.OrderItem
	if err := db.Where("order_id = ?", child.ID).Find(&lines).Error; err != nil {
		t.Fatalf("failed to load recovery lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("recovery lines = %d, want 1", len(lines))
	}
	if math.Abs(lines[0].Quantity-3) > 1e-9 {
		t.Errorf("recovery quantity = %v, want 3", lines[0].Quantity)
	}
	// The gap reorders at the original price.
	if math.Abs(lines[0].UnitPrice-2) > 1e-9 {
		t.Errorf("recovery unit price = %v, want 2", lines[0].UnitPrice)
	}
	if math.Abs(child.Total-6) > 1e-9 {
		t.Errorf("recovery total = %v, want 6", child.Total)
	}

	// The original line is linked to its follow-up.
	var link order.OrderItemShortfall
	if err := db.Where("order_item_id = ?", po.Items[0].ID).First(&link).Error; err != nil {
		t.Fatalf("failed to load shortfall link: %v", err)
	}
	if link.FollowUpItemID != lines[0].ID || math.Abs(link.Quantity-3) > 1e-9 {
		t.Errorf("shortfall link = %+v, want follow-up %d qty 3", link, lines[0].ID)
	}
}

func TestCaptureReturnsNilWhenDeliveredInFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)

	po := testutil.SeedSupplierOrder(t, db, "PO-000777", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{steel.ID: 10})

	level := testutil.SeedStock(t, db, steel.ID, warehouse.ID, 0, "")
	lot := inventory.StockLevelLot{
		StockLevelID:     level.ID,
		OrderID:          &po.ID,
		Quantity:         10,
		ReceivedQuantity: 10,
		InternalLotCode:  "AA000",
	}
	if err := db.Create(&lot).Error; err != nil {
		t.Fatalf("failed to seed received lot: %v", err)
	}

	shortfall := procurement.NewShortfallService(db, 7, testutil.QuietLogger())
	child, err := shortfall.Capture(po.ID)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if child != nil {
		t.Errorf("recovery order = %+v, want nil for full delivery", child)
	}

	var count int64
	db.Model(&order.Order{}).Count(&count)
	if count != 1 {
		t.Errorf("orders = %d, want only the original PO", count)
	}
}

func TestCaptureIgnoresConsumedQuantity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)

	po := testutil.SeedSupplierOrder(t, db, "PO-000777", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{steel.ID: 10})

	// The full 10 arrived, then production consumed 6 of them.
	level := testutil.SeedStock(t, db, steel.ID, warehouse.ID, 0, "")
	lot := inventory.StockLevelLot{
		StockLevelID:     level.ID,
		OrderID:          &po.ID,
		Quantity:         4,
		ReceivedQuantity: 10,
		InternalLotCode:  "AA000",
	}
	if err := db.Create(&lot).Error; err != nil {
		t.Fatalf("failed to seed received lot: %v", err)
	}

	shortfall := procurement.NewShortfallService(db, 7, testutil.QuietLogger())
	child, err := shortfall.Capture(po.ID)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if child != nil {
		t.Errorf("recovery order = %+v, want nil: consumption is not a delivery gap", child)
	}
}

func TestCaptureRejectsCustomerOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	customerOrder := testutil.SeedCustomerOrder(t, db, "SO-000001",
		time.Now().AddDate(0, 0, 10), map[uint]float64{})

	shortfall := procurement.NewShortfallService(db, 7, testutil.QuietLogger())
	if _, err := shortfall.Capture(customerOrder.ID); err == nil {
		t.Error("expected error capturing shortfall on a customer order")
	}
}
