// internal/domain/inventory/receipt_test.go
package inventory_test

import (
	"math"
	"testing"
	"time"

	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/testutil"
)

func TestCorrectLotDownReleasesOverCommit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	level := testutil.SeedStock(t, db, component.ID, warehouse.ID, 10, "AA000")

	reservation := inventory.StockReservation{
		StockLevelID: level.ID,
		OrderID:      1,
		Quantity:     8,
	}
	if err := db.Create(&reservation).Error; err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	var lot inventory.StockLevelLot
	if err := db.Where("stock_level_id = ?", level.ID).First(&lot).Error; err != nil {
		t.Fatalf("failed to load lot: %v", err)
	}

	log := testutil.QuietLogger()
	receipt := inventory.NewReceiptService(db, inventory.NewLedgerService(db, log), log)

	// Recount found 5 instead of 10: 8 reserved against 5 on hand means
	// 3 of the reservation must go.
	corrected, err := receipt.CorrectLot(lot.ID, 5)
	if err != nil {
		t.Fatalf("CorrectLot failed: %v", err)
	}
	if math.Abs(corrected.Quantity-5) > 1e-9 {
		t.Errorf("lot quantity = %v, want 5", corrected.Quantity)
	}

	var freshLevel inventory.StockLevel
	if err := db.Where("id = ?", level.ID).First(&freshLevel).Error; err != nil {
		t.Fatalf("failed to load level: %v", err)
	}
	if math.Abs(freshLevel.Quantity-5) > 1e-9 {
		t.Errorf("level quantity = %v, want 5", freshLevel.Quantity)
	}

	var reserved float64
	db.Model(&inventory.StockReservation{}).
		Where("stock_level_id = ?", level.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&reserved)
	if math.Abs(reserved-5) > 1e-9 {
		t.Errorf("reserved = %v, want 5 after releasing the over-commit", reserved)
	}

	var outCount int64
	db.Model(&inventory.StockMovement{}).
		Where("type = ?", inventory.MovementTypeOut).Count(&outCount)
	if outCount != 1 {
		t.Errorf("out movements = %d, want 1", outCount)
	}

	// The correction restates the delivery itself.
	var freshLot inventory.StockLevelLot
	if err := db.Where("id = ?", lot.ID).First(&freshLot).Error; err != nil {
		t.Fatalf("failed to reload lot: %v", err)
	}
	if math.Abs(freshLot.ReceivedQuantity-5) > 1e-9 {
		t.Errorf("received quantity = %v, want 5", freshLot.ReceivedQuantity)
	}
}

func TestCorrectLotDownKeepsCoveredReservations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	level := testutil.SeedStock(t, db, component.ID, warehouse.ID, 10, "AA000")

	reservation := inventory.StockReservation{
		StockLevelID: level.ID,
		OrderID:      1,
		Quantity:     4,
	}
	if err := db.Create(&reservation).Error; err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	var lot inventory.StockLevelLot
	if err := db.Where("stock_level_id = ?", level.ID).First(&lot).Error; err != nil {
		t.Fatalf("failed to load lot: %v", err)
	}

	log := testutil.QuietLogger()
	receipt := inventory.NewReceiptService(db, inventory.NewLedgerService(db, log), log)

	// 4 reserved still fits into the corrected 5: nothing to release.
	if _, err := receipt.CorrectLot(lot.ID, 5); err != nil {
		t.Fatalf("CorrectLot failed: %v", err)
	}

	var reserved float64
	db.Model(&inventory.StockReservation{}).
		Where("stock_level_id = ?", level.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&reserved)
	if math.Abs(reserved-4) > 1e-9 {
		t.Errorf("reserved = %v, want untouched 4", reserved)
	}
}

func TestCorrectLotUpAttachesWaitingEarmarks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{component.ID}, 5, 2)
	po := testutil.SeedSupplierOrder(t, db, "PO-000001", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{component.ID: 6})

	log := testutil.QuietLogger()
	receipt := inventory.NewReceiptService(db, inventory.NewLedgerService(db, log), log)

	// 3 of the 6 arrive first, before anything was promised.
	lot, err := receipt.ReceiveLot(&inventory.ReceiveLotRequest{
		OrderID:     po.ID,
		ComponentID: component.ID,
		Quantity:    3,
	})
	if err != nil {
		t.Fatalf("ReceiveLot failed: %v", err)
	}

	// The rest of the line gets promised to customer order 42 meanwhile.
	earmark := inventory.PoReservation{
		OrderItemID:     po.Items[0].ID,
		OrderCustomerID: 42,
		Quantity:        2,
	}
	if err := db.Create(&earmark).Error; err != nil {
		t.Fatalf("failed to seed earmark: %v", err)
	}

	// Recount finds 6: the extra 3 attach the waiting earmark of 2.
	if _, err := receipt.CorrectLot(lot.ID, 6); err != nil {
		t.Fatalf("CorrectLot failed: %v", err)
	}

	var reservations []inventory.StockReservation
	if err := db.Find(&reservations).Error; err != nil {
		t.Fatalf("failed to load reservations: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("reservations = %d, want 1", len(reservations))
	}
	if reservations[0].OrderID != 42 || math.Abs(reservations[0].Quantity-2) > 1e-9 {
		t.Errorf("reservation = %+v, want order 42 qty 2", reservations[0])
	}

	var earmarkCount int64
	db.Model(&inventory.PoReservation{}).Count(&earmarkCount)
	if earmarkCount != 0 {
		t.Errorf("earmarks left = %d, want 0", earmarkCount)
	}
}
