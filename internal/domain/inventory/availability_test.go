// internal/domain/inventory/availability_test.go
package inventory_test

import (
	"math"
	"testing"
	"time"

	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/testutil"
)

func TestCheckReportsShortage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	testutil.SeedStock(t, db, component.ID, warehouse.ID, 4, "AA000")

	svc := inventory.NewAvailabilityService(db, testutil.QuietLogger())
	target := time.Now().AddDate(0, 0, 10)

	result, err := svc.Check(map[uint]float64{component.ID: 6}, target, nil)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.OK {
		t.Fatal("expected shortage, got OK")
	}
	if len(result.Shortage) != 1 {
		t.Fatalf("shortage rows = %d, want 1", len(result.Shortage))
	}

	row := result.Shortage[0]
	if row.ComponentID != component.ID {
		t.Errorf("shortage component = %d, want %d", row.ComponentID, component.ID)
	}
	if math.Abs(row.Available-4) > 1e-9 || math.Abs(row.Shortage-2) > 1e-9 {
		t.Errorf("shortage row = %+v, want available 4 shortage 2", row)
	}
}

func TestCheckCountsIncomingInWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{component.ID}, 5, 2)
	testutil.SeedStock(t, db, component.ID, warehouse.ID, 4, "AA000")

	// Two units arrive before the target date.
	testutil.SeedSupplierOrder(t, db, "PO-000001", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{component.ID: 2})

	svc := inventory.NewAvailabilityService(db, testutil.QuietLogger())
	target := time.Now().AddDate(0, 0, 10)

	result, err := svc.Check(map[uint]float64{component.ID: 6}, target, nil)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.OK {
		t.Errorf("expected OK with incoming coverage, got shortage %+v", result.Shortage)
	}

	// A PO arriving after the target does not count.
	testutil.SeedSupplierOrder(t, db, "PO-000002", supplier.ID,
		time.Now().AddDate(0, 0, 20), map[uint]float64{component.ID: 100})

	result, err = svc.Check(map[uint]float64{component.ID: 10}, target, nil)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.OK {
		t.Error("expected shortage, late PO should not count as incoming")
	}
}

func TestCheckExcludesOwnEarmarks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	component := testutil.SeedComponent(t, db, "STEEL", category.ID)
	supplier := testutil.SeedSupplier(t, db, "acme", []uint{component.ID}, 5, 2)

	po := testutil.SeedSupplierOrder(t, db, "PO-000001", supplier.ID,
		time.Now().AddDate(0, 0, 5), map[uint]float64{component.ID: 2})

	// The incoming quantity is already promised to customer order 42.
	earmark := inventory.PoReservation{
		OrderItemID:     po.Items[0].ID,
		OrderCustomerID: 42,
		Quantity:        2,
	}
	if err := db.Create(&earmark).Error; err != nil {
		t.Fatalf("failed to seed earmark: %v", err)
	}

	svc := inventory.NewAvailabilityService(db, testutil.QuietLogger())
	target := time.Now().AddDate(0, 0, 10)

	// Without exclusion the PO covers the need.
	result, err := svc.Check(map[uint]float64{component.ID: 2}, target, nil)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.OK {
		t.Errorf("expected OK without exclusion, got %+v", result.Shortage)
	}

	// Checking on behalf of order 42 must not double count its own earmark.
	excludeID := uint(42)
	result, err = svc.Check(map[uint]float64{component.ID: 2}, target, &excludeID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.OK {
		t.Fatal("expected shortage when own earmarks are excluded")
	}
	if got := result.Shortage[0].Shortage; math.Abs(got-2) > 1e-9 {
		t.Errorf("shortage = %v, want 2", got)
	}
}
