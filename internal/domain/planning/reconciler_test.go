// internal/domain/planning/reconciler_test.go
package planning_test

import (
	"math"
	"testing"
	"time"

	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/planning"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"github.com/your-org/manufacturing-erp/internal/testutil"
	"gorm.io/gorm"
)

func newReconciler(db *gorm.DB) *planning.Reconciler {
	log := testutil.QuietLogger()
	ledger := inventory.NewLedgerService(db, log)
	return planning.NewReconciler(
		db,
		catalog.NewBOMService(db),
		inventory.NewAvailabilityService(db, log),
		ledger,
		procurement.NewGeneratorService(db, ledger, log),
		log,
	)
}

func reservedFor(t *testing.T, db *gorm.DB, orderID uint) float64 {
	t.Helper()
	var sum float64
	db.Model(&inventory.StockReservation{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&sum)
	return sum
}

func earmarkedFor(t *testing.T, db *gorm.DB, orderID uint) float64 {
	t.Helper()
	var sum float64
	db.Model(&inventory.PoReservation{}).
		Where("order_customer_id = ?", orderID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&sum)
	return sum
}

// Place an order needing 6 components against 4 in stock: the gap of 2
// must come back as a PO line earmarked to the order.
func TestPlaceOrderReservesAndProcures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 2})
	testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 4, "AA000")

	reconciler := newReconciler(db)

	placed, poNumbers, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 3, UnitPrice: 50}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if placed.OrderNumber != "SO-000001" {
		t.Errorf("order number = %q, want SO-000001", placed.OrderNumber)
	}
	if len(poNumbers) != 1 || poNumbers[0] != "PO-000001" {
		t.Fatalf("po numbers = %v, want [PO-000001]", poNumbers)
	}

	if got := reservedFor(t, db, placed.ID); math.Abs(got-4) > 1e-9 {
		t.Errorf("reserved = %v, want all 4 in stock", got)
	}
	if got := earmarkedFor(t, db, placed.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("earmarked = %v, want the gap of 2", got)
	}

	var line order.OrderItem
	if err := db.Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.order_number = ?", poNumbers[0]).
		Select("order_items.*").
		First(&line).Error; err != nil {
		t.Fatalf("failed to load PO line: %v", err)
	}
	if math.Abs(line.Quantity-2) > 1e-9 {
		t.Errorf("PO line quantity = %v, want 2", line.Quantity)
	}
	if line.GeneratedByOrderCustomerID == nil || *line.GeneratedByOrderCustomerID != placed.ID {
		t.Errorf("PO line provenance = %v, want order %d", line.GeneratedByOrderCustomerID, placed.ID)
	}

	var fresh order.Order
	if err := db.Where("id = ?", placed.ID).First(&fresh).Error; err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if math.Abs(fresh.Total-150) > 1e-9 {
		t.Errorf("order total = %v, want 150", fresh.Total)
	}
}

// A second settle of a fully covered order must not create or extend
// anything.
func TestSettleIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 2})
	testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 4, "AA000")

	reconciler := newReconciler(db)
	placed, _, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	touched, err := reconciler.Settle(placed.ID)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("settle touched POs %v, want none", touched)
	}

	var poCount int64
	db.Model(&order.Order{}).Where("kind = ?", order.KindSupplier).Count(&poCount)
	if poCount != 1 {
		t.Errorf("supplier orders = %d, want 1", poCount)
	}
	var line order.OrderItem
	if err := db.Where("component_id = ?", steel.ID).First(&line).Error; err != nil {
		t.Fatalf("failed to load PO line: %v", err)
	}
	if math.Abs(line.Quantity-2) > 1e-9 {
		t.Errorf("PO line quantity = %v, want unchanged 2", line.Quantity)
	}
	if got := reservedFor(t, db, placed.ID); math.Abs(got-4) > 1e-9 {
		t.Errorf("reserved = %v, want unchanged 4", got)
	}
	if got := earmarkedFor(t, db, placed.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("earmarked = %v, want unchanged 2", got)
	}
}

// Lowering the quantity releases the freed commitment, physical
// reservations first.
func TestHandleOrderUpdateReleasesDecrease(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 2})
	testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 4, "AA000")

	reconciler := newReconciler(db)
	placed, _, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	// 3 -> 2 pieces frees 2 components worth of commitment.
	result, err := reconciler.HandleOrderUpdate(placed.ID,
		[]planning.OrderLine{{ProductID: chair.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("HandleOrderUpdate failed: %v", err)
	}
	if len(result.PONumbers) != 0 {
		t.Errorf("update touched POs %v, want none", result.PONumbers)
	}

	// Need is now 4: 2 still reserved physically, 2 still earmarked.
	if got := reservedFor(t, db, placed.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("reserved = %v, want 2 after release", got)
	}
	if got := earmarkedFor(t, db, placed.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("earmarked = %v, want 2", got)
	}

	var unreserves int64
	db.Model(&inventory.StockMovement{}).
		Where("type = ?", inventory.MovementTypeUnreserve).Count(&unreserves)
	if unreserves == 0 {
		t.Error("expected an unreserve movement for the released quantity")
	}
}

// Two orders share one stock level; shrinking the first must free only
// its own commitment and leave the second order's rows untouched.
func TestHandleOrderUpdateLeavesOtherOrdersAlone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 2})
	testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 8, "AA000")

	reconciler := newReconciler(db)

	// First order takes 6 of the 8 in stock.
	first, _, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	// Second order gets the remaining 2 plus an earmark of 2 on a PO.
	second, _, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   2,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	var before []inventory.StockReservation
	if err := db.Where("order_id = ?", second.ID).Order("id ASC").Find(&before).Error; err != nil {
		t.Fatalf("failed to snapshot reservations: %v", err)
	}
	if len(before) != 1 || math.Abs(before[0].Quantity-2) > 1e-9 {
		t.Fatalf("second order reservations = %+v, want one row of 2", before)
	}

	// First order drops from 3 to 1, freeing 4 components.
	if _, err := reconciler.HandleOrderUpdate(first.ID,
		[]planning.OrderLine{{ProductID: chair.ID, Quantity: 1}}, nil); err != nil {
		t.Fatalf("HandleOrderUpdate failed: %v", err)
	}

	if got := reservedFor(t, db, first.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("first order reserved = %v, want 2 after freeing 4", got)
	}

	var after []inventory.StockReservation
	if err := db.Where("order_id = ?", second.ID).Order("id ASC").Find(&after).Error; err != nil {
		t.Fatalf("failed to reload reservations: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("second order reservations = %d rows, want 1", len(after))
	}
	if after[0].ID != before[0].ID || after[0].StockLevelID != before[0].StockLevelID ||
		math.Abs(after[0].Quantity-before[0].Quantity) > 1e-9 {
		t.Errorf("second order reservation changed: before %+v, after %+v", before[0], after[0])
	}
	if got := earmarkedFor(t, db, second.ID); math.Abs(got-2) > 1e-9 {
		t.Errorf("second order earmarked = %v, want untouched 2", got)
	}
}

// An unchanged line set with no date change must not open a transaction
// worth of work.
func TestHandleOrderUpdateNoop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 1})
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 10, "AA000")

	reconciler := newReconciler(db)
	placed, _, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	result, err := reconciler.HandleOrderUpdate(placed.ID,
		[]planning.OrderLine{{ProductID: chair.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("HandleOrderUpdate failed: %v", err)
	}
	if result.Message != "nothing to reconcile" {
		t.Errorf("message = %q, want noop", result.Message)
	}
}

// Deleting the order releases everything and leaves the generated PO
// behind as ordinary replenishment.
func TestHandleOrderDeleteReleasesEverything(t *testing.T) {
	db := testutil.SetupTestDB(t)
	warehouse := testutil.SeedWarehouse(t, db)
	category := testutil.SeedCategory(t, db, "Raw", 1)
	steel := testutil.SeedComponent(t, db, "STEEL", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{steel.ID: 2})
	testutil.SeedSupplier(t, db, "acme", []uint{steel.ID}, 5, 2)
	testutil.SeedStock(t, db, steel.ID, warehouse.ID, 4, "AA000")

	reconciler := newReconciler(db)
	placed, poNumbers, err := reconciler.PlaceOrder(&planning.PlaceOrderRequest{
		CustomerID:   1,
		DeliveryDate: time.Now().AddDate(0, 0, 10),
		Lines:        []planning.OrderLine{{ProductID: chair.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	orphaned, err := reconciler.HandleOrderDelete(placed.ID)
	if err != nil {
		t.Fatalf("HandleOrderDelete failed: %v", err)
	}
	if len(orphaned) != 1 || orphaned[0] != poNumbers[0] {
		t.Errorf("orphaned POs = %v, want %v", orphaned, poNumbers)
	}

	if got := reservedFor(t, db, placed.ID); got != 0 {
		t.Errorf("reserved = %v, want 0 after delete", got)
	}
	if got := earmarkedFor(t, db, placed.ID); got != 0 {
		t.Errorf("earmarked = %v, want 0 after delete", got)
	}

	var gone order.Order
	if err := db.Unscoped().Where("id = ?", placed.ID).First(&gone).Error; err == nil {
		t.Error("order still present after hard delete")
	}

	// The PO survives, detached from the deleted order.
	var po order.Order
	if err := db.Preload("Items").Where("order_number = ?", poNumbers[0]).First(&po).Error; err != nil {
		t.Fatalf("failed to load orphaned PO: %v", err)
	}
	if len(po.Items) != 1 {
		t.Fatalf("orphaned PO lines = %d, want 1", len(po.Items))
	}
	if po.Items[0].GeneratedByOrderCustomerID != nil {
		t.Errorf("provenance = %v, want detached nil", po.Items[0].GeneratedByOrderCustomerID)
	}
}
