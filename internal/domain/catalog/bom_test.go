// internal/domain/catalog/bom_test.go
package catalog_test

import (
	"errors"
	"math"
	"testing"

	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/testutil"
)

func TestExplodeAggregatesSharedComponents(t *testing.T) {
	db := testutil.SetupTestDB(t)

	category := testutil.SeedCategory(t, db, "Raw", 1)
	screw := testutil.SeedComponent(t, db, "SCREW-M3", category.ID)
	plate := testutil.SeedComponent(t, db, "PLATE-A", category.ID)

	// Both products share the screw.
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{
		screw.ID: 4,
		plate.ID: 1,
	})
	table := testutil.SeedProduct(t, db, "TABLE", map[uint]float64{
		screw.ID: 8,
	})

	svc := catalog.NewBOMService(db)
	needed, err := svc.Explode([]catalog.ProductQuantity{
		{ProductID: chair.ID, Quantity: 3},
		{ProductID: table.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Explode failed: %v", err)
	}

	if got := needed[screw.ID]; math.Abs(got-28) > 1e-9 {
		t.Errorf("screw need = %v, want 28", got)
	}
	if got := needed[plate.ID]; math.Abs(got-3) > 1e-9 {
		t.Errorf("plate need = %v, want 3", got)
	}
	if len(needed) != 2 {
		t.Errorf("needed has %d components, want 2", len(needed))
	}
}

func TestExplodeSkipsNonPositiveLines(t *testing.T) {
	db := testutil.SetupTestDB(t)

	category := testutil.SeedCategory(t, db, "Raw", 1)
	screw := testutil.SeedComponent(t, db, "SCREW-M3", category.ID)
	chair := testutil.SeedProduct(t, db, "CHAIR", map[uint]float64{screw.ID: 4})

	svc := catalog.NewBOMService(db)
	needed, err := svc.Explode([]catalog.ProductQuantity{
		{ProductID: chair.ID, Quantity: 0},
		{ProductID: chair.ID, Quantity: -2},
	})
	if err != nil {
		t.Fatalf("Explode failed: %v", err)
	}
	if len(needed) != 0 {
		t.Errorf("needed = %v, want empty", needed)
	}
}

func TestExplodeUnknownProduct(t *testing.T) {
	db := testutil.SetupTestDB(t)

	svc := catalog.NewBOMService(db)
	_, err := svc.Explode([]catalog.ProductQuantity{{ProductID: 9999, Quantity: 1}})
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}
