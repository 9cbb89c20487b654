// internal/domain/planning/diff_test.go
package planning

import (
	"math"
	"testing"

	"github.com/your-org/manufacturing-erp/internal/domain/order"
)

func TestDiffLines(t *testing.T) {
	pid := func(id uint) *uint { return &id }

	tests := []struct {
		name         string
		current      []order.OrderItem
		incoming     []OrderLine
		wantIncrease map[uint]float64
		wantDecrease map[uint]float64
	}{
		{
			name:         "no change",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 3}},
			wantIncrease: map[uint]float64{},
			wantDecrease: map[uint]float64{},
		},
		{
			name:         "quantity raised",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 5}},
			wantIncrease: map[uint]float64{1: 2},
			wantDecrease: map[uint]float64{},
		},
		{
			name:         "quantity lowered",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 5}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 2}},
			wantIncrease: map[uint]float64{},
			wantDecrease: map[uint]float64{1: 3},
		},
		{
			name:         "new line is full increase",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 4}},
			wantIncrease: map[uint]float64{2: 4},
			wantDecrease: map[uint]float64{},
		},
		{
			name:         "removed line is full decrease",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}, {ProductID: pid(2), Quantity: 4}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 3}},
			wantIncrease: map[uint]float64{},
			wantDecrease: map[uint]float64{2: 4},
		},
		{
			name:         "zeroed line is full decrease",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 0}},
			wantIncrease: map[uint]float64{},
			wantDecrease: map[uint]float64{1: 3},
		},
		{
			name:         "epsilon drift is not a change",
			current:      []order.OrderItem{{ProductID: pid(1), Quantity: 3}},
			incoming:     []OrderLine{{ProductID: 1, Quantity: 3 + 1e-9}},
			wantIncrease: map[uint]float64{},
			wantDecrease: map[uint]float64{},
		},
		{
			name:    "mixed deltas",
			current: []order.OrderItem{{ProductID: pid(1), Quantity: 3}, {ProductID: pid(2), Quantity: 4}},
			incoming: []OrderLine{
				{ProductID: 1, Quantity: 6},
				{ProductID: 3, Quantity: 1},
			},
			wantIncrease: map[uint]float64{1: 3, 3: 1},
			wantDecrease: map[uint]float64{2: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			increase, decrease := diffLines(tt.current, tt.incoming)
			assertDeltas(t, "increase", increase, tt.wantIncrease)
			assertDeltas(t, "decrease", decrease, tt.wantDecrease)
		})
	}
}

func assertDeltas(t *testing.T, label string, got []lineDelta, want map[uint]float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s has %d deltas, want %d (%v)", label, len(got), len(want), got)
		return
	}
	for _, d := range got {
		wantQty, ok := want[d.ProductID]
		if !ok {
			t.Errorf("%s contains unexpected product %d", label, d.ProductID)
			continue
		}
		if math.Abs(d.Quantity-wantQty) > 1e-9 {
			t.Errorf("%s for product %d = %v, want %v", label, d.ProductID, d.Quantity, wantQty)
		}
	}
}
