// internal/domain/inventory/availability.go
package inventory

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
)

// ShortageRow is one unsatisfiable component requirement.
type ShortageRow struct {
	ComponentID uint    `json:"component_id"`
	Needed      float64 `json:"needed"`
	Available   float64 `json:"available"`
	Incoming    float64 `json:"incoming"`
	Shortage    float64 `json:"shortage"`
}

// CheckResult is the availability verdict for one needed map.
type CheckResult struct {
	OK       bool          `json:"ok"`
	Shortage []ShortageRow `json:"shortage"`
}

// AvailabilityService combines on-hand stock and in-transit supplier
// quantity against required quantity to produce a shortage list.
type AvailabilityService struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewAvailabilityService creates a new availability calculator
func NewAvailabilityService(db *gorm.DB, log *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{db: db, log: log}
}

// Check evaluates every needed component against gross on-hand stock plus
// open supplier-order quantity arriving no later than deliveryDate. When
// excludeOrderID is set, quantity already earmarked to that customer order
// on incoming PO lines is not counted again as incoming.
func (s *AvailabilityService) Check(needed map[uint]float64, deliveryDate time.Time, excludeOrderID *uint) (*CheckResult, error) {
	return s.CheckTx(s.db, needed, deliveryDate, excludeOrderID)
}

// CheckTx is Check running on the caller's transaction.
func (s *AvailabilityService) CheckTx(tx *gorm.DB, needed map[uint]float64, deliveryDate time.Time, excludeOrderID *uint) (*CheckResult, error) {
	result := &CheckResult{OK: true}

	for componentID, neededQty := range needed {
		if neededQty <= Epsilon {
			continue
		}

		available, err := s.onHand(tx, componentID)
		if err != nil {
			return nil, err
		}

		incoming, err := s.incoming(tx, componentID, deliveryDate, excludeOrderID)
		if err != nil {
			return nil, err
		}

		if neededQty > available+incoming+Epsilon {
			row := ShortageRow{
				ComponentID: componentID,
				Needed:      round4(neededQty),
				Available:   round4(available),
				Incoming:    round4(incoming),
				Shortage:    round4(neededQty - available - incoming),
			}
			result.Shortage = append(result.Shortage, row)
			result.OK = false

			s.log.WithFields(logrus.Fields{
				"component_id": componentID,
				"needed":       row.Needed,
				"available":    row.Available,
				"incoming":     row.Incoming,
				"shortage":     row.Shortage,
			}).Info("Component shortage detected")
		}
	}

	return result, nil
}

// onHand sums gross physical stock across warehouses. Reservations are
// accounted for by the caller, not subtracted here.
func (s *AvailabilityService) onHand(tx *gorm.DB, componentID uint) (float64, error) {
	var total float64
	err := tx.Model(&StockLevel{}).
		Where("component_id = ?", componentID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock for component %d: %w", componentID, err)
	}
	return total, nil
}

// incoming sums open supplier-order line quantity for the component with
// delivery inside [today, target].
func (s *AvailabilityService) incoming(tx *gorm.DB, componentID uint, deliveryDate time.Time, excludeOrderID *uint) (float64, error) {
	today := time.Now().Truncate(24 * time.Hour)

	var total float64
	err := tx.Table("order_items").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.kind = ? AND orders.status = ? AND orders.deleted_at IS NULL", order.KindSupplier, order.StatusOpen).
		Where("order_items.component_id = ?", componentID).
		Where("orders.delivery_date >= ? AND orders.delivery_date <= ?", today, deliveryDate).
		Select("COALESCE(SUM(order_items.quantity), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum incoming quantity for component %d: %w", componentID, err)
	}

	if excludeOrderID != nil {
		var earmarked float64
		err := tx.Table("po_reservations").
			Joins("JOIN order_items ON order_items.id = po_reservations.order_item_id").
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("po_reservations.order_customer_id = ?", *excludeOrderID).
			Where("order_items.component_id = ?", componentID).
			Where("orders.delivery_date >= ? AND orders.delivery_date <= ?", today, deliveryDate).
			Select("COALESCE(SUM(po_reservations.quantity), 0)").Scan(&earmarked).Error
		if err != nil {
			return 0, fmt.Errorf("failed to sum earmarked quantity for component %d: %w", componentID, err)
		}
		total -= earmarked
		if total < 0 {
			total = 0
		}
	}

	return total, nil
}
