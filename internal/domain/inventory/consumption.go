// internal/domain/inventory/consumption.go
package inventory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConsumptionService consumes physical lots as order items progress
// through production phases, retiring matching reservations as it goes.
type ConsumptionService struct {
	db     *gorm.DB
	ledger *LedgerService
	log    *logrus.Logger
}

// NewConsumptionService creates a new lot consumption engine
func NewConsumptionService(db *gorm.DB, ledger *LedgerService, log *logrus.Logger) *ConsumptionService {
	return &ConsumptionService{db: db, ledger: ledger, log: log}
}

// ConsumeForPhaseAdvance consumes the components a production phase uses
// when qtyPieces units of an order item leave phase fromPhase. Lots are
// consumed strictly oldest-first; the order's reservations on the touched
// stock level are retired oldest-first, honoring the earliest promise.
// Running out of lots is logged as a warning, not an error: reservation
// accounting should already have guaranteed sufficiency by this point.
func (s *ConsumptionService) ConsumeForPhaseAdvance(item *order.OrderItem, fromPhase int, qtyPieces float64) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := s.ConsumeForPhaseAdvanceTx(tx, item, fromPhase, qtyPieces); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ConsumeForPhaseAdvanceTx is ConsumeForPhaseAdvance on the caller's
// transaction.
func (s *ConsumptionService) ConsumeForPhaseAdvanceTx(tx *gorm.DB, item *order.OrderItem, fromPhase int, qtyPieces float64) error {
	if item.ProductID == nil {
		return fmt.Errorf("order item %d has no product, nothing to consume", item.ID)
	}
	if qtyPieces <= Epsilon {
		return nil
	}

	var bomLines []catalog.BOMLine
	err := tx.Select("bom_lines.*").
		Joins("JOIN components ON components.id = bom_lines.component_id").
		Joins("JOIN component_categories ON component_categories.id = components.category_id").
		Where("bom_lines.product_id = ? AND component_categories.consumed_at_phase = ?", *item.ProductID, fromPhase).
		Order("bom_lines.position ASC").
		Find(&bomLines).Error
	if err != nil {
		return fmt.Errorf("failed to load phase %d BOM lines for product %d: %w", fromPhase, *item.ProductID, err)
	}

	for _, bomLine := range bomLines {
		needed := bomLine.QuantityPerUnit * qtyPieces
		if err := s.consumeComponent(tx, item.OrderID, bomLine.ComponentID, needed); err != nil {
			return err
		}
	}

	return nil
}

// AdvancePhase moves an order item out of its current production phase,
// consuming that phase's components for qtyPieces units. Defaults to the
// full line quantity when qtyPieces is zero.
func (s *ConsumptionService) AdvancePhase(orderItemID uint, qtyPieces float64) (*order.OrderItem, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item order.OrderItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderItemID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, fmt.Errorf("order item %d not found", orderItemID)
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to lock order item %d: %w", orderItemID, err)
	}

	if qtyPieces <= 0 {
		qtyPieces = item.Quantity
	}

	fromPhase := item.ProductionPhase
	if err := s.ConsumeForPhaseAdvanceTx(tx, &item, fromPhase, qtyPieces); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&order.OrderItem{}).Where("id = ?", item.ID).
		Update("production_phase", fromPhase+1).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to advance phase of item %d: %w", item.ID, err)
	}
	item.ProductionPhase = fromPhase + 1

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit phase advance: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_item_id": item.ID,
		"order_id":      item.OrderID,
		"from_phase":    fromPhase,
		"quantity":      qtyPieces,
	}).Info("Order item advanced to next phase")

	return &item, nil
}

func (s *ConsumptionService) consumeComponent(tx *gorm.DB, orderID, componentID uint, needed float64) error {
	// Lock the largest stock level for the component. Consuming from one
	// big level keeps stock from fragmenting across many small ones.
	var level StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("component_id = ?", componentID).
		Order("quantity DESC, id ASC").
		First(&level).Error
	if err == gorm.ErrRecordNotFound {
		s.log.WithFields(logrus.Fields{
			"order_id":     orderID,
			"component_id": componentID,
			"needed":       needed,
		}).Warn("No stock level found for phase consumption")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock stock level for component %d: %w", componentID, err)
	}

	var lots []StockLevelLot
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stock_level_id = ? AND quantity > 0", level.ID).
		Order("created_at ASC, id ASC").
		Find(&lots).Error
	if err != nil {
		return fmt.Errorf("failed to lock lots for level %d: %w", level.ID, err)
	}

	remaining := needed
	for i := range lots {
		if remaining <= Epsilon {
			break
		}
		lot := &lots[i]

		take := lot.Quantity
		if take > remaining {
			take = remaining
		}

		if err := tx.Model(&StockLevelLot{}).Where("id = ?", lot.ID).
			Update("quantity", lot.Quantity-take).Error; err != nil {
			return fmt.Errorf("failed to consume lot %d: %w", lot.ID, err)
		}
		if err := tx.Model(&StockLevel{}).Where("id = ?", level.ID).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", take)).Error; err != nil {
			return fmt.Errorf("failed to decrement stock level %d: %w", level.ID, err)
		}

		if err := s.retireReservations(tx, orderID, level.ID, take); err != nil {
			return err
		}

		note := fmt.Sprintf("lot %s consumed by order %d", lot.InternalLotCode, orderID)
		if err := recordMovement(tx, level.ID, MovementTypeOut, take, note); err != nil {
			return err
		}

		remaining -= take
	}

	if remaining > Epsilon {
		// Upstream accounting drift: reservations promised more than the
		// lots held. Investigate, but do not abort the phase advance.
		s.log.WithFields(logrus.Fields{
			"order_id":       orderID,
			"component_id":   componentID,
			"stock_level_id": level.ID,
			"needed":         needed,
			"unsatisfied":    remaining,
		}).Warn("Lots exhausted before phase consumption was satisfied")
	}

	return nil
}

// retireReservations finalizes up to qty of the order's reservations on
// the stock level, oldest first: consumption honors the earliest promise,
// unlike correction-time release which undoes the newest.
func (s *ConsumptionService) retireReservations(tx *gorm.DB, orderID, levelID uint, qty float64) error {
	var reservations []StockReservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND stock_level_id = ?", orderID, levelID).
		Order("created_at ASC, id ASC").
		Find(&reservations).Error
	if err != nil {
		return fmt.Errorf("failed to load reservations of order %d on level %d: %w", orderID, levelID, err)
	}

	remaining := qty
	for i := range reservations {
		if remaining <= Epsilon {
			break
		}
		res := &reservations[i]

		take := res.Quantity
		if take > remaining {
			take = remaining
		}
		if err := shrinkReservation(tx, res, take); err != nil {
			return err
		}
		remaining -= take
	}

	return nil
}
