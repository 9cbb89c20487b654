// internal/domain/inventory/ledger.go
package inventory

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService tracks committed quantities per stock lot per customer
// order: it attaches reservations when goods arrive and releases them when
// quantities shrink. All mutations run under row locks on the stock level
// and its reservations so concurrent adjustments to the same component are
// serialized.
type LedgerService struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewLedgerService creates a new reservation ledger
func NewLedgerService(db *gorm.DB, log *logrus.Logger) *LedgerService {
	return &LedgerService{db: db, log: log}
}

// Attach converts PO earmarks into physical reservations for a freshly
// received lot, oldest earmark first, until the stock level's free
// quantity is exhausted.
func (s *LedgerService) Attach(lot *StockLevelLot) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := s.AttachTx(tx, lot); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// AttachTx is Attach running on the caller's transaction.
func (s *LedgerService) AttachTx(tx *gorm.DB, lot *StockLevelLot) error {
	level, err := lockStockLevel(tx, lot.StockLevelID)
	if err != nil {
		return err
	}

	free, err := freeQuantity(tx, level)
	if err != nil {
		return err
	}
	if free <= Epsilon {
		return nil
	}

	if lot.OrderID == nil {
		// Lot did not arrive against a supplier order; nothing to convert.
		return nil
	}

	// Locate the supplier PO line for this component on the lot's order.
	var poLine order.OrderItem
	err = tx.Where("order_id = ? AND component_id = ?", *lot.OrderID, level.ComponentID).
		First(&poLine).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to locate PO line for lot %d: %w", lot.ID, err)
	}

	var earmarks []PoReservation
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_item_id = ?", poLine.ID).
		Order("created_at ASC, id ASC").
		Find(&earmarks).Error
	if err != nil {
		return fmt.Errorf("failed to load PO earmarks for line %d: %w", poLine.ID, err)
	}

	for i := range earmarks {
		if free <= Epsilon {
			break
		}
		earmark := &earmarks[i]

		take := earmark.Quantity
		if take > free {
			take = free
		}
		if take <= Epsilon {
			continue
		}

		reservation := &StockReservation{
			StockLevelID: level.ID,
			OrderID:      earmark.OrderCustomerID,
			Quantity:     take,
		}
		if err := tx.Create(reservation).Error; err != nil {
			return fmt.Errorf("failed to create reservation on attach: %w", err)
		}

		note := fmt.Sprintf("lot %s attached to order %d", lot.InternalLotCode, earmark.OrderCustomerID)
		if err := recordMovement(tx, level.ID, MovementTypeReserve, take, note); err != nil {
			return err
		}

		if err := shrinkPoReservation(tx, earmark, take); err != nil {
			return err
		}
		free -= take

		s.log.WithFields(logrus.Fields{
			"stock_level_id": level.ID,
			"order_id":       earmark.OrderCustomerID,
			"lot":            lot.InternalLotCode,
			"quantity":       take,
		}).Info("PO earmark converted to stock reservation")
	}

	return nil
}

// Release frees deltaAbs from the lot's stock level reservations after a
// lot quantity was reduced, most recent reservation first: the newest,
// least-committed promise is undone before older ones. Raises
// ErrInsufficientReserved when the recorded reservations cannot cover the
// requested release.
func (s *LedgerService) Release(lot *StockLevelLot, deltaAbs float64) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := s.ReleaseTx(tx, lot, deltaAbs); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ReleaseTx is Release running on the caller's transaction.
func (s *LedgerService) ReleaseTx(tx *gorm.DB, lot *StockLevelLot, deltaAbs float64) error {
	if deltaAbs <= Epsilon {
		return nil
	}

	level, err := lockStockLevel(tx, lot.StockLevelID)
	if err != nil {
		return err
	}

	var reservations []StockReservation
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stock_level_id = ?", level.ID).
		Order("created_at DESC, id DESC").
		Find(&reservations).Error
	if err != nil {
		return fmt.Errorf("failed to load reservations for level %d: %w", level.ID, err)
	}

	remaining := deltaAbs
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

		note := fmt.Sprintf("lot %s correction, order %d", lot.InternalLotCode, res.OrderID)
		if err := recordMovement(tx, level.ID, MovementTypeUnreserve, take, note); err != nil {
			return err
		}
		remaining -= take
	}

	if remaining > Epsilon {
		s.log.WithFields(logrus.Fields{
			"stock_level_id": level.ID,
			"requested":      deltaAbs,
			"unreleased":     remaining,
		}).Error("Release exceeds recorded reservations")
		return fmt.Errorf("%w: %.4f requested, %.4f not covered on stock level %d",
			ErrInsufficientReserved, deltaAbs, remaining, level.ID)
	}

	return nil
}

// ReserveFromStockTx covers up to qty of a customer order's need from free
// on-hand stock, locking each touched level. Returns the quantity actually
// reserved, which may be less than requested.
func (s *LedgerService) ReserveFromStockTx(tx *gorm.DB, orderID, componentID uint, qty float64) (float64, error) {
	if qty <= Epsilon {
		return 0, nil
	}

	var levels []StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("component_id = ?", componentID).
		Order("quantity DESC, id ASC").
		Find(&levels).Error
	if err != nil {
		return 0, fmt.Errorf("failed to lock stock levels for component %d: %w", componentID, err)
	}

	remaining := qty
	reserved := 0.0
	for i := range levels {
		if remaining <= Epsilon {
			break
		}
		level := &levels[i]

		free, err := freeQuantity(tx, level)
		if err != nil {
			return reserved, err
		}
		if free <= Epsilon {
			continue
		}

		take := free
		if take > remaining {
			take = remaining
		}

		reservation := &StockReservation{
			StockLevelID: level.ID,
			OrderID:      orderID,
			Quantity:     take,
		}
		if err := tx.Create(reservation).Error; err != nil {
			return reserved, fmt.Errorf("failed to reserve stock for order %d: %w", orderID, err)
		}

		note := fmt.Sprintf("reserved from stock for order %d", orderID)
		if err := recordMovement(tx, level.ID, MovementTypeReserve, take, note); err != nil {
			return reserved, err
		}

		remaining -= take
		reserved += take
	}

	return reserved, nil
}

// ReleaseForOrderTx frees up to qty of one customer order's physical
// reservations on a component, newest first. Returns the quantity actually
// released; the caller shrinks PO earmarks for any remainder.
func (s *LedgerService) ReleaseForOrderTx(tx *gorm.DB, orderID, componentID uint, qty float64) (float64, error) {
	if qty <= Epsilon {
		return 0, nil
	}

	var reservations []StockReservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("stock_reservations.*").
		Joins("JOIN stock_levels ON stock_levels.id = stock_reservations.stock_level_id").
		Where("stock_reservations.order_id = ? AND stock_levels.component_id = ?", orderID, componentID).
		Order("stock_reservations.created_at DESC, stock_reservations.id DESC").
		Find(&reservations).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load order %d reservations for component %d: %w", orderID, componentID, err)
	}

	remaining := qty
	released := 0.0
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
			return released, err
		}

		note := fmt.Sprintf("released for order %d", orderID)
		if err := recordMovement(tx, res.StockLevelID, MovementTypeUnreserve, take, note); err != nil {
			return released, err
		}

		remaining -= take
		released += take
	}

	return released, nil
}

// ShrinkPoEarmarksTx removes up to qty of a customer order's PO earmarks
// on a component, newest first, shrinking the underlying PO line and its
// order total with them. Returns the quantity actually shrunk.
func (s *LedgerService) ShrinkPoEarmarksTx(tx *gorm.DB, orderID, componentID uint, qty float64) (float64, error) {
	if qty <= Epsilon {
		return 0, nil
	}

	var earmarks []PoReservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("po_reservations.*").
		Joins("JOIN order_items ON order_items.id = po_reservations.order_item_id").
		Where("po_reservations.order_customer_id = ? AND order_items.component_id = ?", orderID, componentID).
		Order("po_reservations.created_at DESC, po_reservations.id DESC").
		Find(&earmarks).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load PO earmarks of order %d for component %d: %w", orderID, componentID, err)
	}

	remaining := qty
	shrunk := 0.0
	for i := range earmarks {
		if remaining <= Epsilon {
			break
		}
		earmark := &earmarks[i]

		take := earmark.Quantity
		if take > remaining {
			take = remaining
		}

		if err := shrinkPoReservation(tx, earmark, take); err != nil {
			return shrunk, err
		}

		// The freed quantity is no longer needed: shrink the generated
		// PO line and its order total along with the earmark.
		var poLine order.OrderItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", earmark.OrderItemID).First(&poLine).Error; err == nil {
			newQty := poLine.Quantity - take
			if newQty < 0 {
				newQty = 0
			}
			if err := tx.Model(&order.OrderItem{}).Where("id = ?", poLine.ID).
				Update("quantity", newQty).Error; err != nil {
				return shrunk, fmt.Errorf("failed to shrink PO line %d: %w", poLine.ID, err)
			}
			if err := tx.Model(&order.Order{}).Where("id = ?", poLine.OrderID).
				UpdateColumn("total", gorm.Expr("total - ?", take*poLine.UnitPrice)).Error; err != nil {
				return shrunk, fmt.Errorf("failed to adjust PO total for order %d: %w", poLine.OrderID, err)
			}
		}

		remaining -= take
		shrunk += take
	}

	return shrunk, nil
}

// EarmarkIncomingTx covers up to qty of a customer order's need from free
// capacity on already-open supplier lines arriving no later than byDate,
// earliest delivery first. Returns the quantity earmarked.
func (s *LedgerService) EarmarkIncomingTx(tx *gorm.DB, orderID, componentID uint, qty float64, byDate time.Time) (float64, error) {
	if qty <= Epsilon {
		return 0, nil
	}

	today := time.Now().Truncate(24 * time.Hour)

	var poLines []order.OrderItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("order_items.*").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.kind = ? AND orders.status = ? AND orders.deleted_at IS NULL", order.KindSupplier, order.StatusOpen).
		Where("order_items.component_id = ?", componentID).
		Where("orders.delivery_date >= ? AND orders.delivery_date <= ?", today, byDate).
		Order("orders.delivery_date ASC, order_items.id ASC").
		Find(&poLines).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load open PO lines for component %d: %w", componentID, err)
	}

	remaining := qty
	earmarked := 0.0
	for i := range poLines {
		if remaining <= Epsilon {
			break
		}
		line := &poLines[i]

		var committed float64
		err := tx.Model(&PoReservation{}).
			Where("order_item_id = ?", line.ID).
			Select("COALESCE(SUM(quantity), 0)").Scan(&committed).Error
		if err != nil {
			return earmarked, fmt.Errorf("failed to sum earmarks on PO line %d: %w", line.ID, err)
		}

		free := line.Quantity - committed
		if free <= Epsilon {
			continue
		}

		take := free
		if take > remaining {
			take = remaining
		}

		if err := upsertPoReservation(tx, line.ID, orderID, take); err != nil {
			return earmarked, err
		}

		remaining -= take
		earmarked += take
	}

	return earmarked, nil
}

// EarmarkPoLineTx records (or extends) the earmark binding a PO line's
// quantity to a customer order. Used by the procurement generator when it
// creates or extends lines for a shortage.
func (s *LedgerService) EarmarkPoLineTx(tx *gorm.DB, orderItemID, orderCustomerID uint, qty float64) error {
	if qty <= Epsilon {
		return nil
	}
	return upsertPoReservation(tx, orderItemID, orderCustomerID, qty)
}

// internal helpers

func lockStockLevel(tx *gorm.DB, levelID uint) (*StockLevel, error) {
	var level StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", levelID).First(&level).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock level %d: %w", levelID, err)
	}
	return &level, nil
}

// freeQuantity computes level quantity minus the sum of its reservations.
func freeQuantity(tx *gorm.DB, level *StockLevel) (float64, error) {
	var reserved float64
	err := tx.Model(&StockReservation{}).
		Where("stock_level_id = ?", level.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&reserved).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum reservations for level %d: %w", level.ID, err)
	}
	return level.Quantity - reserved, nil
}

func recordMovement(tx *gorm.DB, levelID uint, movementType MovementType, qty float64, note string) error {
	movement := &StockMovement{
		StockLevelID: levelID,
		Type:         movementType,
		Quantity:     qty,
		Note:         note,
	}
	if err := tx.Create(movement).Error; err != nil {
		return fmt.Errorf("failed to record %s movement: %w", movementType, err)
	}
	return nil
}

// shrinkReservation decrements a reservation, deleting it when it reaches
// zero within tolerance.
func shrinkReservation(tx *gorm.DB, res *StockReservation, take float64) error {
	newQty := res.Quantity - take
	if isZero(newQty) || newQty < 0 {
		if err := tx.Delete(&StockReservation{}, res.ID).Error; err != nil {
			return fmt.Errorf("failed to delete reservation %d: %w", res.ID, err)
		}
		return nil
	}
	if err := tx.Model(&StockReservation{}).Where("id = ?", res.ID).
		Update("quantity", newQty).Error; err != nil {
		return fmt.Errorf("failed to shrink reservation %d: %w", res.ID, err)
	}
	return nil
}

func shrinkPoReservation(tx *gorm.DB, earmark *PoReservation, take float64) error {
	newQty := earmark.Quantity - take
	if isZero(newQty) || newQty < 0 {
		if err := tx.Delete(&PoReservation{}, earmark.ID).Error; err != nil {
			return fmt.Errorf("failed to delete PO earmark %d: %w", earmark.ID, err)
		}
		return nil
	}
	if err := tx.Model(&PoReservation{}).Where("id = ?", earmark.ID).
		Update("quantity", newQty).Error; err != nil {
		return fmt.Errorf("failed to shrink PO earmark %d: %w", earmark.ID, err)
	}
	return nil
}

func upsertPoReservation(tx *gorm.DB, orderItemID, orderCustomerID uint, qty float64) error {
	var existing PoReservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_item_id = ? AND order_customer_id = ?", orderItemID, orderCustomerID).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		earmark := &PoReservation{
			OrderItemID:     orderItemID,
			OrderCustomerID: orderCustomerID,
			Quantity:        qty,
		}
		if err := tx.Create(earmark).Error; err != nil {
			return fmt.Errorf("failed to create PO earmark: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load PO earmark: %w", err)
	}
	if err := tx.Model(&PoReservation{}).Where("id = ?", existing.ID).
		Update("quantity", existing.Quantity+qty).Error; err != nil {
		return fmt.Errorf("failed to extend PO earmark %d: %w", existing.ID, err)
	}
	return nil
}
