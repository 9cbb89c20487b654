// internal/domain/planning/reconciler.go
package planning

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"github.com/your-org/manufacturing-erp/internal/domain/procurement"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderLine is one incoming customer-order line for reconciliation.
type OrderLine struct {
	ProductID uint    `json:"product_id" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	UnitPrice float64 `json:"unit_price"`
}

// UpdateResult reports what an order reconciliation touched.
type UpdateResult struct {
	Message   string   `json:"message"`
	PONumbers []string `json:"po_numbers"`
}

// Reconciler keeps reservation and procurement state consistent when
// customer orders are created, edited or deleted. It re-derives component
// deltas, unwinds or extends reservations and POs, and finishes with a
// full settle pass so the final state does not depend on delta-only
// bookkeeping.
type Reconciler struct {
	db           *gorm.DB
	bom          *catalog.BOMService
	availability *inventory.AvailabilityService
	ledger       *inventory.LedgerService
	generator    *procurement.GeneratorService
	log          *logrus.Logger
}

// NewReconciler creates a new order change reconciler
func NewReconciler(db *gorm.DB, bom *catalog.BOMService, availability *inventory.AvailabilityService,
	ledger *inventory.LedgerService, generator *procurement.GeneratorService, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		db:           db,
		bom:          bom,
		availability: availability,
		ledger:       ledger,
		generator:    generator,
		log:          log,
	}
}

// PlaceOrderRequest is a new customer order with its initial line set.
type PlaceOrderRequest struct {
	CustomerID   uint        `json:"customer_id" binding:"required"`
	DeliveryDate time.Time   `json:"delivery_date" binding:"required"`
	Lines        []OrderLine `json:"lines" binding:"required,min=1,dive"`
}

// PlaceOrder creates a customer order and derives its reservation and
// procurement state through the same settle pass updates use, so there is
// exactly one code path deciding coverage.
func (r *Reconciler) PlaceOrder(req *PlaceOrderRequest) (*order.Order, []string, error) {
	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	number, err := order.ReserveOrderNumber(tx, order.KindCustomer)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	customerID := req.CustomerID
	o := order.Order{
		OrderNumber:  number,
		Kind:         order.KindCustomer,
		CustomerID:   &customerID,
		DeliveryDate: req.DeliveryDate,
		Status:       order.StatusOpen,
	}
	if err := tx.Create(&o).Error; err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("failed to create customer order: %w", err)
	}

	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			tx.Rollback()
			return nil, nil, fmt.Errorf("non-positive quantity for product %d", line.ProductID)
		}
		pid := line.ProductID
		item := order.OrderItem{
			OrderID:   o.ID,
			ProductID: &pid,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("failed to create line for product %d: %w", line.ProductID, err)
		}
	}

	touched := make(map[string]bool)
	if err := r.settleTx(tx, o.ID, o.DeliveryDate, touched); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := r.recomputeTotal(tx, o.ID); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, fmt.Errorf("failed to commit order placement: %w", err)
	}

	numbers := make([]string, 0, len(touched))
	for number := range touched {
		numbers = append(numbers, number)
	}

	r.log.WithFields(logrus.Fields{
		"order_number": o.OrderNumber,
		"lines":        len(req.Lines),
		"po_numbers":   numbers,
	}).Info("Customer order placed")

	return &o, numbers, nil
}

// lineDelta is the per-product difference between current and incoming
// order lines.
type lineDelta struct {
	ProductID uint
	Quantity  float64
}

// diffLines computes increase/decrease deltas by product id. Removed or
// zeroed lines count as full decrease, new lines as full increase.
func diffLines(current []order.OrderItem, incoming []OrderLine) (increase, decrease []lineDelta) {
	currentByProduct := make(map[uint]float64)
	for _, item := range current {
		if item.ProductID != nil {
			currentByProduct[*item.ProductID] += item.Quantity
		}
	}

	incomingByProduct := make(map[uint]float64)
	for _, line := range incoming {
		if line.Quantity > 0 {
			incomingByProduct[line.ProductID] += line.Quantity
		}
	}

	for productID, newQty := range incomingByProduct {
		oldQty := currentByProduct[productID]
		switch {
		case newQty > oldQty+inventory.Epsilon:
			increase = append(increase, lineDelta{ProductID: productID, Quantity: newQty - oldQty})
		case newQty < oldQty-inventory.Epsilon:
			decrease = append(decrease, lineDelta{ProductID: productID, Quantity: oldQty - newQty})
		}
	}
	for productID, oldQty := range currentByProduct {
		if _, still := incomingByProduct[productID]; !still && oldQty > inventory.Epsilon {
			decrease = append(decrease, lineDelta{ProductID: productID, Quantity: oldQty})
		}
	}

	return increase, decrease
}

// HandleOrderUpdate reconciles a customer order against its new line set
// and optional new delivery date. No transaction is opened when nothing
// changed.
func (r *Reconciler) HandleOrderUpdate(orderID uint, newLines []OrderLine, newDate *time.Time) (*UpdateResult, error) {
	var current order.Order
	if err := r.db.Preload("Items").Where("id = ?", orderID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if !current.IsCustomer() {
		return nil, fmt.Errorf("order %s is not a customer order", current.OrderNumber)
	}

	increase, decrease := diffLines(current.Items, newLines)
	dateChanged := newDate != nil && !newDate.Equal(current.DeliveryDate)

	if len(increase) == 0 && len(decrease) == 0 && !dateChanged {
		return &UpdateResult{Message: "nothing to reconcile"}, nil
	}

	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result, err := r.reconcileUpdate(tx, &current, newLines, newDate, increase, decrease)
	if err != nil {
		tx.Rollback()
		r.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		}).Error("Order reconciliation rolled back")
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit order %d reconciliation: %w", orderID, err)
	}
	return result, nil
}

func (r *Reconciler) reconcileUpdate(tx *gorm.DB, current *order.Order, newLines []OrderLine,
	newDate *time.Time, increase, decrease []lineDelta) (*UpdateResult, error) {

	deliveryDate := current.DeliveryDate
	if newDate != nil && !newDate.Equal(current.DeliveryDate) {
		deliveryDate = *newDate
		if err := tx.Model(&order.Order{}).Where("id = ?", current.ID).
			Update("delivery_date", deliveryDate).Error; err != nil {
			return nil, fmt.Errorf("failed to move delivery date: %w", err)
		}
	}

	if err := r.applyLineChanges(tx, current, newLines); err != nil {
		return nil, err
	}

	touched := make(map[string]bool)

	// Decreases free committed quantity: release physical reservations
	// first, shrink PO earmarks for whatever was not yet physical.
	if len(decrease) > 0 {
		freed, err := r.releaseDecrease(tx, current.ID, decrease)
		if err != nil {
			return nil, err
		}
		r.log.WithFields(logrus.Fields{
			"order_id": current.ID,
			"freed":    freed,
		}).Info("Decrease deltas released")
	}

	// Increases raise fresh demand: anything the freed capacity does not
	// already cover goes through availability and procurement.
	if len(increase) > 0 {
		if err := r.coverIncrease(tx, current.ID, deliveryDate, increase, touched); err != nil {
			return nil, err
		}
	}

	// Full settle pass: recompute the whole order's need and make the
	// final reservation state correct regardless of the delta steps.
	if err := r.settleTx(tx, current.ID, deliveryDate, touched); err != nil {
		return nil, err
	}

	if err := r.recomputeTotal(tx, current.ID); err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(touched))
	for number := range touched {
		numbers = append(numbers, number)
	}

	return &UpdateResult{
		Message:   fmt.Sprintf("order %s reconciled", current.OrderNumber),
		PONumbers: numbers,
	}, nil
}

// applyLineChanges persists the new line set: removed/zeroed rows are
// deleted, changed ones upserted.
func (r *Reconciler) applyLineChanges(tx *gorm.DB, current *order.Order, newLines []OrderLine) error {
	incoming := make(map[uint]OrderLine, len(newLines))
	for _, line := range newLines {
		if line.Quantity > 0 {
			incoming[line.ProductID] = line
		}
	}

	for _, item := range current.Items {
		if item.ProductID == nil {
			continue
		}
		line, keep := incoming[*item.ProductID]
		if !keep {
			if err := tx.Delete(&order.OrderItem{}, item.ID).Error; err != nil {
				return fmt.Errorf("failed to delete order line %d: %w", item.ID, err)
			}
			continue
		}
		if line.Quantity != item.Quantity || (line.UnitPrice > 0 && line.UnitPrice != item.UnitPrice) {
			updates := map[string]interface{}{"quantity": line.Quantity}
			if line.UnitPrice > 0 {
				updates["unit_price"] = line.UnitPrice
			}
			if err := tx.Model(&order.OrderItem{}).Where("id = ?", item.ID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update order line %d: %w", item.ID, err)
			}
		}
		delete(incoming, *item.ProductID)
	}

	for productID, line := range incoming {
		pid := productID
		item := order.OrderItem{
			OrderID:   current.ID,
			ProductID: &pid,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("failed to add order line for product %d: %w", productID, err)
		}
	}

	return nil
}

// releaseDecrease explodes the decrease delta and releases that much
// commitment per component: physical reservations first (newest-first),
// then PO earmarks for the remainder.
func (r *Reconciler) releaseDecrease(tx *gorm.DB, orderID uint, decrease []lineDelta) (float64, error) {
	lines := make([]catalog.ProductQuantity, 0, len(decrease))
	for _, d := range decrease {
		lines = append(lines, catalog.ProductQuantity{ProductID: d.ProductID, Quantity: d.Quantity})
	}

	needed, err := r.bom.ExplodeTx(tx, lines)
	if err != nil {
		return 0, err
	}

	totalFreed := 0.0
	for componentID, qty := range needed {
		released, err := r.ledger.ReleaseForOrderTx(tx, orderID, componentID, qty)
		if err != nil {
			return totalFreed, err
		}
		totalFreed += released

		remainder := qty - released
		if remainder > inventory.Epsilon {
			shrunk, err := r.ledger.ShrinkPoEarmarksTx(tx, orderID, componentID, remainder)
			if err != nil {
				return totalFreed, err
			}
			totalFreed += shrunk
		}
	}

	return totalFreed, nil
}

// coverIncrease explodes the increase delta and procures whatever the
// order's existing and freed coverage does not satisfy.
func (r *Reconciler) coverIncrease(tx *gorm.DB, orderID uint, deliveryDate time.Time,
	increase []lineDelta, touched map[string]bool) error {

	lines := make([]catalog.ProductQuantity, 0, len(increase))
	for _, d := range increase {
		lines = append(lines, catalog.ProductQuantity{ProductID: d.ProductID, Quantity: d.Quantity})
	}

	needed, err := r.bom.ExplodeTx(tx, lines)
	if err != nil {
		return err
	}

	excludeID := orderID
	check, err := r.availability.CheckTx(tx, needed, deliveryDate, &excludeID)
	if err != nil {
		return err
	}
	if check.OK {
		return nil
	}

	enriched, err := r.generator.ChooseSuppliersTx(tx, check.Shortage)
	if err != nil {
		return err
	}
	numbers, err := r.generator.GenerateFromShortageTx(tx, enriched, orderID)
	if err != nil {
		return err
	}
	for _, n := range numbers {
		touched[n] = true
	}
	return nil
}

// Settle re-derives one customer order's full component need and repairs
// its reservation and procurement coverage. Used by the scheduled
// reconciliation run and as the final pass of every update.
func (r *Reconciler) Settle(orderID uint) ([]string, error) {
	var o order.Order
	if err := r.db.Where("id = ?", orderID).First(&o).Error; err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if !o.IsCustomer() {
		return nil, fmt.Errorf("order %s is not a customer order", o.OrderNumber)
	}

	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	touched := make(map[string]bool)
	if err := r.settleTx(tx, orderID, o.DeliveryDate, touched); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit settle of order %d: %w", orderID, err)
	}

	numbers := make([]string, 0, len(touched))
	for number := range touched {
		numbers = append(numbers, number)
	}
	return numbers, nil
}

// settleTx runs the full settle pass inside the caller's transaction:
// total BOM need, minus what the order already holds in physical and PO
// coverage, reserved from stock where possible, earmarked against open
// POs where arriving in time, and bought for the rest.
func (r *Reconciler) settleTx(tx *gorm.DB, orderID uint, deliveryDate time.Time, touched map[string]bool) error {
	var items []order.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load order %d lines: %w", orderID, err)
	}

	lines := make([]catalog.ProductQuantity, 0, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			lines = append(lines, catalog.ProductQuantity{ProductID: *item.ProductID, Quantity: item.Quantity})
		}
	}

	totalNeed, err := r.bom.ExplodeTx(tx, lines)
	if err != nil {
		return err
	}

	var shortage []inventory.ShortageRow
	for componentID, needed := range totalNeed {
		residual, err := r.residualNeed(tx, orderID, componentID, needed)
		if err != nil {
			return err
		}
		if residual <= inventory.Epsilon {
			continue
		}

		reserved, err := r.ledger.ReserveFromStockTx(tx, orderID, componentID, residual)
		if err != nil {
			return err
		}
		residual -= reserved
		if residual <= inventory.Epsilon {
			continue
		}

		earmarked, err := r.ledger.EarmarkIncomingTx(tx, orderID, componentID, residual, deliveryDate)
		if err != nil {
			return err
		}
		residual -= earmarked
		if residual <= inventory.Epsilon {
			continue
		}

		shortage = append(shortage, inventory.ShortageRow{
			ComponentID: componentID,
			Needed:      needed,
			Shortage:    residual,
		})
	}

	if len(shortage) == 0 {
		return nil
	}

	enriched, err := r.generator.ChooseSuppliersTx(tx, shortage)
	if err != nil {
		return err
	}
	numbers, err := r.generator.GenerateFromShortageTx(tx, enriched, orderID)
	if err != nil {
		return err
	}
	for _, n := range numbers {
		touched[n] = true
	}
	return nil
}

// residualNeed subtracts the order's own physical reservations and PO
// earmarks on the component from its total need.
func (r *Reconciler) residualNeed(tx *gorm.DB, orderID, componentID uint, needed float64) (float64, error) {
	var reserved float64
	err := tx.Table("stock_reservations").
		Joins("JOIN stock_levels ON stock_levels.id = stock_reservations.stock_level_id").
		Where("stock_reservations.order_id = ? AND stock_levels.component_id = ?", orderID, componentID).
		Select("COALESCE(SUM(stock_reservations.quantity), 0)").Scan(&reserved).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum reservations of order %d: %w", orderID, err)
	}

	var earmarked float64
	err = tx.Table("po_reservations").
		Joins("JOIN order_items ON order_items.id = po_reservations.order_item_id").
		Where("po_reservations.order_customer_id = ? AND order_items.component_id = ?", orderID, componentID).
		Select("COALESCE(SUM(po_reservations.quantity), 0)").Scan(&earmarked).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum PO earmarks of order %d: %w", orderID, err)
	}

	return needed - reserved - earmarked, nil
}

// recomputeTotal rebuilds the order total from the full current line set,
// independent of delta bookkeeping.
func (r *Reconciler) recomputeTotal(tx *gorm.DB, orderID uint) error {
	var total float64
	err := tx.Model(&order.OrderItem{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(quantity * unit_price), 0)").Scan(&total).Error
	if err != nil {
		return fmt.Errorf("failed to recompute total of order %d: %w", orderID, err)
	}
	if err := tx.Model(&order.Order{}).Where("id = ?", orderID).
		Update("total", total).Error; err != nil {
		return fmt.Errorf("failed to store total of order %d: %w", orderID, err)
	}
	return nil
}

// HandleOrderDelete hard-deletes a customer order, releasing everything
// it held. Supplier lines generated for it stay behind as ordinary
// replenishment, detached from the deleted order. Returns the numbers of
// those orphaned POs for caller notification.
func (r *Reconciler) HandleOrderDelete(orderID uint) ([]string, error) {
	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	numbers, err := r.deleteOrder(tx, orderID)
	if err != nil {
		tx.Rollback()
		r.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		}).Error("Order delete rolled back")
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit delete of order %d: %w", orderID, err)
	}
	return numbers, nil
}

func (r *Reconciler) deleteOrder(tx *gorm.DB, orderID uint) ([]string, error) {
	var o order.Order
	if err := tx.Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if !o.IsCustomer() {
		return nil, fmt.Errorf("order %s is not a customer order", o.OrderNumber)
	}

	// Capture the orphaned PO numbers before mutating anything.
	var orphaned []string
	err := tx.Table("orders").
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("order_items.generated_by_order_customer_id = ?", orderID).
		Distinct("orders.order_number").
		Order("orders.order_number").
		Pluck("orders.order_number", &orphaned).Error
	if err != nil {
		return nil, fmt.Errorf("failed to collect generated PO numbers: %w", err)
	}

	// Release every physical reservation the order owns.
	var reservations []inventory.StockReservation
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations of order %d: %w", orderID, err)
	}
	for _, res := range reservations {
		note := fmt.Sprintf("order %s deleted", o.OrderNumber)
		movement := &inventory.StockMovement{
			StockLevelID: res.StockLevelID,
			Type:         inventory.MovementTypeUnreserve,
			Quantity:     res.Quantity,
			Note:         note,
		}
		if err := tx.Create(movement).Error; err != nil {
			return nil, fmt.Errorf("failed to record unreserve movement: %w", err)
		}
	}
	if err := tx.Where("order_id = ?", orderID).Delete(&inventory.StockReservation{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete reservations of order %d: %w", orderID, err)
	}

	// Drop the not-yet-arrived earmarks.
	if err := tx.Where("order_customer_id = ?", orderID).Delete(&inventory.PoReservation{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete PO earmarks of order %d: %w", orderID, err)
	}

	// Detach the generated supplier lines; they remain as replenishment.
	if err := tx.Model(&order.OrderItem{}).
		Where("generated_by_order_customer_id = ?", orderID).
		Update("generated_by_order_customer_id", nil).Error; err != nil {
		return nil, fmt.Errorf("failed to detach generated PO lines: %w", err)
	}

	if err := tx.Where("order_id = ?", orderID).Delete(&order.OrderItem{}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete lines of order %d: %w", orderID, err)
	}
	if err := tx.Unscoped().Delete(&order.Order{}, orderID).Error; err != nil {
		return nil, fmt.Errorf("failed to delete order %d: %w", orderID, err)
	}

	r.log.WithFields(logrus.Fields{
		"order_id":     orderID,
		"order_number": o.OrderNumber,
		"orphaned_pos": orphaned,
	}).Info("Customer order deleted")

	return orphaned, nil
}
