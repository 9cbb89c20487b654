// internal/domain/procurement/shortfall.go
package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
)

// ShortfallService detects under-delivered supplier orders and spins a
// follow-up recovery order for the gap.
type ShortfallService struct {
	db                *gorm.DB
	reorderBufferDays int
	log               *logrus.Logger
}

// NewShortfallService creates a new shortfall capturer. reorderBufferDays
// is the delivery slack given to the recovery order (default 7).
func NewShortfallService(db *gorm.DB, reorderBufferDays int, log *logrus.Logger) *ShortfallService {
	if reorderBufferDays <= 0 {
		reorderBufferDays = 7
	}
	return &ShortfallService{db: db, reorderBufferDays: reorderBufferDays, log: log}
}

// Capture compares ordered against received quantity per line of a
// finalized supplier order and creates a child recovery order for any
// gaps. Returns nil when the order was delivered in full.
func (s *ShortfallService) Capture(supplierOrderID uint) (*order.Order, error) {
	var po order.Order
	if err := s.db.Preload("Items").Where("id = ?", supplierOrderID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("supplier order %d not found", supplierOrderID)
		}
		return nil, fmt.Errorf("failed to load supplier order %d: %w", supplierOrderID, err)
	}
	if !po.IsSupplier() {
		return nil, fmt.Errorf("order %s is not a supplier order", po.OrderNumber)
	}

	received, err := s.receivedByComponent(po.ID)
	if err != nil {
		return nil, err
	}

	type gapLine struct {
		item order.OrderItem
		gap  float64
	}
	var gaps []gapLine
	for _, item := range po.Items {
		if item.ComponentID == nil {
			continue
		}
		gap := item.Quantity - received[*item.ComponentID]
		if gap > inventory.Epsilon {
			gaps = append(gaps, gapLine{item: item, gap: gap})
		}
	}

	if len(gaps) == 0 {
		s.log.WithField("po_number", po.OrderNumber).Info("Supplier order delivered in full, no shortfall")
		return nil, nil
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	number, err := order.ReserveOrderNumber(tx, order.KindSupplier)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	parentID := po.ID
	child := order.Order{
		OrderNumber:   number,
		Kind:          order.KindSupplier,
		SupplierID:    po.SupplierID,
		ParentOrderID: &parentID,
		DeliveryDate:  time.Now().Truncate(24 * time.Hour).AddDate(0, 0, s.reorderBufferDays),
		Status:        order.StatusOpen,
	}
	if err := tx.Create(&child).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create recovery order: %w", err)
	}

	total := 0.0
	for _, g := range gaps {
		followUp := order.OrderItem{
			OrderID:     child.ID,
			ComponentID: g.item.ComponentID,
			Quantity:    g.gap,
			UnitPrice:   g.item.UnitPrice,
		}
		if err := tx.Create(&followUp).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create recovery line for component %d: %w", *g.item.ComponentID, err)
		}

		link := order.OrderItemShortfall{
			OrderItemID:    g.item.ID,
			Quantity:       g.gap,
			FollowUpItemID: followUp.ID,
		}
		if err := tx.Create(&link).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to record shortfall link: %w", err)
		}

		total += g.gap * g.item.UnitPrice
	}

	child.Total = total
	if err := tx.Model(&order.Order{}).Where("id = ?", child.ID).
		Update("total", total).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to set recovery order total: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit shortfall capture: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"po_number":       po.OrderNumber,
		"recovery_number": child.OrderNumber,
		"gapped_lines":    len(gaps),
		"total":           total,
	}).Info("Shortfall captured into recovery order")

	return &child, nil
}

// receivedByComponent sums delivered lot quantity per component for the
// supplier order. It reads the received figure, not the consumable one:
// production draining a lot must not reopen the gap.
func (s *ShortfallService) receivedByComponent(orderID uint) (map[uint]float64, error) {
	type row struct {
		ComponentID uint
		Received    float64
	}
	var rows []row
	err := s.db.Table("stock_level_lots").
		Joins("JOIN stock_levels ON stock_levels.id = stock_level_lots.stock_level_id").
		Where("stock_level_lots.order_id = ?", orderID).
		Select("stock_levels.component_id AS component_id, COALESCE(SUM(stock_level_lots.received_quantity), 0) AS received").
		Group("stock_levels.component_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum received lots for order %d: %w", orderID, err)
	}

	received := make(map[uint]float64, len(rows))
	for _, r := range rows {
		received[r.ComponentID] = r.Received
	}
	return received, nil
}
