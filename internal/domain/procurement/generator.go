// internal/domain/procurement/generator.go
package procurement

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/catalog"
	"github.com/your-org/manufacturing-erp/internal/domain/inventory"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoSupplier is raised when a shortage component has no procurement
// catalog entry to buy it from.
var ErrNoSupplier = errors.New("no_supplier")

// EnrichedShortage is a shortage row with its chosen supplier and price.
type EnrichedShortage struct {
	inventory.ShortageRow
	SupplierID   uint    `json:"supplier_id"`
	LeadTimeDays int     `json:"lead_time_days"`
	UnitPrice    float64 `json:"unit_price"`
}

// GeneratorService turns shortage lists into supplier purchase orders,
// grouped and deduplicated by supplier and lead time. Repeated calls with
// the same shortage extend existing lines instead of duplicating them.
type GeneratorService struct {
	db     *gorm.DB
	ledger *inventory.LedgerService
	log    *logrus.Logger
}

// NewGeneratorService creates a new procurement generator
func NewGeneratorService(db *gorm.DB, ledger *inventory.LedgerService, log *logrus.Logger) *GeneratorService {
	return &GeneratorService{db: db, ledger: ledger, log: log}
}

// ChooseSuppliers enriches each shortage row with the supplier that
// delivers fastest, breaking ties on lowest last cost.
func (s *GeneratorService) ChooseSuppliers(rows []inventory.ShortageRow) ([]EnrichedShortage, error) {
	return s.ChooseSuppliersTx(s.db, rows)
}

// ChooseSuppliersTx is ChooseSuppliers on the caller's transaction.
func (s *GeneratorService) ChooseSuppliersTx(tx *gorm.DB, rows []inventory.ShortageRow) ([]EnrichedShortage, error) {
	enriched := make([]EnrichedShortage, 0, len(rows))

	for _, row := range rows {
		var cs catalog.ComponentSupplier
		err := tx.Where("component_id = ?", row.ComponentID).
			Order("lead_time_days ASC, last_cost ASC").
			First(&cs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: component %d", ErrNoSupplier, row.ComponentID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to choose supplier for component %d: %w", row.ComponentID, err)
		}

		enriched = append(enriched, EnrichedShortage{
			ShortageRow:  row,
			SupplierID:   cs.SupplierID,
			LeadTimeDays: cs.LeadTimeDays,
			UnitPrice:    cs.LastCost,
		})
	}

	return enriched, nil
}

// GenerateFromShortage creates or extends supplier POs covering the given
// shortage rows on behalf of originOrderID. One transaction; returns the
// numbers of every touched PO.
func (s *GeneratorService) GenerateFromShortage(rows []EnrichedShortage, originOrderID uint) ([]string, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	numbers, err := s.GenerateFromShortageTx(tx, rows, originOrderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit PO generation: %w", err)
	}
	return numbers, nil
}

// GenerateFromShortageTx is GenerateFromShortage on the caller's
// transaction.
func (s *GeneratorService) GenerateFromShortageTx(tx *gorm.DB, rows []EnrichedShortage, originOrderID uint) ([]string, error) {
	type groupKey struct {
		SupplierID   uint
		LeadTimeDays int
	}

	groups := make(map[groupKey][]EnrichedShortage)
	for _, row := range rows {
		if row.Shortage <= inventory.Epsilon {
			continue
		}
		key := groupKey{SupplierID: row.SupplierID, LeadTimeDays: row.LeadTimeDays}
		groups[key] = append(groups[key], row)
	}

	// Deterministic group order keeps lock acquisition stable.
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SupplierID != keys[j].SupplierID {
			return keys[i].SupplierID < keys[j].SupplierID
		}
		return keys[i].LeadTimeDays < keys[j].LeadTimeDays
	})

	var numbers []string
	for _, key := range keys {
		deliveryDate := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, key.LeadTimeDays)

		po, err := s.findOrCreatePO(tx, key.SupplierID, deliveryDate)
		if err != nil {
			return nil, err
		}

		for _, row := range groups[key] {
			if err := s.extendPOLine(tx, po, row, originOrderID); err != nil {
				return nil, err
			}
		}

		numbers = append(numbers, po.OrderNumber)
	}

	sort.Strings(numbers)
	return numbers, nil
}

// findOrCreatePO locates the open supplier order with the exact supplier
// and delivery date, creating it with a freshly reserved number when none
// exists. This (supplier, delivery date) key is what makes repeated
// generation idempotent.
func (s *GeneratorService) findOrCreatePO(tx *gorm.DB, supplierID uint, deliveryDate time.Time) (*order.Order, error) {
	var po order.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ? AND supplier_id = ? AND delivery_date = ? AND status = ?",
			order.KindSupplier, supplierID, deliveryDate, order.StatusOpen).
		First(&po).Error
	if err == nil {
		return &po, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up PO for supplier %d: %w", supplierID, err)
	}

	number, err := order.ReserveOrderNumber(tx, order.KindSupplier)
	if err != nil {
		return nil, err
	}

	sid := supplierID
	po = order.Order{
		OrderNumber:  number,
		Kind:         order.KindSupplier,
		SupplierID:   &sid,
		DeliveryDate: deliveryDate,
		Status:       order.StatusOpen,
	}
	if err := tx.Create(&po).Error; err != nil {
		return nil, fmt.Errorf("failed to create PO for supplier %d: %w", supplierID, err)
	}

	s.log.WithFields(logrus.Fields{
		"po_number":     number,
		"supplier_id":   supplierID,
		"delivery_date": deliveryDate.Format("2006-01-02"),
	}).Info("Supplier PO created")

	return &po, nil
}

// extendPOLine finds or creates the PO line for the shortage component,
// seeds price and provenance on first creation, backfills a zero price,
// and extends the quantity. The order total moves by the delta only, so
// concurrent groups cannot clobber each other.
func (s *GeneratorService) extendPOLine(tx *gorm.DB, po *order.Order, row EnrichedShortage, originOrderID uint) error {
	componentID := row.ComponentID
	origin := originOrderID

	var line order.OrderItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND component_id = ?", po.ID, componentID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		line = order.OrderItem{
			OrderID:                    po.ID,
			ComponentID:                &componentID,
			Quantity:                   0,
			UnitPrice:                  row.UnitPrice,
			GeneratedByOrderCustomerID: &origin,
		}
		if err := tx.Create(&line).Error; err != nil {
			return fmt.Errorf("failed to create PO line for component %d: %w", componentID, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up PO line for component %d: %w", componentID, err)
	} else if line.UnitPrice == 0 && row.UnitPrice > 0 {
		line.UnitPrice = row.UnitPrice
		if err := tx.Model(&order.OrderItem{}).Where("id = ?", line.ID).
			Update("unit_price", row.UnitPrice).Error; err != nil {
			return fmt.Errorf("failed to backfill price on PO line %d: %w", line.ID, err)
		}
	}

	if err := tx.Model(&order.OrderItem{}).Where("id = ?", line.ID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", row.Shortage)).Error; err != nil {
		return fmt.Errorf("failed to extend PO line %d: %w", line.ID, err)
	}

	if err := tx.Model(&order.Order{}).Where("id = ?", po.ID).
		UpdateColumn("total", gorm.Expr("total + ?", row.Shortage*line.UnitPrice)).Error; err != nil {
		return fmt.Errorf("failed to extend PO total for order %d: %w", po.ID, err)
	}

	// Bind the bought quantity to the customer order that needed it, so
	// goods receipt can convert it into a physical reservation.
	if err := s.ledger.EarmarkPoLineTx(tx, line.ID, originOrderID, row.Shortage); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"po_number":    po.OrderNumber,
		"component_id": componentID,
		"quantity":     row.Shortage,
		"origin_order": originOrderID,
	}).Info("PO line extended for shortage")

	return nil
}
