// internal/domain/inventory/receipt.go
package inventory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/pkg/lotcode"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiveLotRequest represents one arriving supplier lot
type ReceiveLotRequest struct {
	OrderID         uint    `json:"order_id" binding:"required"`
	ComponentID     uint    `json:"component_id" binding:"required"`
	WarehouseID     uint    `json:"warehouse_id"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
	SupplierLotCode string  `json:"supplier_lot_code"`
	InternalLotCode string  `json:"internal_lot_code"`
}

// ReceiptService registers arriving supplier lots: it creates the lot,
// bumps the stock level, writes the audit movement and converts the
// waiting PO earmarks into physical reservations.
type ReceiptService struct {
	db     *gorm.DB
	ledger *LedgerService
	log    *logrus.Logger
}

// NewReceiptService creates a new goods receipt service
func NewReceiptService(db *gorm.DB, ledger *LedgerService, log *logrus.Logger) *ReceiptService {
	return &ReceiptService{db: db, ledger: ledger, log: log}
}

// ReceiveLot registers one arriving lot. The whole receipt is one
// transaction: duplicate lot codes roll everything back.
func (s *ReceiptService) ReceiveLot(req *ReceiveLotRequest) (*StockLevelLot, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	lot, err := s.receiveLot(tx, req)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit lot receipt: %w", err)
	}
	return lot, nil
}

func (s *ReceiptService) receiveLot(tx *gorm.DB, req *ReceiveLotRequest) (*StockLevelLot, error) {
	warehouseID := req.WarehouseID
	if warehouseID == 0 {
		warehouse, err := DefaultWarehouse(tx)
		if err != nil {
			return nil, err
		}
		warehouseID = warehouse.ID
	}

	level, err := s.findOrCreateLevel(tx, req.ComponentID, warehouseID)
	if err != nil {
		return nil, err
	}

	internalCode := req.InternalLotCode
	if internalCode == "" {
		internalCode, err = s.nextLotCode(tx)
		if err != nil {
			return nil, err
		}
	} else if !lotcode.Valid(internalCode) {
		return nil, fmt.Errorf("malformed internal lot code %q", internalCode)
	}

	// Same component+warehouse+internal code registered twice is rejected.
	var count int64
	err = tx.Model(&StockLevelLot{}).
		Where("stock_level_id = ? AND internal_lot_code = ?", level.ID, internalCode).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check lot uniqueness: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: lot %s already registered for component %d in warehouse %d",
			ErrDuplicateLot, internalCode, req.ComponentID, warehouseID)
	}

	orderID := req.OrderID
	lot := &StockLevelLot{
		StockLevelID:     level.ID,
		OrderID:          &orderID,
		Quantity:         req.Quantity,
		ReceivedQuantity: req.Quantity,
		SupplierLotCode:  req.SupplierLotCode,
		InternalLotCode:  internalCode,
	}
	if err := tx.Create(lot).Error; err != nil {
		return nil, fmt.Errorf("failed to create lot: %w", err)
	}

	if err := tx.Model(&StockLevel{}).Where("id = ?", level.ID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", req.Quantity)).Error; err != nil {
		return nil, fmt.Errorf("failed to increment stock level %d: %w", level.ID, err)
	}

	note := fmt.Sprintf("lot %s received on order %d", internalCode, req.OrderID)
	if err := recordMovement(tx, level.ID, MovementTypeIn, req.Quantity, note); err != nil {
		return nil, err
	}

	// Goods are physical now: convert waiting PO earmarks.
	if err := s.ledger.AttachTx(tx, lot); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"component_id": req.ComponentID,
		"warehouse_id": warehouseID,
		"lot":          internalCode,
		"quantity":     req.Quantity,
		"order_id":     req.OrderID,
	}).Info("Supplier lot received")

	return lot, nil
}

// CorrectLot sets a lot's recorded quantity to what was actually counted.
// An upward correction attaches waiting PO earmarks like a fresh receipt;
// a downward one releases the over-committed reservations newest-first.
func (s *ReceiptService) CorrectLot(lotID uint, newQuantity float64) (*StockLevelLot, error) {
	if newQuantity < 0 {
		return nil, fmt.Errorf("lot quantity cannot be negative")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	lot, err := s.correctLot(tx, lotID, newQuantity)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit lot correction: %w", err)
	}
	return lot, nil
}

func (s *ReceiptService) correctLot(tx *gorm.DB, lotID uint, newQuantity float64) (*StockLevelLot, error) {
	var lot StockLevelLot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", lotID).First(&lot).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("lot %d not found", lotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock lot %d: %w", lotID, err)
	}

	delta := newQuantity - lot.Quantity
	if delta > -Epsilon && delta < Epsilon {
		return &lot, nil
	}

	level, err := lockStockLevel(tx, lot.StockLevelID)
	if err != nil {
		return nil, err
	}

	// A correction restates what arrived, so the received figure moves by
	// the same delta the on-hand figure does.
	err = tx.Model(&StockLevelLot{}).Where("id = ?", lot.ID).
		Updates(map[string]interface{}{
			"quantity":          newQuantity,
			"received_quantity": gorm.Expr("received_quantity + ?", delta),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to correct lot %d: %w", lot.ID, err)
	}
	if err := tx.Model(&StockLevel{}).Where("id = ?", level.ID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", delta)).Error; err != nil {
		return nil, fmt.Errorf("failed to adjust stock level %d: %w", level.ID, err)
	}

	note := fmt.Sprintf("lot %s corrected to %.4f", lot.InternalLotCode, newQuantity)
	if delta > 0 {
		if err := recordMovement(tx, level.ID, MovementTypeIn, delta, note); err != nil {
			return nil, err
		}
		// More goods than recorded: waiting earmarks may now attach.
		if err := s.ledger.AttachTx(tx, &lot); err != nil {
			return nil, err
		}
	} else {
		if err := recordMovement(tx, level.ID, MovementTypeOut, -delta, note); err != nil {
			return nil, err
		}

		// Reservations beyond the corrected on-hand must be undone.
		var reserved float64
		err := tx.Model(&StockReservation{}).
			Where("stock_level_id = ?", level.ID).
			Select("COALESCE(SUM(quantity), 0)").Scan(&reserved).Error
		if err != nil {
			return nil, fmt.Errorf("failed to sum reservations on level %d: %w", level.ID, err)
		}
		overCommit := reserved - (level.Quantity + delta)
		if overCommit > Epsilon {
			if err := s.ledger.ReleaseTx(tx, &lot, overCommit); err != nil {
				return nil, err
			}
		}
	}

	lot.Quantity = newQuantity

	s.log.WithFields(logrus.Fields{
		"lot":          lot.InternalLotCode,
		"stock_level":  level.ID,
		"delta":        delta,
		"new_quantity": newQuantity,
	}).Info("Lot quantity corrected")

	return &lot, nil
}

func (s *ReceiptService) findOrCreateLevel(tx *gorm.DB, componentID, warehouseID uint) (*StockLevel, error) {
	var level StockLevel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("component_id = ? AND warehouse_id = ?", componentID, warehouseID).
		First(&level).Error
	if err == gorm.ErrRecordNotFound {
		level = StockLevel{ComponentID: componentID, WarehouseID: warehouseID, Quantity: 0}
		if err := tx.Create(&level).Error; err != nil {
			return nil, fmt.Errorf("failed to create stock level: %w", err)
		}
		return &level, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock level: %w", err)
	}
	return &level, nil
}

// nextLotCode issues the next internal lot code. The sequence row is
// locked so concurrent receipts cannot draw the same code.
func (s *ReceiptService) nextLotCode(tx *gorm.DB) (string, error) {
	var seq LotSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&seq).Error
	if err == gorm.ErrRecordNotFound {
		seq = LotSequence{LastCode: ""}
		if err := tx.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("failed to create lot sequence: %w", err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", seq.ID).First(&seq).Error; err != nil {
			return "", fmt.Errorf("failed to lock lot sequence: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to lock lot sequence: %w", err)
	}

	code, err := lotcode.Next(seq.LastCode)
	if err != nil {
		return "", fmt.Errorf("lot sequence corrupted: %w", err)
	}

	if err := tx.Model(&LotSequence{}).Where("id = ?", seq.ID).
		Update("last_code", code).Error; err != nil {
		return "", fmt.Errorf("failed to advance lot sequence: %w", err)
	}
	return code, nil
}
