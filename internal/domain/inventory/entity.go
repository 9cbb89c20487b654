// internal/domain/inventory/entity.go
package inventory

import (
	"time"

	"gorm.io/gorm"
)

// MovementType classifies entries of the append-only stock audit trail
type MovementType string

const (
	MovementTypeIn        MovementType = "in"        // goods receipt
	MovementTypeOut       MovementType = "out"       // production consumption
	MovementTypeReserve   MovementType = "reserve"   // reservation created
	MovementTypeUnreserve MovementType = "unreserve" // reservation released
)

// StockLevel is the aggregate stock cursor for one component in one
// warehouse. Invariant: Quantity == sum of its lots' quantities.
type StockLevel struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ComponentID uint           `gorm:"not null;index:idx_stock_component_warehouse,unique" json:"component_id"`
	WarehouseID uint           `gorm:"not null;index:idx_stock_component_warehouse,unique" json:"warehouse_id"`
	Quantity    float64        `gorm:"not null;default:0" json:"quantity"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Lots         []StockLevelLot    `gorm:"foreignKey:StockLevelID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lots,omitempty"`
	Reservations []StockReservation `gorm:"foreignKey:StockLevelID" json:"reservations,omitempty"`
}

// StockLevelLot is a traceable batch of a component's stock. CreatedAt is
// the FIFO key for consumption.
type StockLevelLot struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	StockLevelID uint `gorm:"not null;index" json:"stock_level_id"`

	// OrderID is the supplier order the lot was received against.
	OrderID *uint `gorm:"index" json:"order_id,omitempty"`

	Quantity float64 `gorm:"not null" json:"quantity"`

	// ReceivedQuantity is what the supplier actually delivered: set at
	// receipt, moved by corrections, never by consumption. Shortfall
	// capture reads this, not the consumable Quantity.
	ReceivedQuantity float64   `gorm:"not null;default:0" json:"received_quantity"`
	SupplierLotCode  string    `gorm:"size:100" json:"supplier_lot_code"`
	InternalLotCode  string    `gorm:"not null;size:10;index" json:"internal_lot_code"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StockReservation is a binding allocation of physical stock to one
// customer order. Invariant: the sum of reservations on a stock level
// never exceeds the stock level quantity.
type StockReservation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StockLevelID uint      `gorm:"not null;index" json:"stock_level_id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	Quantity     float64   `gorm:"not null" json:"quantity"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PoReservation earmarks not-yet-arrived supplier quantity on a PO line
// for a specific customer order. Converted into a StockReservation when
// the goods arrive.
type PoReservation struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OrderItemID     uint      `gorm:"not null;index" json:"order_item_id"`
	OrderCustomerID uint      `gorm:"not null;index" json:"order_customer_id"`
	Quantity        float64   `gorm:"not null" json:"quantity"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StockMovement is an append-only audit entry. Never mutated.
type StockMovement struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	StockLevelID uint         `gorm:"not null;index" json:"stock_level_id"`
	Type         MovementType `gorm:"not null;size:20" json:"type"`
	Quantity     float64      `gorm:"not null" json:"quantity"`
	Note         string       `gorm:"size:255" json:"note"`
	CreatedAt    time.Time    `gorm:"index" json:"created_at"`
}

// LotSequence is the persisted cursor of the internal lot-code generator.
// A single row, locked for update while a code is issued.
type LotSequence struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	LastCode string `gorm:"size:10" json:"last_code"`
}
