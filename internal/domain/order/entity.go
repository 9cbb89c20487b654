// internal/domain/order/entity.go
package order

import (
	"time"

	"gorm.io/gorm"
)

// Kind discriminates customer orders from supplier purchase orders.
// Storage shares one table; business logic branches on Kind, never on
// which association column happens to be set.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindSupplier Kind = "supplier"
)

// Order is either a customer order or a supplier purchase order (PO).
type Order struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderNumber  string    `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	Kind         Kind      `gorm:"not null;index;size:20" json:"kind"`
	CustomerID   *uint     `gorm:"index" json:"customer_id,omitempty"`
	SupplierID   *uint     `gorm:"index" json:"supplier_id,omitempty"`
	DeliveryDate time.Time `gorm:"not null;index" json:"delivery_date"`
	Total        float64   `gorm:"not null;default:0" json:"total"`

	// ParentOrderID links a shortfall recovery order back to the
	// under-delivered supplier order it was spun from.
	ParentOrderID *uint `gorm:"index" json:"parent_order_id,omitempty"`

	Status    string         `gorm:"size:20;default:'open'" json:"status"`
	Notes     string         `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// Order statuses
const (
	StatusOpen     = "open"
	StatusReceived = "received"
	StatusClosed   = "closed"
)

// IsCustomer reports whether the order carries customer demand.
func (o *Order) IsCustomer() bool {
	return o.Kind == KindCustomer
}

// IsSupplier reports whether the order is a purchase order.
func (o *Order) IsSupplier() bool {
	return o.Kind == KindSupplier
}

// OrderItem is one line of an order. Customer lines reference a product;
// supplier lines reference a component.
type OrderItem struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	OrderID     uint    `gorm:"not null;index" json:"order_id"`
	ProductID   *uint   `gorm:"index" json:"product_id,omitempty"`
	ComponentID *uint   `gorm:"index" json:"component_id,omitempty"`
	Quantity    float64 `gorm:"not null" json:"quantity"`
	UnitPrice   float64 `gorm:"not null;default:0" json:"unit_price"`

	// GeneratedByOrderCustomerID is the one-directional provenance
	// pointer from an auto-generated PO line back to the customer order
	// that caused it. Reverse views are reconstructed by query.
	GeneratedByOrderCustomerID *uint `gorm:"index" json:"generated_by_order_customer_id,omitempty"`

	ProductionPhase int       `gorm:"default:0" json:"production_phase"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OrderItemShortfall links an under-delivered supplier line to the
// recovery-order line created for the gap.
type OrderItemShortfall struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderItemID    uint      `gorm:"not null;index" json:"order_item_id"`
	Quantity       float64   `gorm:"not null" json:"quantity"`
	FollowUpItemID uint      `gorm:"not null;index" json:"follow_up_item_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// NumberSequence is the persisted cursor behind order-number reservation.
// The row is locked for update while a number is taken.
type NumberSequence struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Kind     Kind   `gorm:"uniqueIndex;not null;size:20" json:"kind"`
	LastUsed int64  `gorm:"not null;default:0" json:"last_used"`
	Prefix   string `gorm:"not null;size:10" json:"prefix"`
}
