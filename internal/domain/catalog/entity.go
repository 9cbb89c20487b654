// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"gorm.io/gorm"
)

// ComponentCategory groups components and decides at which production
// phase they are consumed (cutting, assembly, finishing, ...).
type ComponentCategory struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"not null;size:100" json:"name"`
	Code            string         `gorm:"uniqueIndex;not null;size:20" json:"code"`
	ConsumedAtPhase int            `gorm:"not null;default:0;index" json:"consumed_at_phase"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Components []Component `gorm:"foreignKey:CategoryID" json:"components,omitempty"`
}

// Component is an immutable catalog entry for a purchasable part.
type Component struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Code          string         `gorm:"uniqueIndex;not null;size:100" json:"code"`
	Description   string         `gorm:"size:255" json:"description"`
	UnitOfMeasure string         `gorm:"not null;size:20;default:'pcs'" json:"unit_of_measure"`
	CategoryID    uint           `gorm:"not null;index" json:"category_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Category  ComponentCategory   `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"category,omitempty"`
	Suppliers []ComponentSupplier `gorm:"foreignKey:ComponentID" json:"suppliers,omitempty"`
}

// Product is a sellable good defined by its bill of materials.
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Code        string         `gorm:"uniqueIndex;not null;size:100" json:"code"`
	Name        string         `gorm:"not null;size:255" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	BOM []BOMLine `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"bom,omitempty"`
}

// BOMLine is one (component, qty per unit) pair of a product's bill of
// materials. Position keeps the authoring order stable.
type BOMLine struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProductID       uint      `gorm:"not null;index:idx_bom_product_component,unique" json:"product_id"`
	ComponentID     uint      `gorm:"not null;index:idx_bom_product_component,unique" json:"component_id"`
	QuantityPerUnit float64   `gorm:"not null" json:"quantity_per_unit"`
	Position        int       `gorm:"default:0" json:"position"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Relationships
	Component Component `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
}

// Supplier is a vendor components can be procured from.
type Supplier struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"uniqueIndex;not null;size:20" json:"code"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Email     string         `gorm:"size:100" json:"email"`
	Phone     string         `gorm:"size:20" json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ComponentSupplier is the procurement catalog: what a component last
// cost at a supplier and how long it takes to arrive.
type ComponentSupplier struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ComponentID  uint      `gorm:"not null;index:idx_component_supplier,unique" json:"component_id"`
	SupplierID   uint      `gorm:"not null;index:idx_component_supplier,unique" json:"supplier_id"`
	LastCost     float64   `gorm:"not null;default:0" json:"last_cost"`
	LeadTimeDays int       `gorm:"not null;default:0" json:"lead_time_days"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Supplier Supplier `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
}
