// internal/domain/inventory/warehouse.go
package inventory

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Warehouse is a storage location stock levels are scoped to.
type Warehouse struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:100" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null;size:20" json:"code"`
	IsDefault bool           `gorm:"default:false" json:"is_default"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// DefaultWarehouse returns the warehouse goods receipt falls back to when
// the caller does not name one.
func DefaultWarehouse(tx *gorm.DB) (*Warehouse, error) {
	var warehouse Warehouse
	if err := tx.Where("is_default = ? AND is_active = ?", true, true).First(&warehouse).Error; err != nil {
		return nil, fmt.Errorf("default warehouse not found")
	}
	return &warehouse, nil
}
