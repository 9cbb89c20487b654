// internal/domain/catalog/bom.go
package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Domain errors raised by BOM explosion
var (
	ErrProductNotFound   = errors.New("product_not_found")
	ErrComponentNotFound = errors.New("component_not_found")
)

// ProductQuantity is one customer-order line as seen by the BOM explosion
type ProductQuantity struct {
	ProductID uint    `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// BOMService resolves product demand into component-level requirements
type BOMService struct {
	db *gorm.DB
}

// NewBOMService creates a new BOM service
func NewBOMService(db *gorm.DB) *BOMService {
	return &BOMService{db: db}
}

// Explode multiplies each line's quantity through the product's bill of
// materials and accumulates the result per component. Pure read, no side
// effects.
func (s *BOMService) Explode(lines []ProductQuantity) (map[uint]float64, error) {
	return s.ExplodeTx(s.db, lines)
}

// ExplodeTx is Explode running on the caller's transaction.
func (s *BOMService) ExplodeTx(tx *gorm.DB, lines []ProductQuantity) (map[uint]float64, error) {
	needed := make(map[uint]float64)

	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}

		var product Product
		if err := tx.Preload("BOM").Where("id = ?", line.ProductID).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, line.ProductID)
			}
			return nil, fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
		}

		for _, bomLine := range product.BOM {
			needed[bomLine.ComponentID] += bomLine.QuantityPerUnit * line.Quantity
		}
	}

	return needed, nil
}
