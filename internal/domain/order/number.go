// internal/domain/order/number.go
package order

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReserveOrderNumber takes the next free order number for the given kind.
// The sequence row is locked for update so concurrent reservations cannot
// hand out the same number. Must run on the caller's transaction.
func ReserveOrderNumber(tx *gorm.DB, kind Kind) (string, error) {
	var seq NumberSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("kind = ?", kind).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = NumberSequence{Kind: kind, LastUsed: 0, Prefix: defaultPrefix(kind)}
		if err := tx.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("failed to create %s number sequence: %w", kind, err)
		}
		// Re-read under lock so the new row is serialized like any other.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", seq.ID).First(&seq).Error; err != nil {
			return "", fmt.Errorf("failed to lock %s number sequence: %w", kind, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to load %s number sequence: %w", kind, err)
	}

	seq.LastUsed++
	if err := tx.Model(&NumberSequence{}).Where("id = ?", seq.ID).
		Update("last_used", seq.LastUsed).Error; err != nil {
		return "", fmt.Errorf("failed to advance %s number sequence: %w", kind, err)
	}

	return fmt.Sprintf("%s-%06d", seq.Prefix, seq.LastUsed), nil
}

func defaultPrefix(kind Kind) string {
	if kind == KindSupplier {
		return "PO"
	}
	return "SO"
}
