package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// syncPositionLegStatuses copies the status of the linked TP/SL orders onto
// the position mirror columns.
func syncPositionLegStatuses(db *gorm.DB) error {
	legs := []struct {
		orderColumn  string
		statusColumn string
	}{
		{"tp_order_id", "tp_status"},
		{"sl_order_id", "sl_status"},
	}

	for _, leg := range legs {
		stmt := fmt.Sprintf(
			"UPDATE positions SET %s = (SELECT status FROM conditional_orders WHERE conditional_orders.id = positions.%s) WHERE %s IS NOT NULL",
			leg.statusColumn, leg.orderColumn, leg.orderColumn,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("sync positions.%s: %w", leg.statusColumn, err)
		}
	}
	return nil
}
