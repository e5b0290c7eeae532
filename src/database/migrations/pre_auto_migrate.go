package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// PreparePositionClientOrderIDs gives positions created before idempotency
// tokens existed a deterministic token, so that AutoMigrate can make the
// column NOT NULL and build the (room_id, client_order_id) unique index.
func PreparePositionClientOrderIDs(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable("positions") {
		return nil
	}

	if !migrator.HasColumn("positions", "client_order_id") {
		if err := db.Exec("ALTER TABLE positions ADD COLUMN client_order_id varchar(64)").Error; err != nil {
			return fmt.Errorf("add positions.client_order_id: %w", err)
		}
	}

	err := db.Exec(
		"UPDATE positions SET client_order_id = 'legacy-' || CAST(id AS VARCHAR(20)) WHERE client_order_id IS NULL OR client_order_id = ''",
	).Error
	if err != nil {
		return fmt.Errorf("backfill positions.client_order_id: %w", err)
	}
	return nil
}
