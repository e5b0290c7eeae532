package model

import "time"

// Exception is a store or infrastructure failure persisted for auditing.
// Validation and race-lost errors are expected outcomes and never end up here.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "trading"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "execution_engine"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Execute"

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"` // warn | error | fatal

	// Entity the failure is about, when known
	EntityType string `gorm:"size:50" json:"entity_type,omitempty"`
	EntityID   *uint  `json:"entity_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
