package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionOutcome is the conclusion of one execution attempt.
const (
	ExecutionOutcomeExecuted = "executed"
	ExecutionOutcomeStale    = "stale"
	ExecutionOutcomeFailed   = "failed"
)

// Kinds of order an execution log entry can refer to.
const (
	ExecutionKindConditional = "conditional"
	ExecutionKindScheduled   = "scheduled"
)

// ExecutionLog stores the conclusion of every execution attempt that reached
// the store, written in the same transaction as the state change it describes.
type ExecutionLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Reference is a time-sortable id that can be handed back to callers.
	Reference  string `gorm:"size:26;not null;uniqueIndex" json:"reference"`
	OrderKind  string `gorm:"size:20;not null;index:idx_execution_logs_order,priority:1" json:"order_kind"`
	OrderID    uint   `gorm:"not null;index:idx_execution_logs_order,priority:2" json:"order_id"`
	PositionID *uint  `gorm:"index" json:"position_id,omitempty"`
	RoomID     uint   `gorm:"index" json:"room_id"`

	Outcome string           `gorm:"size:20;not null" json:"outcome"`
	Price   *decimal.Decimal `gorm:"type:numeric" json:"price,omitempty"`
	Reason  string           `gorm:"size:255" json:"reason"`

	CreatedAt time.Time `json:"created_at"`
}

func (ExecutionLog) TableName() string {
	return "execution_logs"
}
