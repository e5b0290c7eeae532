package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConditionalOrder is a take-profit or stop-loss exit order. PositionID is a
// weak reference: the order owns the back-pointer, the position only keeps the
// id of the currently linked order per leg.
type ConditionalOrder struct {
	ID            uint                 `gorm:"primaryKey" json:"id"`
	PositionID    uint                 `gorm:"not null;index" json:"position_id"`
	TradingRoomID uint                 `gorm:"not null;index" json:"trading_room_id"`
	UserID        uint                 `gorm:"not null;index" json:"user_id"`
	OrderType     ConditionalOrderType `gorm:"size:20;not null" json:"order_type"`
	Side          Side                 `gorm:"size:10;not null" json:"side"`
	Symbol        string               `gorm:"size:50;not null;index" json:"symbol"`
	Quantity      decimal.Decimal      `gorm:"type:numeric;not null" json:"quantity"`
	TriggerPrice  decimal.Decimal      `gorm:"type:numeric;not null" json:"trigger_price"`
	// OrderPrice nil means execute at market (or trigger), otherwise at this limit.
	OrderPrice     *decimal.Decimal `gorm:"type:numeric" json:"order_price,omitempty"`
	Status         OrderStatus      `gorm:"size:20;not null;index" json:"status"`
	ExecutionPrice *decimal.Decimal `gorm:"type:numeric" json:"execution_price,omitempty"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (ConditionalOrder) TableName() string {
	return "conditional_orders"
}
