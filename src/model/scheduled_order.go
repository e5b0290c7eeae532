package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduledOrder is a pending entry order. When its trigger is reached it is
// executed and spawns a Position with the stored parameters.
type ScheduledOrder struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TradingRoomID uint   `gorm:"not null;index;uniqueIndex:ux_scheduled_orders_room_client_order,priority:1" json:"trading_room_id"`
	UserID        uint   `gorm:"not null;index" json:"user_id"`
	ClientOrderID string `gorm:"size:64;not null;uniqueIndex:ux_scheduled_orders_room_client_order,priority:2" json:"client_order_id"`

	Symbol       string           `gorm:"size:50;not null;index" json:"symbol"`
	Side         Side             `gorm:"size:10;not null" json:"side"`
	Quantity     decimal.Decimal  `gorm:"type:numeric;not null" json:"quantity"`
	TriggerPrice decimal.Decimal  `gorm:"type:numeric;not null" json:"trigger_price"`
	OrderPrice   *decimal.Decimal `gorm:"type:numeric" json:"order_price,omitempty"`
	Leverage     int              `gorm:"not null" json:"leverage"`
	FeeRate      decimal.Decimal  `gorm:"type:numeric;not null" json:"fee_rate"`

	TpEnabled       bool             `gorm:"not null" json:"tp_enabled"`
	TakeProfitPrice *decimal.Decimal `gorm:"type:numeric" json:"take_profit_price,omitempty"`
	TpOrderPrice    *decimal.Decimal `gorm:"type:numeric" json:"tp_order_price,omitempty"`
	SlEnabled       bool             `gorm:"not null" json:"sl_enabled"`
	StopLossPrice   *decimal.Decimal `gorm:"type:numeric" json:"stop_loss_price,omitempty"`
	SlOrderPrice    *decimal.Decimal `gorm:"type:numeric" json:"sl_order_price,omitempty"`

	Status         OrderStatus      `gorm:"size:20;not null;index" json:"status"`
	ExecutionPrice *decimal.Decimal `gorm:"type:numeric" json:"execution_price,omitempty"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`
	PositionID     *uint            `gorm:"index" json:"position_id,omitempty"`
	FailureReason  string           `gorm:"size:255" json:"failure_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (ScheduledOrder) TableName() string {
	return "scheduled_orders"
}
