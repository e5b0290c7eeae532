package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a leveraged virtual position opened against a room balance.
// It is never deleted: ClosedAt and ClosePrice are set together with
// Status = closed.
type Position struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	RoomID uint `gorm:"not null;index;uniqueIndex:ux_positions_room_client_order,priority:1" json:"room_id"`
	UserID uint `gorm:"not null;index" json:"user_id"`
	// ClientOrderID is the idempotency token of the open request.
	ClientOrderID string `gorm:"size:64;not null;uniqueIndex:ux_positions_room_client_order,priority:2" json:"client_order_id"`

	Symbol     string          `gorm:"size:50;not null;index" json:"symbol"`
	Side       Side            `gorm:"size:10;not null" json:"side"`
	Quantity   decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	EntryPrice decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	Leverage   int             `gorm:"not null" json:"leverage"`

	// derived at open time
	Fee              decimal.Decimal `gorm:"type:numeric;not null" json:"fee"`
	InitialMargin    decimal.Decimal `gorm:"type:numeric;not null" json:"initial_margin"`
	LiquidationPrice decimal.Decimal `gorm:"type:numeric;not null" json:"liquidation_price"`

	OrderType OrderType      `gorm:"size:10;not null" json:"order_type"`
	Status    PositionStatus `gorm:"size:20;not null;index" json:"status"`

	OpenedAt    time.Time        `gorm:"not null;index" json:"opened_at"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`
	ClosePrice  *decimal.Decimal `gorm:"type:numeric" json:"close_price,omitempty"`
	RealizedPnl *decimal.Decimal `gorm:"type:numeric" json:"realized_pnl,omitempty"`

	TpEnabled       bool             `gorm:"not null" json:"tp_enabled"`
	SlEnabled       bool             `gorm:"not null" json:"sl_enabled"`
	TakeProfitPrice *decimal.Decimal `gorm:"type:numeric" json:"take_profit_price,omitempty"`
	StopLossPrice   *decimal.Decimal `gorm:"type:numeric" json:"stop_loss_price,omitempty"`
	TpOrderID       *uint            `json:"tp_order_id,omitempty"`
	SlOrderID       *uint            `json:"sl_order_id,omitempty"`
	TpStatus        OrderStatus      `gorm:"size:20" json:"tp_status,omitempty"`
	SlStatus        OrderStatus      `gorm:"size:20" json:"sl_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// LegOrderID returns the linked order id of the given leg.
func (p *Position) LegOrderID(kind ConditionalOrderType) *uint {
	if kind == ConditionalOrderTakeProfit {
		return p.TpOrderID
	}
	return p.SlOrderID
}

// Column names of the linkage fields of one leg, in the order
// enabled, price, order id, status.
func LegColumns(kind ConditionalOrderType) (enabled, price, orderID, status string) {
	if kind == ConditionalOrderTakeProfit {
		return "tp_enabled", "take_profit_price", "tp_order_id", "tp_status"
	}
	return "sl_enabled", "stop_loss_price", "sl_order_id", "sl_status"
}

// LegStatusColumn is the position column mirroring the status of a leg order.
func LegStatusColumn(kind ConditionalOrderType) string {
	_, _, _, status := LegColumns(kind)
	return status
}
