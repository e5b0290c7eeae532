package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingRoom is a simulated trading room. VirtualBalance is the collateral
// every position opened in the room is paid from.
type TradingRoom struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	VirtualBalance decimal.Decimal `gorm:"type:numeric;not null" json:"virtual_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (TradingRoom) TableName() string {
	return "trading_rooms"
}
