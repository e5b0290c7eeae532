package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVBase is a candle as received from a market data feed, before it is
// bucketed into a stored resolution.
type OHLCVBase struct {
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	Symbol   string          `json:"symbol"`
}

func (o *OHLCVBase) ConvertToOHLCVCrypto1m() *OHLCVCrypto1m {
	return &OHLCVCrypto1m{
		Datetime: o.Datetime.UTC().Truncate(time.Minute),
		Open:     o.Open,
		High:     o.High,
		Low:      o.Low,
		Close:    o.Close,
		Volume:   o.Volume,
		Symbol:   o.Symbol,
	}
}
