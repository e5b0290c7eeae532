package risk

import (
	"github.com/shopspring/decimal"

	"tradingroom/src/model"
)

// MaintenanceMarginRate is the linear maintenance margin used for liquidation prices.
var MaintenanceMarginRate = decimal.RequireFromString("0.005")

// Terms are the derived money values of one open request.
type Terms struct {
	OrderValue       decimal.Decimal
	OpenFee          decimal.Decimal
	InitialMargin    decimal.Decimal
	TotalCost        decimal.Decimal
	LiquidationPrice decimal.Decimal
}

// OrderValue = quantity * entry price.
func OrderValue(quantity, entryPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(entryPrice)
}

// OpenFee = order value * fee rate.
func OpenFee(orderValue, feeRate decimal.Decimal) decimal.Decimal {
	return orderValue.Mul(feeRate)
}

// InitialMargin = order value / leverage, or the full order value when
// leverage is not positive.
func InitialMargin(orderValue decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		return orderValue
	}
	return orderValue.Div(decimal.NewFromInt(int64(leverage)))
}

// LiquidationPrice uses the linear model
//
//	long:  entry * (1 - 1/leverage + MMR)
//	short: entry * (1 + 1/leverage - MMR)
//
// Zero means "not computable" (no leverage or no entry price).
func LiquidationPrice(side model.Side, entryPrice decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 || !entryPrice.IsPositive() {
		return decimal.Zero
	}

	inv := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(leverage)))

	switch side {
	case model.SideLong:
		return entryPrice.Mul(decimal.NewFromInt(1).Sub(inv).Add(MaintenanceMarginRate))
	case model.SideShort:
		return entryPrice.Mul(decimal.NewFromInt(1).Add(inv).Sub(MaintenanceMarginRate))
	default:
		return decimal.Zero
	}
}

// Calculate derives every money term of an open request.
func Calculate(side model.Side, quantity, entryPrice decimal.Decimal, leverage int, feeRate decimal.Decimal) Terms {
	value := OrderValue(quantity, entryPrice)
	fee := OpenFee(value, feeRate)
	margin := InitialMargin(value, leverage)

	return Terms{
		OrderValue:       value,
		OpenFee:          fee,
		InitialMargin:    margin,
		TotalCost:        margin.Add(fee),
		LiquidationPrice: LiquidationPrice(side, entryPrice, leverage),
	}
}

// PnL is the profit of closing quantity at exitPrice. Shorts profit when the price falls.
func PnL(side model.Side, entryPrice, exitPrice, quantity decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(entryPrice)
	if side == model.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(quantity)
}
