package tp_sl

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradingroom/src/model"
)

// ErrInvalidPrice is returned when an enabled leg has a missing, non-positive
// or wrong-side price.
var ErrInvalidPrice = errors.New("invalid tp/sl price")

// Leg is the requested state of one exit leg.
type Leg struct {
	Enabled      bool
	TriggerPrice *decimal.Decimal
	OrderPrice   *decimal.Decimal
}

// Active reports whether the leg should be persisted as a live order.
func (l Leg) Active() bool {
	return l.Enabled && l.TriggerPrice != nil && l.TriggerPrice.IsPositive()
}

// ValidateLeg checks one leg against the position direction and entry.
//
// Long:  TP > entry, SL < entry
// Short: TP < entry, SL > entry
//
// A disabled leg is always valid.
func ValidateLeg(kind model.ConditionalOrderType, side model.Side, entry decimal.Decimal, leg Leg) error {
	if !leg.Enabled {
		return nil
	}
	if leg.TriggerPrice == nil || !leg.TriggerPrice.IsPositive() {
		return fmt.Errorf("%w: %s price must be a positive number", ErrInvalidPrice, kind)
	}
	if leg.OrderPrice != nil && !leg.OrderPrice.IsPositive() {
		return fmt.Errorf("%w: %s order price must be a positive number", ErrInvalidPrice, kind)
	}

	price := *leg.TriggerPrice
	above := price.GreaterThan(entry)
	below := price.LessThan(entry)

	var ok bool
	switch {
	case kind == model.ConditionalOrderTakeProfit && side == model.SideLong:
		ok = above
	case kind == model.ConditionalOrderTakeProfit && side == model.SideShort:
		ok = below
	case kind == model.ConditionalOrderStopLoss && side == model.SideLong:
		ok = below
	case kind == model.ConditionalOrderStopLoss && side == model.SideShort:
		ok = above
	default:
		return fmt.Errorf("%w: unknown leg %q for side %q", ErrInvalidPrice, kind, side)
	}

	if !ok {
		return fmt.Errorf("%w: %s %s is on the wrong side of entry %s for a %s position",
			ErrInvalidPrice, kind, price.String(), entry.String(), side)
	}
	return nil
}

// ValidateLegs validates both legs. Either both pass or the request is rejected.
func ValidateLegs(side model.Side, entry decimal.Decimal, tp, sl Leg) error {
	if err := ValidateLeg(model.ConditionalOrderTakeProfit, side, entry, tp); err != nil {
		return err
	}
	return ValidateLeg(model.ConditionalOrderStopLoss, side, entry, sl)
}

// Triggered reports whether price has crossed the trigger of an exit leg.
//
// Long:  TP fires at price >= trigger, SL at price <= trigger
// Short: TP fires at price <= trigger, SL at price >= trigger
func Triggered(kind model.ConditionalOrderType, side model.Side, trigger, price decimal.Decimal) bool {
	switch {
	case kind == model.ConditionalOrderTakeProfit && side == model.SideLong,
		kind == model.ConditionalOrderStopLoss && side == model.SideShort:
		return price.GreaterThanOrEqual(trigger)
	case kind == model.ConditionalOrderTakeProfit && side == model.SideShort,
		kind == model.ConditionalOrderStopLoss && side == model.SideLong:
		return price.LessThanOrEqual(trigger)
	default:
		return false
	}
}

// EntryTriggered reports whether a limit entry at trigger is fillable at price.
// Long entries buy at or below the limit, shorts sell at or above it.
func EntryTriggered(side model.Side, trigger, price decimal.Decimal) bool {
	switch side {
	case model.SideLong:
		return price.LessThanOrEqual(trigger)
	case model.SideShort:
		return price.GreaterThanOrEqual(trigger)
	default:
		return false
	}
}

// ExecutionPrice picks the first non-nil of order price, live price and trigger.
func ExecutionPrice(orderPrice, currentPrice *decimal.Decimal, trigger decimal.Decimal) decimal.Decimal {
	if orderPrice != nil {
		return *orderPrice
	}
	if currentPrice != nil {
		return *currentPrice
	}
	return trigger
}
