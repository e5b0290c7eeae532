package model

// Side is the direction of a position or of an entry order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// OrderType says how a position was entered.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// ConditionalOrderType distinguishes the two exit legs of a position.
type ConditionalOrderType string

const (
	ConditionalOrderTakeProfit ConditionalOrderType = "take_profit"
	ConditionalOrderStopLoss   ConditionalOrderType = "stop_loss"
)

func (t ConditionalOrderType) Valid() bool {
	return t == ConditionalOrderTakeProfit || t == ConditionalOrderStopLoss
}

// Opposite returns the sibling leg. TP and SL are mutually exclusive outcomes.
func (t ConditionalOrderType) Opposite() ConditionalOrderType {
	if t == ConditionalOrderTakeProfit {
		return ConditionalOrderStopLoss
	}
	return ConditionalOrderTakeProfit
}

// ----- position lifecycle -----

type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusFilled  PositionStatus = "filled"
	PositionStatusClosed  PositionStatus = "closed"
)

var positionStatuses = []PositionStatus{
	PositionStatusPending,
	PositionStatusFilled,
	PositionStatusClosed,
}

func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusPending, PositionStatusFilled, PositionStatusClosed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal position transition.
// pending -> filled -> closed; closed is terminal.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	switch s {
	case PositionStatusPending:
		return next == PositionStatusFilled
	case PositionStatusFilled:
		return next == PositionStatusClosed
	case PositionStatusClosed:
		return false
	default:
		return false
	}
}

// PositionStatusesInto lists every status from which target is reachable in one step.
// Used to build the WHERE predicate of guarded updates.
func PositionStatusesInto(target PositionStatus) []PositionStatus {
	var out []PositionStatus
	for _, s := range positionStatuses {
		if s.CanTransitionTo(target) {
			out = append(out, s)
		}
	}
	return out
}

// ----- conditional / scheduled order lifecycle -----

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusActive,
	OrderStatusExecuted,
	OrderStatusCancelled,
	OrderStatusFailed,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusActive, OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal is true for executed, cancelled and failed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal order transition.
// A pending order may be activated (its position filled), executed directly
// (scheduled entry orders), cancelled or failed. Terminal states never move.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		switch next {
		case OrderStatusActive, OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
			return true
		}
		return false
	case OrderStatusActive:
		switch next {
		case OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
			return true
		}
		return false
	case OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
		return false
	default:
		return false
	}
}

// OrderStatusesInto lists every status from which target is reachable in one step.
func OrderStatusesInto(target OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, s := range orderStatuses {
		if s.CanTransitionTo(target) {
			out = append(out, s)
		}
	}
	return out
}

// OpenOrderStatuses are the non-terminal order statuses.
func OpenOrderStatuses() []OrderStatus {
	var out []OrderStatus
	for _, s := range orderStatuses {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}
