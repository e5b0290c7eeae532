package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/metrics"
	"tradingroom/src/model"
	"tradingroom/src/repository"
	"tradingroom/src/risk"
	"tradingroom/src/tp_sl"
	"tradingroom/src/utils"
)

// scheduledTokenPrefix namespaces the client order ids of positions spawned by
// scheduled orders. Open requests may not use it.
const scheduledTokenPrefix = "scheduled-"

// failureReasonLimit is the width of scheduled_orders.failure_reason.
const failureReasonLimit = 255

func scheduledPositionToken(orderID uint) string {
	return fmt.Sprintf("%s%d", scheduledTokenPrefix, orderID)
}

// CreateScheduledOrderRequest describes a pending entry order.
type CreateScheduledOrderRequest struct {
	RoomID        uint
	UserID        uint
	ClientOrderID string

	Symbol       string
	Side         model.Side
	Quantity     decimal.Decimal
	TriggerPrice decimal.Decimal
	// OrderPrice nil means the position opens at the live price.
	OrderPrice *decimal.Decimal
	Leverage   int
	FeeRate    *decimal.Decimal

	TakeProfit tp_sl.Leg
	StopLoss   tp_sl.Leg
}

// ScheduledExecutionResult describes a scheduled order execution.
type ScheduledExecutionResult struct {
	Order     *model.ScheduledOrder
	Position  *model.Position
	Reference string
}

// ScheduledOrderManager manages entry orders that open a position once their
// trigger is reached. No balance is reserved before execution.
type ScheduledOrderManager struct {
	service
}

func NewScheduledOrderManager(logger *logrus.Entry, ledger *repository.Ledger, exceptions ExceptionRecorder) *ScheduledOrderManager {
	return &ScheduledOrderManager{service: newService(logger, ledger, exceptions, "scheduled_order_manager")}
}

// Create validates and stores a pending scheduled order. TP/SL legs are
// checked against the price the position is expected to open at.
func (m *ScheduledOrderManager) Create(ctx context.Context, req CreateScheduledOrderRequest) (*model.ScheduledOrder, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.ClientOrderID = strings.TrimSpace(req.ClientOrderID)
	if req.FeeRate == nil {
		rate := m.config.FeeRate()
		req.FeeRate = &rate
	}

	leverage, err := checkEntry(req.RoomID, req.UserID, req.Symbol, req.Side, req.Quantity, req.Leverage, *req.FeeRate, m.config.MaxLeverage)
	if err != nil {
		return nil, err
	}
	if !req.TriggerPrice.IsPositive() {
		return nil, validationError("trigger price must be positive")
	}
	if req.OrderPrice != nil && !req.OrderPrice.IsPositive() {
		return nil, validationError("order price must be positive")
	}
	if len(req.ClientOrderID) > 64 {
		return nil, validationError("client order id is longer than 64 characters")
	}

	expectedEntry := req.TriggerPrice
	if req.OrderPrice != nil {
		expectedEntry = *req.OrderPrice
	}
	if err := tp_sl.ValidateLegs(req.Side, expectedEntry, req.TakeProfit, req.StopLoss); err != nil {
		return nil, wrapLegError(err)
	}

	if req.ClientOrderID != "" {
		existing, err := m.ledger.ScheduledOrders.FindByClientOrderID(ctx, req.RoomID, req.ClientOrderID)
		if err != nil {
			return nil, storeError("find scheduled order by client order id", err)
		}
		if existing != nil {
			if existing.UserID != req.UserID {
				return nil, validationError("client order id %q already used in room %d", req.ClientOrderID, req.RoomID)
			}
			return existing, nil
		}
	} else {
		req.ClientOrderID = utils.NewClientOrderID()
	}

	room, err := m.ledger.Rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		return nil, storeError("find room", err)
	}
	if room == nil {
		return nil, notFound("trading room", req.RoomID)
	}

	order := &model.ScheduledOrder{
		TradingRoomID: req.RoomID,
		UserID:        req.UserID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		TriggerPrice:  req.TriggerPrice,
		OrderPrice:    req.OrderPrice,
		Leverage:      leverage,
		FeeRate:       *req.FeeRate,
		Status:        model.OrderStatusPending,
	}
	if req.TakeProfit.Active() {
		order.TpEnabled = true
		order.TakeProfitPrice = req.TakeProfit.TriggerPrice
		order.TpOrderPrice = req.TakeProfit.OrderPrice
	}
	if req.StopLoss.Active() {
		order.SlEnabled = true
		order.StopLossPrice = req.StopLoss.TriggerPrice
		order.SlOrderPrice = req.StopLoss.OrderPrice
	}

	if err := m.ledger.ScheduledOrders.Create(ctx, order); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent request with the same token won
			existing, findErr := m.ledger.ScheduledOrders.FindByClientOrderID(ctx, req.RoomID, req.ClientOrderID)
			if findErr == nil && existing != nil {
				if existing.UserID != req.UserID {
					return nil, validationError("client order id %q already used in room %d", req.ClientOrderID, req.RoomID)
				}
				return existing, nil
			}
		}

		err = storeError("create scheduled order", err)
		m.capture(ctx, "Create", err, "trading_room", req.RoomID)
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"scheduled_order_id": order.ID,
		"room_id":            order.TradingRoomID,
		"symbol":             order.Symbol,
		"trigger":            order.TriggerPrice.String(),
	}).Info("Scheduled order created")

	return order, nil
}

// Cancel moves an open scheduled order to cancelled. Terminal orders are
// returned unchanged.
func (m *ScheduledOrderManager) Cancel(ctx context.Context, userID, orderID uint) (*model.ScheduledOrder, error) {
	order, err := m.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	affected, err := m.ledger.ScheduledOrders.Transition(ctx, orderID,
		model.OrderStatusesInto(model.OrderStatusCancelled),
		map[string]interface{}{"status": model.OrderStatusCancelled},
	)
	if err != nil {
		err = storeError("cancel scheduled order", err)
		m.capture(ctx, "Cancel", err, "scheduled_order", orderID)
		return nil, err
	}
	if affected > 0 {
		metrics.OrderCancelled.WithLabelValues("scheduled").Inc()
		m.logger.WithField("scheduled_order_id", orderID).Info("Scheduled order cancelled")
	}

	return m.Get(ctx, userID, orderID)
}

// Execute opens the position of a scheduled order. When currentPrice is
// given the entry condition must hold. The transition to executed and the
// open share one transaction. A validation, balance or not-found failure
// marks the order failed; a store failure leaves it pending for a retry.
func (m *ScheduledOrderManager) Execute(ctx context.Context, orderID uint, currentPrice *decimal.Decimal) (*ScheduledExecutionResult, error) {
	order, err := m.Get(ctx, 0, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		metrics.ScheduledExecuted.WithLabelValues("rejected").Inc()
		return nil, ErrOrderNotActive
	}

	if currentPrice != nil {
		if !currentPrice.IsPositive() {
			return nil, validationError("current price must be positive")
		}
		if !tp_sl.EntryTriggered(order.Side, order.TriggerPrice, *currentPrice) {
			return nil, ErrTriggerNotReached
		}
	}

	entry := tp_sl.ExecutionPrice(order.OrderPrice, currentPrice, order.TriggerPrice)
	req := OpenPositionRequest{
		RoomID:        order.TradingRoomID,
		UserID:        order.UserID,
		ClientOrderID: scheduledPositionToken(order.ID),
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		EntryPrice:    entry,
		Leverage:      order.Leverage,
		OrderType:     model.OrderTypeLimit,
		FeeRate:       &order.FeeRate,
		TakeProfit:    tp_sl.Leg{Enabled: order.TpEnabled, TriggerPrice: order.TakeProfitPrice, OrderPrice: order.TpOrderPrice},
		StopLoss:      tp_sl.Leg{Enabled: order.SlEnabled, TriggerPrice: order.StopLossPrice, OrderPrice: order.SlOrderPrice},
	}
	terms := risk.Calculate(req.Side, req.Quantity, req.EntryPrice, req.Leverage, order.FeeRate)
	now := m.now()

	log := m.logger.WithFields(logrus.Fields{
		"scheduled_order_id": order.ID,
		"room_id":            order.TradingRoomID,
		"entry_price":        entry.String(),
	})

	result := &ScheduledExecutionResult{}
	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		affected, err := tx.ScheduledOrders.Transition(ctx, order.ID, model.OrderStatusesInto(model.OrderStatusExecuted), map[string]interface{}{
			"status":          model.OrderStatusExecuted,
			"execution_price": entry,
			"executed_at":     now,
		})
		if err != nil {
			return storeError("mark scheduled order executed", err)
		}
		if affected == 0 {
			return ErrOrderNotActive
		}

		// the entry may have moved past a leg since the order was created
		if err := tp_sl.ValidateLegs(req.Side, req.EntryPrice, req.TakeProfit, req.StopLoss); err != nil {
			return wrapLegError(err)
		}

		position, err := openInTx(ctx, tx, req, terms, model.PositionStatusFilled, now)
		if err != nil {
			return err
		}
		result.Position = position

		if _, err := tx.ScheduledOrders.Transition(ctx, order.ID, []model.OrderStatus{model.OrderStatusExecuted}, map[string]interface{}{
			"position_id": position.ID,
		}); err != nil {
			return storeError("link spawned position", err)
		}

		return m.record(ctx, tx, result, order, &position.ID, model.ExecutionOutcomeExecuted, &entry, "")
	})
	if err != nil {
		err = storeError("execute scheduled order", err)
		if errors.Is(err, ErrOrderNotActive) {
			metrics.ScheduledExecuted.WithLabelValues("rejected").Inc()
			return nil, err
		}

		m.capture(ctx, "Execute", err, "scheduled_order", order.ID)
		if !permanentFailure(err) {
			metrics.ScheduledExecuted.WithLabelValues("retry").Inc()
			log.WithError(err).Warn("Scheduled order execution failed, order left pending")
			return nil, err
		}

		metrics.ScheduledExecuted.WithLabelValues(model.ExecutionOutcomeFailed).Inc()
		log.WithError(err).Warn("Scheduled order execution failed, marking order failed")

		if ferr := m.fail(ctx, order, err.Error()); ferr != nil {
			log.WithError(ferr).Error("Failed to mark scheduled order failed")
		}
		return nil, err
	}

	if result.Order, err = m.ledger.ScheduledOrders.FindByID(ctx, order.ID); err != nil {
		return nil, storeError("reload scheduled order", err)
	}

	metrics.ScheduledExecuted.WithLabelValues(model.ExecutionOutcomeExecuted).Inc()
	metrics.PositionOpened.WithLabelValues(string(result.Position.Side), string(result.Position.OrderType)).Inc()
	log.WithField("position_id", result.Position.ID).Info("Scheduled order executed, position opened")

	return result, nil
}

func (m *ScheduledOrderManager) fail(ctx context.Context, order *model.ScheduledOrder, reason string) error {
	reason = truncateReason(reason, failureReasonLimit)
	// the caller's context may already be done; the failure must still be recorded
	ctx = context.WithoutCancel(ctx)

	return m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		affected, err := tx.ScheduledOrders.Transition(ctx, order.ID, model.OrderStatusesInto(model.OrderStatusFailed), map[string]interface{}{
			"status":         model.OrderStatusFailed,
			"failure_reason": reason,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		return m.record(ctx, tx, &ScheduledExecutionResult{}, order, nil, model.ExecutionOutcomeFailed, nil, reason)
	})
}

// permanentFailure reports whether retrying the execution cannot succeed.
func permanentFailure(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotFound)
}

// truncateReason cuts reason to at most limit bytes on a rune boundary.
func truncateReason(reason string, limit int) string {
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

func (m *ScheduledOrderManager) record(
	ctx context.Context,
	tx *repository.Ledger,
	result *ScheduledExecutionResult,
	order *model.ScheduledOrder,
	positionID *uint,
	outcome string,
	price *decimal.Decimal,
	reason string,
) error {
	entry := &model.ExecutionLog{
		OrderKind:  model.ExecutionKindScheduled,
		OrderID:    order.ID,
		PositionID: positionID,
		RoomID:     order.TradingRoomID,
		Outcome:    outcome,
		Price:      price,
		Reason:     reason,
		CreatedAt:  m.now(),
	}
	if err := tx.ExecutionLogs.Create(ctx, entry); err != nil {
		return storeError("write execution log", err)
	}
	result.Reference = entry.Reference
	return nil
}

// Get returns a scheduled order. userID 0 skips the ownership check.
func (m *ScheduledOrderManager) Get(ctx context.Context, userID, orderID uint) (*model.ScheduledOrder, error) {
	order, err := m.ledger.ScheduledOrders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError("find scheduled order", err)
	}
	if order == nil || (userID != 0 && order.UserID != userID) {
		return nil, notFound("scheduled order", orderID)
	}
	return order, nil
}

// ListPending returns the open scheduled orders of a room; roomID 0 lists every room.
func (m *ScheduledOrderManager) ListPending(ctx context.Context, roomID uint, limit int) ([]model.ScheduledOrder, error) {
	orders, err := m.ledger.ScheduledOrders.ListPending(ctx, roomID, limit)
	if err != nil {
		return nil, storeError("list scheduled orders", err)
	}
	return orders, nil
}
