package trading

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradingroom/src/metrics"
	"tradingroom/src/model"
	"tradingroom/src/repository"
	"tradingroom/src/risk"
	"tradingroom/src/tp_sl"
)

// ExecutionResult describes a conditional order execution.
type ExecutionResult struct {
	Order          *model.ConditionalOrder
	Position       *model.Position
	ExecutionPrice decimal.Decimal
	// CancelledOrderIDs are the sibling orders cancelled by this execution.
	CancelledOrderIDs []uint
	// Reference identifies the execution log entry written with the outcome.
	Reference string
}

// ExecutionEngine closes positions when one of their TP/SL orders fires.
type ExecutionEngine struct {
	service
}

func NewExecutionEngine(logger *logrus.Entry, ledger *repository.Ledger, exceptions ExceptionRecorder) *ExecutionEngine {
	return &ExecutionEngine{service: newService(logger, ledger, exceptions, "execution_engine")}
}

// Execute fires an active conditional order. The position close is guarded
// by its status, so of two racing executions for one position exactly one
// succeeds. The loser gets its order cancelled and ErrPositionAlreadyClosed
// together with a result describing the cancelled order.
func (e *ExecutionEngine) Execute(ctx context.Context, orderID uint, currentPrice *decimal.Decimal) (*ExecutionResult, error) {
	if currentPrice != nil && !currentPrice.IsPositive() {
		return nil, validationError("current price must be positive")
	}

	order, err := e.ledger.ConditionalOrders.FindByID(ctx, orderID)
	if err != nil {
		err = storeError("find conditional order", err)
		e.capture(ctx, "Execute", err, "conditional_order", orderID)
		return nil, err
	}
	if order == nil {
		return nil, notFound("conditional order", orderID)
	}

	log := e.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"position_id": order.PositionID,
		"order_type":  order.OrderType,
	})

	// advisory: the guarded updates below are authoritative
	if order.Status != model.OrderStatusActive {
		metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), "rejected").Inc()
		return nil, ErrOrderNotActive
	}

	position, err := e.ledger.Positions.FindByID(ctx, order.PositionID)
	if err != nil {
		err = storeError("find position", err)
		e.capture(ctx, "Execute", err, "position", order.PositionID)
		return nil, err
	}
	if position == nil {
		log.Warn("Position of conditional order is missing, marking order failed")
		if ferr := e.fail(ctx, order, "position not found"); ferr != nil {
			e.capture(ctx, "Execute", ferr, "conditional_order", order.ID)
			return nil, ferr
		}
		metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), model.ExecutionOutcomeFailed).Inc()
		return nil, notFound("position", order.PositionID)
	}

	price := tp_sl.ExecutionPrice(order.OrderPrice, currentPrice, order.TriggerPrice)
	pnl := risk.PnL(position.Side, position.EntryPrice, price, position.Quantity)
	now := e.now()

	result := &ExecutionResult{ExecutionPrice: price}
	stale := false

	err = e.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		closed, err := tx.Positions.Close(ctx, position.ID, price, pnl, now)
		if err != nil {
			return storeError("close position", err)
		}

		if closed == 0 {
			// another path closed the position first: this order is stale
			stale = true
			cancelled, err := cancelOrder(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if cancelled > 0 {
				if err := tx.Positions.SetLegStatus(ctx, position.ID, order.OrderType, order.ID, model.OrderStatusCancelled); err != nil {
					return storeError("mirror leg status", err)
				}
			}
			return e.record(ctx, tx, result, order, model.ExecutionOutcomeStale, &price, "position already closed")
		}

		executed, err := tx.ConditionalOrders.Transition(ctx, order.ID, model.OrderStatusesInto(model.OrderStatusExecuted), map[string]interface{}{
			"status":          model.OrderStatusExecuted,
			"execution_price": price,
			"executed_at":     now,
		})
		if err != nil {
			return storeError("mark order executed", err)
		}
		if executed == 0 {
			// cancelled after it was read; undo the close
			return ErrOrderNotActive
		}

		siblings, err := tx.ConditionalOrders.CancelOpenByPosition(ctx, position.ID, order.OrderType.Opposite())
		if err != nil {
			return storeError("cancel opposite leg", err)
		}
		result.CancelledOrderIDs = siblings

		if err := tx.Positions.SetLegStatus(ctx, position.ID, order.OrderType, order.ID, model.OrderStatusExecuted); err != nil {
			return storeError("mirror leg status", err)
		}
		for _, id := range siblings {
			if err := tx.Positions.SetLegStatus(ctx, position.ID, order.OrderType.Opposite(), id, model.OrderStatusCancelled); err != nil {
				return storeError("mirror leg status", err)
			}
		}

		return e.record(ctx, tx, result, order, model.ExecutionOutcomeExecuted, &price, "")
	})
	if err != nil {
		err = storeError("execute conditional order", err)
		if errors.Is(err, ErrOrderNotActive) {
			metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), "rejected").Inc()
		} else {
			metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), model.ExecutionOutcomeFailed).Inc()
		}
		e.capture(ctx, "Execute", err, "conditional_order", order.ID)
		log.WithError(err).Warn("Conditional order execution failed")
		return nil, err
	}

	if len(result.CancelledOrderIDs) > 0 {
		metrics.OrderCancelled.WithLabelValues("conditional").Add(float64(len(result.CancelledOrderIDs)))
	}

	if result.Order, err = e.ledger.ConditionalOrders.FindByID(ctx, order.ID); err != nil {
		return nil, storeError("reload conditional order", err)
	}
	if result.Position, err = e.ledger.Positions.FindByID(ctx, position.ID); err != nil {
		return nil, storeError("reload position", err)
	}

	if stale {
		metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), model.ExecutionOutcomeStale).Inc()
		log.Info("Position already closed, conditional order cancelled")
		return result, ErrPositionAlreadyClosed
	}

	metrics.ConditionalExecuted.WithLabelValues(string(order.OrderType), model.ExecutionOutcomeExecuted).Inc()
	log.WithFields(logrus.Fields{
		"execution_price": price.String(),
		"realized_pnl":    pnl.String(),
		"cancelled":       result.CancelledOrderIDs,
	}).Info("Conditional order executed, position closed")

	return result, nil
}

// fail marks an active order failed and logs the attempt.
func (e *ExecutionEngine) fail(ctx context.Context, order *model.ConditionalOrder, reason string) error {
	return e.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		affected, err := tx.ConditionalOrders.Transition(ctx, order.ID, model.OrderStatusesInto(model.OrderStatusFailed), map[string]interface{}{
			"status": model.OrderStatusFailed,
		})
		if err != nil {
			return storeError("mark order failed", err)
		}
		if affected == 0 {
			return nil
		}
		return e.record(ctx, tx, &ExecutionResult{}, order, model.ExecutionOutcomeFailed, nil, reason)
	})
}

func (e *ExecutionEngine) record(
	ctx context.Context,
	tx *repository.Ledger,
	result *ExecutionResult,
	order *model.ConditionalOrder,
	outcome string,
	price *decimal.Decimal,
	reason string,
) error {
	positionID := order.PositionID
	entry := &model.ExecutionLog{
		OrderKind:  model.ExecutionKindConditional,
		OrderID:    order.ID,
		PositionID: &positionID,
		RoomID:     order.TradingRoomID,
		Outcome:    outcome,
		Price:      price,
		Reason:     reason,
		CreatedAt:  e.now(),
	}
	if err := tx.ExecutionLogs.Create(ctx, entry); err != nil {
		return storeError("write execution log", err)
	}
	result.Reference = entry.Reference
	return nil
}
