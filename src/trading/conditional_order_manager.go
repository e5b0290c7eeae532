package trading

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradingroom/src/metrics"
	"tradingroom/src/model"
	"tradingroom/src/repository"
	"tradingroom/src/tp_sl"
)

// TpSlUpdate is the requested state of the exit legs of a position.
// A nil leg is left untouched; a leg with Enabled false is disabled.
type TpSlUpdate struct {
	TakeProfit *tp_sl.Leg
	StopLoss   *tp_sl.Leg
}

// CreateConditionalOrderRequest attaches a single TP or SL order to a position,
// replacing the order currently linked to that leg.
type CreateConditionalOrderRequest struct {
	PositionID   uint
	OrderType    model.ConditionalOrderType
	TriggerPrice decimal.Decimal
	OrderPrice   *decimal.Decimal
}

// ConditionalOrderManager creates, edits and cancels TP/SL orders.
type ConditionalOrderManager struct {
	service
}

func NewConditionalOrderManager(logger *logrus.Entry, ledger *repository.Ledger, exceptions ExceptionRecorder) *ConditionalOrderManager {
	return &ConditionalOrderManager{service: newService(logger, ledger, exceptions, "conditional_order_manager")}
}

// Upsert applies update to the legs of a position. Both legs are validated
// against the position side and entry before anything is written, and all
// writes share one transaction.
func (m *ConditionalOrderManager) Upsert(ctx context.Context, userID, positionID uint, update TpSlUpdate) (*model.Position, error) {
	position, err := m.openPosition(ctx, userID, positionID)
	if err != nil {
		return nil, err
	}

	var tp, sl tp_sl.Leg
	if update.TakeProfit != nil {
		tp = *update.TakeProfit
	}
	if update.StopLoss != nil {
		sl = *update.StopLoss
	}
	if err := tp_sl.ValidateLegs(position.Side, position.EntryPrice, tp, sl); err != nil {
		return nil, wrapLegError(err)
	}

	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		// re-read inside the transaction; linkage may have moved since
		current, err := tx.Positions.FindByID(ctx, positionID)
		if err != nil {
			return storeError("find position", err)
		}
		if current == nil {
			return notFound("position", positionID)
		}
		if current.Status == model.PositionStatusClosed {
			return ErrPositionAlreadyClosed
		}

		patch := map[string]interface{}{}
		if update.TakeProfit != nil {
			if err := m.applyLeg(ctx, tx, current, patch, model.ConditionalOrderTakeProfit, tp); err != nil {
				return err
			}
		}
		if update.StopLoss != nil {
			if err := m.applyLeg(ctx, tx, current, patch, model.ConditionalOrderStopLoss, sl); err != nil {
				return err
			}
		}
		if len(patch) == 0 {
			return nil
		}

		affected, err := tx.Positions.UpdateLinkage(ctx, positionID, patch)
		if err != nil {
			return storeError("update position linkage", err)
		}
		if affected == 0 {
			return ErrPositionAlreadyClosed
		}
		return nil
	})
	if err != nil {
		m.capture(ctx, "Upsert", err, "position", positionID)
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"position_id": positionID,
		"tp":          update.TakeProfit != nil,
		"sl":          update.StopLoss != nil,
	}).Info("Position tp/sl updated")

	return m.position(ctx, positionID)
}

// applyLeg brings one leg to the requested state, adding the linkage columns to patch.
func (m *ConditionalOrderManager) applyLeg(
	ctx context.Context,
	tx *repository.Ledger,
	position *model.Position,
	patch map[string]interface{},
	kind model.ConditionalOrderType,
	leg tp_sl.Leg,
) error {
	linked := position.LegOrderID(kind)

	if !leg.Active() {
		if linked != nil {
			if _, err := cancelOrder(ctx, tx, *linked); err != nil {
				return err
			}
		}
		unlinkLeg(position, patch, kind)
		return nil
	}

	status := legStatusFor(position.Status)

	if linked != nil {
		affected, err := tx.ConditionalOrders.Transition(ctx, *linked, model.OpenOrderStatuses(), map[string]interface{}{
			"trigger_price": *leg.TriggerPrice,
			"order_price":   leg.OrderPrice,
			"quantity":      position.Quantity,
			"status":        status,
		})
		if err != nil {
			return storeError("update conditional order", err)
		}
		if affected == 1 {
			linkLeg(position, patch, kind, leg.TriggerPrice, *linked, status)
			return nil
		}
		// the linked order is terminal: it is history, a new one replaces it
	}

	order := newLegOrder(position, kind, leg, status)
	if err := tx.ConditionalOrders.Create(ctx, order); err != nil {
		return storeError("create conditional order", err)
	}
	linkLeg(position, patch, kind, leg.TriggerPrice, order.ID, status)
	return nil
}

// Create attaches a new TP or SL order to a position. The open order of the
// same kind, if any, is cancelled and the new one is linked in its place.
func (m *ConditionalOrderManager) Create(ctx context.Context, userID uint, req CreateConditionalOrderRequest) (*model.ConditionalOrder, error) {
	if !req.OrderType.Valid() {
		return nil, validationError("order type must be take_profit or stop_loss, got %q", req.OrderType)
	}

	position, err := m.openPosition(ctx, userID, req.PositionID)
	if err != nil {
		return nil, err
	}

	trigger := req.TriggerPrice
	leg := tp_sl.Leg{Enabled: true, TriggerPrice: &trigger, OrderPrice: req.OrderPrice}
	if err := tp_sl.ValidateLeg(req.OrderType, position.Side, position.EntryPrice, leg); err != nil {
		return nil, wrapLegError(err)
	}

	var order *model.ConditionalOrder
	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		current, err := tx.Positions.FindByID(ctx, req.PositionID)
		if err != nil {
			return storeError("find position", err)
		}
		if current == nil {
			return notFound("position", req.PositionID)
		}
		if current.Status == model.PositionStatusClosed {
			return ErrPositionAlreadyClosed
		}

		cancelled, err := tx.ConditionalOrders.CancelOpenByPosition(ctx, current.ID, req.OrderType)
		if err != nil {
			return storeError("cancel replaced orders", err)
		}
		if len(cancelled) > 0 {
			metrics.OrderCancelled.WithLabelValues("conditional").Add(float64(len(cancelled)))
		}

		status := legStatusFor(current.Status)
		order = newLegOrder(current, req.OrderType, leg, status)
		if err := tx.ConditionalOrders.Create(ctx, order); err != nil {
			return storeError("create conditional order", err)
		}

		patch := map[string]interface{}{}
		linkLeg(current, patch, req.OrderType, leg.TriggerPrice, order.ID, status)
		affected, err := tx.Positions.UpdateLinkage(ctx, current.ID, patch)
		if err != nil {
			return storeError("update position linkage", err)
		}
		if affected == 0 {
			return ErrPositionAlreadyClosed
		}
		return nil
	})
	if err != nil {
		m.capture(ctx, "Create", err, "position", req.PositionID)
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"position_id": order.PositionID,
		"order_type":  order.OrderType,
		"status":      order.Status,
	}).Info("Conditional order created")

	return order, nil
}

// Cancel moves an open order to cancelled. Cancelling a terminal order is a
// no-op that returns the order unchanged. The position linkage is left as is
// and its leg status follows the order.
func (m *ConditionalOrderManager) Cancel(ctx context.Context, userID, orderID uint) (*model.ConditionalOrder, error) {
	order, err := m.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	var affected int64
	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		n, err := cancelOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		affected = n
		if n == 0 {
			return nil
		}
		if err := tx.Positions.SetLegStatus(ctx, order.PositionID, order.OrderType, orderID, model.OrderStatusCancelled); err != nil {
			return storeError("mirror leg status", err)
		}
		return nil
	})
	if err != nil {
		m.capture(ctx, "Cancel", err, "conditional_order", orderID)
		return nil, err
	}
	if affected > 0 {
		m.logger.WithField("order_id", orderID).Info("Conditional order cancelled")
	}

	// an execution may have won the race; report whatever is stored now
	return m.Get(ctx, userID, orderID)
}

// Get returns an order. userID 0 skips the ownership check.
func (m *ConditionalOrderManager) Get(ctx context.Context, userID, orderID uint) (*model.ConditionalOrder, error) {
	order, err := m.ledger.ConditionalOrders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError("find conditional order", err)
	}
	if order == nil || (userID != 0 && order.UserID != userID) {
		return nil, notFound("conditional order", orderID)
	}
	return order, nil
}

// ListByPosition returns every order ever attached to a position, oldest first.
func (m *ConditionalOrderManager) ListByPosition(ctx context.Context, userID, positionID uint) ([]model.ConditionalOrder, error) {
	position, err := m.position(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && position.UserID != userID {
		return nil, notFound("position", positionID)
	}

	orders, err := m.ledger.ConditionalOrders.ListByPosition(ctx, positionID)
	if err != nil {
		return nil, storeError("list conditional orders", err)
	}
	return orders, nil
}

func (m *ConditionalOrderManager) position(ctx context.Context, positionID uint) (*model.Position, error) {
	position, err := m.ledger.Positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, storeError("find position", err)
	}
	if position == nil {
		return nil, notFound("position", positionID)
	}
	return position, nil
}

// openPosition loads a position owned by userID that is not closed.
func (m *ConditionalOrderManager) openPosition(ctx context.Context, userID, positionID uint) (*model.Position, error) {
	position, err := m.position(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && position.UserID != userID {
		return nil, notFound("position", positionID)
	}
	if position.Status == model.PositionStatusClosed {
		return nil, ErrPositionAlreadyClosed
	}
	return position, nil
}

// cancelOrder is the guarded cancel shared by every cancel path.
func cancelOrder(ctx context.Context, ledger *repository.Ledger, orderID uint) (int64, error) {
	affected, err := ledger.ConditionalOrders.Transition(ctx, orderID,
		model.OrderStatusesInto(model.OrderStatusCancelled),
		map[string]interface{}{"status": model.OrderStatusCancelled},
	)
	if err != nil {
		return 0, storeError("cancel conditional order", err)
	}
	if affected > 0 {
		metrics.OrderCancelled.WithLabelValues("conditional").Inc()
	}
	return affected, nil
}
