package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

// OpenPositionRequest carries everything needed to open a position.
type OpenPositionRequest struct {
	RoomID uint
	UserID uint
	// ClientOrderID makes the request idempotent within the room. A fresh
	// token is generated when empty.
	ClientOrderID string

	Symbol     string
	Side       model.Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
	OrderType  model.OrderType
	// FeeRate nil means the configured default.
	FeeRate *decimal.Decimal

	TakeProfit tp_sl.Leg
	StopLoss   tp_sl.Leg
}

// PositionManager opens positions against a room balance.
type PositionManager struct {
	service
}

func NewPositionManager(logger *logrus.Entry, ledger *repository.Ledger, exceptions ExceptionRecorder) *PositionManager {
	return &PositionManager{service: newService(logger, ledger, exceptions, "position_manager")}
}

// Open validates req, then debits the room and inserts the position with its
// TP/SL orders in one transaction. Validation and balance failures leave the
// store untouched.
func (m *PositionManager) Open(ctx context.Context, req OpenPositionRequest) (*model.Position, error) {
	req, err := m.normalizeOpen(req)
	if err != nil {
		metrics.PositionOpenFailed.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.ClientOrderID != "" {
		existing, err := m.ledger.Positions.FindByClientOrderID(ctx, req.RoomID, req.ClientOrderID)
		if err != nil {
			err = storeError("find position by client order id", err)
			m.capture(ctx, "Open", err, "trading_room", req.RoomID)
			return nil, err
		}
		if existing != nil {
			return m.replay(existing, req)
		}
	} else {
		req.ClientOrderID = utils.NewClientOrderID()
	}

	terms := risk.Calculate(req.Side, req.Quantity, req.EntryPrice, req.Leverage, *req.FeeRate)

	status := model.PositionStatusFilled
	if req.OrderType == model.OrderTypeLimit {
		status = model.PositionStatusPending
	}

	var position *model.Position
	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		p, err := openInTx(ctx, tx, req, terms, status, m.now())
		if err != nil {
			return err
		}
		position = p
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent request with the same token won
			existing, findErr := m.ledger.Positions.FindByClientOrderID(ctx, req.RoomID, req.ClientOrderID)
			if findErr == nil && existing != nil {
				return m.replay(existing, req)
			}
		}

		err = storeError("open position", err)
		m.rejectOpen(err)
		m.capture(ctx, "Open", err, "trading_room", req.RoomID)
		m.logger.WithFields(logrus.Fields{
			"room_id":    req.RoomID,
			"user_id":    req.UserID,
			"symbol":     req.Symbol,
			"total_cost": terms.TotalCost.String(),
		}).WithError(err).Warn("Open position rejected")
		return nil, err
	}

	metrics.PositionOpened.WithLabelValues(string(position.Side), string(position.OrderType)).Inc()
	m.logger.WithFields(logrus.Fields{
		"position_id": position.ID,
		"room_id":     position.RoomID,
		"status":      position.Status,
		"total_cost":  terms.TotalCost.String(),
	}).Info("Position opened")

	return position, nil
}

func (m *PositionManager) replay(existing *model.Position, req OpenPositionRequest) (*model.Position, error) {
	if existing.UserID != req.UserID {
		return nil, validationError("client order id %q already used in room %d", req.ClientOrderID, req.RoomID)
	}

	m.logger.WithFields(logrus.Fields{
		"position_id":     existing.ID,
		"client_order_id": req.ClientOrderID,
	}).Info("Open request replayed, returning existing position")
	return existing, nil
}

func (m *PositionManager) rejectOpen(err error) {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		metrics.PositionOpenFailed.WithLabelValues("insufficient_balance").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.PositionOpenFailed.WithLabelValues("not_found").Inc()
	default:
		metrics.PositionOpenFailed.WithLabelValues("store").Inc()
	}
}

func (m *PositionManager) normalizeOpen(req OpenPositionRequest) (OpenPositionRequest, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.ClientOrderID = strings.TrimSpace(req.ClientOrderID)

	if req.OrderType == "" {
		req.OrderType = model.OrderTypeMarket
	}
	if req.FeeRate == nil {
		rate := m.config.FeeRate()
		req.FeeRate = &rate
	}

	leverage, err := checkEntry(req.RoomID, req.UserID, req.Symbol, req.Side, req.Quantity, req.Leverage, *req.FeeRate, m.config.MaxLeverage)
	if err != nil {
		return req, err
	}
	req.Leverage = leverage

	if !req.OrderType.Valid() {
		return req, validationError("order type must be market or limit, got %q", req.OrderType)
	}
	if !req.EntryPrice.IsPositive() {
		return req, validationError("entry price must be positive")
	}
	if len(req.ClientOrderID) > 64 {
		return req, validationError("client order id is longer than 64 characters")
	}
	if strings.HasPrefix(req.ClientOrderID, scheduledTokenPrefix) {
		return req, validationError("client order id prefix %q is reserved", scheduledTokenPrefix)
	}

	if err := tp_sl.ValidateLegs(req.Side, req.EntryPrice, req.TakeProfit, req.StopLoss); err != nil {
		return req, wrapLegError(err)
	}
	return req, nil
}

// checkEntry validates the fields shared by positions and scheduled orders
// and returns the effective leverage.
func checkEntry(roomID, userID uint, symbol string, side model.Side, quantity decimal.Decimal, leverage int, feeRate decimal.Decimal, maxLeverage int) (int, error) {
	if roomID == 0 {
		return 0, validationError("room id is required")
	}
	if userID == 0 {
		return 0, validationError("user id is required")
	}
	if symbol == "" {
		return 0, validationError("symbol is required")
	}
	if !side.Valid() {
		return 0, validationError("side must be long or short, got %q", side)
	}
	if !quantity.IsPositive() {
		return 0, validationError("quantity must be positive")
	}
	if feeRate.IsNegative() {
		return 0, validationError("fee rate must not be negative")
	}

	if leverage == 0 {
		leverage = 1
	}
	if leverage < 1 {
		return 0, validationError("leverage must be at least 1, got %d", leverage)
	}
	if maxLeverage > 0 && leverage > maxLeverage {
		return 0, validationError("leverage %d exceeds the maximum of %d", leverage, maxLeverage)
	}
	return leverage, nil
}

// wrapLegError keeps both ErrValidation and ErrInvalidTpSlPrice in the chain.
func wrapLegError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// openInTx is the atomic open path shared with scheduled order execution.
// tx must be a transactional ledger; any error rolls everything back.
func openInTx(
	ctx context.Context,
	tx *repository.Ledger,
	req OpenPositionRequest,
	terms risk.Terms,
	status model.PositionStatus,
	now time.Time,
) (*model.Position, error) {
	room, err := tx.Rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		return nil, storeError("find room", err)
	}
	if room == nil {
		return nil, notFound("trading room", req.RoomID)
	}
	if terms.TotalCost.GreaterThan(room.VirtualBalance) {
		return nil, ErrInsufficientBalance
	}

	debited, err := tx.Rooms.Debit(ctx, room.ID, terms.TotalCost)
	if err != nil {
		return nil, storeError("debit room", err)
	}
	if debited == 0 {
		// balance changed between the read and the guarded debit
		return nil, ErrInsufficientBalance
	}

	position := &model.Position{
		RoomID:           req.RoomID,
		UserID:           req.UserID,
		ClientOrderID:    req.ClientOrderID,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Quantity:         req.Quantity,
		EntryPrice:       req.EntryPrice,
		Leverage:         req.Leverage,
		Fee:              terms.OpenFee,
		InitialMargin:    terms.InitialMargin,
		LiquidationPrice: terms.LiquidationPrice,
		OrderType:        req.OrderType,
		Status:           status,
		OpenedAt:         now,
	}
	if err := tx.Positions.Create(ctx, position); err != nil {
		return nil, storeError("create position", err)
	}

	legStatus := legStatusFor(status)
	patch := map[string]interface{}{}

	for _, leg := range []struct {
		kind model.ConditionalOrderType
		leg  tp_sl.Leg
	}{
		{model.ConditionalOrderTakeProfit, req.TakeProfit},
		{model.ConditionalOrderStopLoss, req.StopLoss},
	} {
		if !leg.leg.Active() {
			continue
		}

		order := newLegOrder(position, leg.kind, leg.leg, legStatus)
		if err := tx.ConditionalOrders.Create(ctx, order); err != nil {
			return nil, storeError("create conditional order", err)
		}
		linkLeg(position, patch, leg.kind, leg.leg.TriggerPrice, order.ID, legStatus)
	}

	if len(patch) > 0 {
		if _, err := tx.Positions.UpdateLinkage(ctx, position.ID, patch); err != nil {
			return nil, storeError("link conditional orders", err)
		}
	}

	return position, nil
}

// legStatusFor is the status a new TP/SL order gets on a position in status.
func legStatusFor(status model.PositionStatus) model.OrderStatus {
	if status == model.PositionStatusFilled {
		return model.OrderStatusActive
	}
	return model.OrderStatusPending
}

func newLegOrder(position *model.Position, kind model.ConditionalOrderType, leg tp_sl.Leg, status model.OrderStatus) *model.ConditionalOrder {
	return &model.ConditionalOrder{
		PositionID:    position.ID,
		TradingRoomID: position.RoomID,
		UserID:        position.UserID,
		OrderType:     kind,
		Side:          position.Side,
		Symbol:        position.Symbol,
		Quantity:      position.Quantity,
		TriggerPrice:  *leg.TriggerPrice,
		OrderPrice:    leg.OrderPrice,
		Status:        status,
	}
}

// linkLeg records an enabled leg both on the in-memory position and in patch.
func linkLeg(
	position *model.Position,
	patch map[string]interface{},
	kind model.ConditionalOrderType,
	price *decimal.Decimal,
	orderID uint,
	status model.OrderStatus,
) {
	enabledCol, priceCol, orderCol, statusCol := model.LegColumns(kind)
	patch[enabledCol] = true
	patch[priceCol] = *price
	patch[orderCol] = orderID
	patch[statusCol] = status

	id := orderID
	p := *price
	if kind == model.ConditionalOrderTakeProfit {
		position.TpEnabled, position.TakeProfitPrice, position.TpOrderID, position.TpStatus = true, &p, &id, status
	} else {
		position.SlEnabled, position.StopLossPrice, position.SlOrderID, position.SlStatus = true, &p, &id, status
	}
}

// unlinkLeg clears a disabled leg both on the in-memory position and in patch.
func unlinkLeg(position *model.Position, patch map[string]interface{}, kind model.ConditionalOrderType) {
	enabledCol, priceCol, orderCol, statusCol := model.LegColumns(kind)
	patch[enabledCol] = false
	patch[priceCol] = nil
	patch[orderCol] = nil
	patch[statusCol] = ""

	if kind == model.ConditionalOrderTakeProfit {
		position.TpEnabled, position.TakeProfitPrice, position.TpOrderID, position.TpStatus = false, nil, nil, ""
	} else {
		position.SlEnabled, position.StopLossPrice, position.SlOrderID, position.SlStatus = false, nil, nil, ""
	}
}

// Fill promotes a pending limit position to filled and activates its pending
// TP/SL orders. When price is given it must satisfy the entry condition.
// Filling an already filled position is a no-op.
func (m *PositionManager) Fill(ctx context.Context, positionID uint, price *decimal.Decimal) (*model.Position, error) {
	position, err := m.ledger.Positions.FindByID(ctx, positionID)
	if err != nil {
		err = storeError("find position", err)
		m.capture(ctx, "Fill", err, "position", positionID)
		return nil, err
	}
	if position == nil {
		return nil, notFound("position", positionID)
	}

	switch position.Status {
	case model.PositionStatusFilled:
		return position, nil
	case model.PositionStatusClosed:
		return nil, ErrPositionAlreadyClosed
	}

	if price != nil {
		if !price.IsPositive() {
			return nil, validationError("price must be positive")
		}
		if !tp_sl.EntryTriggered(position.Side, position.EntryPrice, *price) {
			return nil, ErrTriggerNotReached
		}
	}

	filled := false
	err = m.ledger.Atomic(ctx, func(tx *repository.Ledger) error {
		affected, err := tx.Positions.Fill(ctx, positionID)
		if err != nil {
			return storeError("fill position", err)
		}
		if affected == 0 {
			return nil
		}
		filled = true

		activated, err := tx.ConditionalOrders.ActivatePendingByPosition(ctx, positionID)
		if err != nil {
			return storeError("activate conditional orders", err)
		}
		// legs cancelled while pending keep their mirrored status
		for _, kind := range []model.ConditionalOrderType{model.ConditionalOrderTakeProfit, model.ConditionalOrderStopLoss} {
			orderID := position.LegOrderID(kind)
			if orderID == nil || !containsID(activated, *orderID) {
				continue
			}
			if err := tx.Positions.SetLegStatus(ctx, positionID, kind, *orderID, model.OrderStatusActive); err != nil {
				return storeError("mirror leg status", err)
			}
		}
		return nil
	})
	if err != nil {
		m.capture(ctx, "Fill", err, "position", positionID)
		return nil, err
	}

	if filled {
		metrics.PositionFilled.Inc()
		m.logger.WithField("position_id", positionID).Info("Position filled")
	}

	return m.reload(ctx, positionID)
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Get returns a position. A position of another user is reported as not found.
// userID 0 skips the ownership check.
func (m *PositionManager) Get(ctx context.Context, userID, positionID uint) (*model.Position, error) {
	position, err := m.reload(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && position.UserID != userID {
		return nil, notFound("position", positionID)
	}
	return position, nil
}

// ListOpen returns the pending and filled positions of a room, newest first.
func (m *PositionManager) ListOpen(ctx context.Context, roomID uint, userID uint) ([]model.Position, error) {
	positions, err := m.ledger.Positions.Search(ctx, repository.PositionSearchOptions{
		RoomID:   roomID,
		UserID:   userID,
		OpenOnly: true,
	})
	if err != nil {
		return nil, storeError("search positions", err)
	}
	return positions, nil
}

func (m *PositionManager) reload(ctx context.Context, positionID uint) (*model.Position, error) {
	position, err := m.ledger.Positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, storeError("find position", err)
	}
	if position == nil {
		return nil, notFound("position", positionID)
	}
	return position, nil
}
