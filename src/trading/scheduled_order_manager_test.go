package trading

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tradingroom/src/model"
)

func scheduledRequest(roomID uint) CreateScheduledOrderRequest {
	return CreateScheduledOrderRequest{
		RoomID:       roomID,
		UserID:       7,
		Symbol:       "BTCUSDT",
		Side:         model.SideLong,
		Quantity:     dec("10"),
		TriggerPrice: dec("100"),
		Leverage:     10,
		FeeRate:      decPtr("0.00125"),
	}
}

func TestCreateScheduledOrderReservesNothing(t *testing.T) {
	m := newTestManagers(t)
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.TakeProfit = leg("110")

	order, err := m.scheduled.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.True(t, order.TpEnabled)
	assert.NotEmpty(t, order.ClientOrderID)
	requireDecimal(t, "1000", roomBalance(t, m.ledger, room.ID))

	pending, err := m.scheduled.ListPending(context.Background(), room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateScheduledOrderValidatesLegsAgainstExpectedEntry(t *testing.T) {
	m := newTestManagers(t)
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.OrderPrice = decPtr("98")
	req.StopLoss = leg("99") // below trigger but above the limit price

	_, err := m.scheduled.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidTpSlPrice)
	assert.Zero(t, countRows(t, m.ledger, &model.ScheduledOrder{}))

	req = scheduledRequest(room.ID)
	req.TriggerPrice = dec("0")
	_, err = m.scheduled.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestExecuteScheduledOrderOpensFilledPosition(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.TakeProfit = leg("110")
	req.StopLoss = leg("90")
	order, err := m.scheduled.Create(ctx, req)
	require.NoError(t, err)

	_, err = m.scheduled.Execute(ctx, order.ID, decPtr("100.5"))
	require.ErrorIs(t, err, ErrTriggerNotReached)

	stored, err := m.scheduled.Get(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	result, err := m.scheduled.Execute(ctx, order.ID, decPtr("100"))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusExecuted, result.Order.Status)
	require.NotNil(t, result.Order.PositionID)
	assert.Equal(t, result.Position.ID, *result.Order.PositionID)
	require.NotNil(t, result.Order.ExecutionPrice)
	requireDecimal(t, "100", *result.Order.ExecutionPrice)
	assert.NotEmpty(t, result.Reference)

	position := result.Position
	assert.Equal(t, model.PositionStatusFilled, position.Status)
	assert.Equal(t, model.OrderTypeLimit, position.OrderType)
	assert.Equal(t, model.OrderStatusActive, position.TpStatus)
	assert.Equal(t, model.OrderStatusActive, position.SlStatus)
	requireDecimal(t, "898.75", roomBalance(t, m.ledger, room.ID))

	_, err = m.scheduled.Execute(ctx, order.ID, decPtr("100"))
	require.ErrorIs(t, err, ErrOrderNotActive)
	assert.EqualValues(t, 1, countRows(t, m.ledger, &model.Position{}))
}

func TestExecuteScheduledOrderPrefersOrderPrice(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.Side = model.SideShort
	req.OrderPrice = decPtr("101")
	order, err := m.scheduled.Create(ctx, req)
	require.NoError(t, err)

	result, err := m.scheduled.Execute(ctx, order.ID, decPtr("100.5"))
	require.NoError(t, err)
	requireDecimal(t, "101", result.Position.EntryPrice)
	assert.Equal(t, model.SideShort, result.Position.Side)
}

func TestExecuteScheduledOrderWithoutBalanceMarksFailed(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "50")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	_, err = m.scheduled.Execute(ctx, order.ID, nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	stored, err := m.scheduled.Get(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
	assert.Nil(t, stored.PositionID)

	requireDecimal(t, "50", roomBalance(t, m.ledger, room.ID))
	assert.Zero(t, countRows(t, m.ledger, &model.Position{}))

	logs, err := m.ledger.ExecutionLogs.ListByOrder(ctx, model.ExecutionKindScheduled, order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ExecutionOutcomeFailed, logs[0].Outcome)
}

func TestCancelScheduledOrder(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	_, err = m.scheduled.Cancel(ctx, 99, order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	cancelled, err := m.scheduled.Cancel(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)

	_, err = m.scheduled.Execute(ctx, order.ID, nil)
	require.ErrorIs(t, err, ErrOrderNotActive)

	again, err := m.scheduled.Cancel(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, again.Status)
}

func TestCancelExecutedScheduledOrderIsNoop(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)
	_, err = m.scheduled.Execute(ctx, order.ID, nil)
	require.NoError(t, err)

	stored, err := m.scheduled.Cancel(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusExecuted, stored.Status)
}

func TestCreateScheduledOrderReplaysClientOrderID(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.ClientOrderID = "sched-1"

	first, err := m.scheduled.Create(ctx, req)
	require.NoError(t, err)
	second, err := m.scheduled.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, countRows(t, m.ledger, &model.ScheduledOrder{}))
}

func TestExecuteScheduledOrderStoreErrorLeavesOrderPending(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	failed := false
	err = m.ledger.DB().Callback().Create().Before("gorm:create").Register("test:drop_position_insert", func(tx *gorm.DB) {
		if failed || tx.Statement.Table != "positions" {
			return
		}
		failed = true
		_ = tx.AddError(errors.New("driver: bad connection"))
	})
	require.NoError(t, err)

	_, err = m.scheduled.Execute(ctx, order.ID, decPtr("100"))
	require.ErrorIs(t, err, ErrStore)

	stored, err := m.scheduled.Get(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)
	assert.Empty(t, stored.FailureReason)
	requireDecimal(t, "1000", roomBalance(t, m.ledger, room.ID))
	assert.Zero(t, countRows(t, m.ledger, &model.Position{}))
	assert.Zero(t, countRows(t, m.ledger, &model.ExecutionLog{}))

	result, err := m.scheduled.Execute(ctx, order.ID, decPtr("100"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusExecuted, result.Order.Status)
	requireDecimal(t, "898.75", roomBalance(t, m.ledger, room.ID))
}

func TestCancelRacingExecutionKeepsExecuted(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	// the execution commits between the cancel's read and its guarded update
	afterScheduledOrderRead(t, m.ledger, "test:execute_after_read", func(db *gorm.DB) {
		require.NoError(t, db.Exec("UPDATE scheduled_orders SET status = ? WHERE id = ?", model.OrderStatusExecuted, order.ID).Error)
	})

	stored, err := m.scheduled.Cancel(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusExecuted, stored.Status)
}

func TestExecuteRacingCancelIsNotActive(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	// the cancel commits between the execution's read and its transaction
	afterScheduledOrderRead(t, m.ledger, "test:cancel_after_read", func(db *gorm.DB) {
		require.NoError(t, db.Exec("UPDATE scheduled_orders SET status = ? WHERE id = ?", model.OrderStatusCancelled, order.ID).Error)
	})

	_, err = m.scheduled.Execute(ctx, order.ID, decPtr("100"))
	require.ErrorIs(t, err, ErrOrderNotActive)

	stored, err := m.scheduled.Get(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	requireDecimal(t, "1000", roomBalance(t, m.ledger, room.ID))
	assert.Zero(t, countRows(t, m.ledger, &model.Position{}))
}

func TestCreateScheduledOrderConcurrentTokenReturnsWinner(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	req := scheduledRequest(room.ID)
	req.ClientOrderID = "sched-race"

	// a competing request inserts the same token after the lookup missed
	var rival *model.ScheduledOrder
	inserted := false
	err := m.ledger.DB().Callback().Create().Before("gorm:begin_transaction").Register("test:rival_insert", func(tx *gorm.DB) {
		if inserted || tx.Statement.Table != "scheduled_orders" {
			return
		}
		inserted = true
		dest, ok := tx.Statement.Dest.(*model.ScheduledOrder)
		require.True(t, ok)
		copied := *dest
		copied.ID = 0
		rival = &copied
		require.NoError(t, m.ledger.ScheduledOrders.Create(ctx, rival))
	})
	require.NoError(t, err)

	order, err := m.scheduled.Create(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, rival)
	assert.Equal(t, rival.ID, order.ID)
	assert.EqualValues(t, 1, countRows(t, m.ledger, &model.ScheduledOrder{}))
}

func TestOpenCannotTakeScheduledPositionToken(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	room := seedRoom(t, m.ledger, "1000")

	order, err := m.scheduled.Create(ctx, scheduledRequest(room.ID))
	require.NoError(t, err)

	req := longRequest(room.ID)
	req.ClientOrderID = scheduledPositionToken(order.ID)
	_, err = m.positions.Open(ctx, req)
	require.ErrorIs(t, err, ErrValidation)

	result, err := m.scheduled.Execute(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, scheduledPositionToken(order.ID), result.Position.ClientOrderID)
}

func TestTruncateReasonKeepsRunesWhole(t *testing.T) {
	reason := strings.Repeat("a", 254) + "é"
	require.Len(t, reason, 256)

	cut := truncateReason(reason, failureReasonLimit)
	assert.Len(t, cut, 254)
	assert.True(t, utf8.ValidString(cut))

	assert.Equal(t, "short", truncateReason("short", failureReasonLimit))
}
