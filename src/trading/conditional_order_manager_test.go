package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingroom/src/model"
	"tradingroom/src/tp_sl"
)

func openWithLegs(t *testing.T, m testManagers, tp, sl string) *model.Position {
	t.Helper()
	room := seedRoom(t, m.ledger, "1000")

	req := longRequest(room.ID)
	if tp != "" {
		req.TakeProfit = leg(tp)
	}
	if sl != "" {
		req.StopLoss = leg(sl)
	}

	position, err := m.positions.Open(context.Background(), req)
	require.NoError(t, err)
	return position
}

func TestUpsertUpdatesLinkedOrderInPlace(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	tp := leg("130")
	tp.OrderPrice = decPtr("129.5")
	updated, err := m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{TakeProfit: &tp})
	require.NoError(t, err)

	assert.Equal(t, *position.TpOrderID, *updated.TpOrderID)
	requireDecimal(t, "130", *updated.TakeProfitPrice)
	assert.Equal(t, *position.SlOrderID, *updated.SlOrderID, "untouched leg keeps its order")

	order, err := m.orders.Get(ctx, 7, *updated.TpOrderID)
	require.NoError(t, err)
	requireDecimal(t, "130", order.TriggerPrice)
	require.NotNil(t, order.OrderPrice)
	requireDecimal(t, "129.5", *order.OrderPrice)
	assert.Equal(t, model.OrderStatusActive, order.Status)
}

func TestUpsertDisablesLegAndCancelsOrder(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	updated, err := m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{StopLoss: &tp_sl.Leg{Enabled: false}})
	require.NoError(t, err)

	assert.False(t, updated.SlEnabled)
	assert.Nil(t, updated.StopLossPrice)
	assert.Nil(t, updated.SlOrderID)
	assert.True(t, updated.TpEnabled)

	order, err := m.orders.Get(ctx, 7, *position.SlOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, order.Status)
}

func TestUpsertEnablesMissingLeg(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "")
	require.Nil(t, position.SlOrderID)

	sl := leg("92")
	updated, err := m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{StopLoss: &sl})
	require.NoError(t, err)
	require.NotNil(t, updated.SlOrderID)
	assert.Equal(t, model.OrderStatusActive, updated.SlStatus)

	orders, err := m.orders.ListByPosition(ctx, 7, position.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestUpsertRejectsWholeRequestOnOneBadLeg(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	tp := leg("140")
	sl := leg("105") // above entry for a long
	_, err := m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{TakeProfit: &tp, StopLoss: &sl})
	require.ErrorIs(t, err, ErrInvalidTpSlPrice)

	stored, err := m.positions.Get(ctx, 7, position.ID)
	require.NoError(t, err)
	requireDecimal(t, "120", *stored.TakeProfitPrice)
	requireDecimal(t, "95", *stored.StopLossPrice)

	order, err := m.orders.Get(ctx, 7, *stored.TpOrderID)
	require.NoError(t, err)
	requireDecimal(t, "120", order.TriggerPrice)
}

func TestUpsertReplacesTerminalLinkedOrder(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "")

	_, err := m.orders.Cancel(ctx, 7, *position.TpOrderID)
	require.NoError(t, err)

	tp := leg("125")
	updated, err := m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{TakeProfit: &tp})
	require.NoError(t, err)
	assert.NotEqual(t, *position.TpOrderID, *updated.TpOrderID)

	old, err := m.orders.Get(ctx, 7, *position.TpOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, old.Status)
}

func TestCreateConditionalOrderSupersedesLinkedOrder(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	order, err := m.orders.Create(ctx, 7, CreateConditionalOrderRequest{
		PositionID:   position.ID,
		OrderType:    model.ConditionalOrderStopLoss,
		TriggerPrice: dec("97"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusActive, order.Status)

	previous, err := m.orders.Get(ctx, 7, *position.SlOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, previous.Status)

	stored, err := m.positions.Get(ctx, 7, position.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, *stored.SlOrderID)
	requireDecimal(t, "97", *stored.StopLossPrice)

	_, err = m.orders.Create(ctx, 7, CreateConditionalOrderRequest{
		PositionID:   position.ID,
		OrderType:    model.ConditionalOrderTakeProfit,
		TriggerPrice: dec("90"),
	})
	require.ErrorIs(t, err, ErrInvalidTpSlPrice)

	_, err = m.orders.Create(ctx, 7, CreateConditionalOrderRequest{
		PositionID:   position.ID,
		OrderType:    "trailing",
		TriggerPrice: dec("90"),
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCancelActiveOrderKeepsLinkage(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "")

	order, err := m.orders.Cancel(ctx, 7, *position.TpOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, order.Status)

	stored, err := m.positions.Get(ctx, 7, position.ID)
	require.NoError(t, err)
	assert.Equal(t, *position.TpOrderID, *stored.TpOrderID)
	assert.True(t, stored.TpEnabled)
	assert.Equal(t, model.OrderStatusCancelled, stored.TpStatus)
}

func TestCancelExecutedOrderIsNoop(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	_, err := m.engine.Execute(ctx, *position.TpOrderID, decPtr("121"))
	require.NoError(t, err)

	order, err := m.orders.Cancel(ctx, 7, *position.TpOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusExecuted, order.Status)
	require.NotNil(t, order.ExecutionPrice)
	requireDecimal(t, "121", *order.ExecutionPrice)
}

func TestCancelForeignOrderIsNotFound(t *testing.T) {
	m := newTestManagers(t)
	position := openWithLegs(t, m, "120", "")

	_, err := m.orders.Cancel(context.Background(), 99, *position.TpOrderID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertOnClosedPositionFails(t *testing.T) {
	m := newTestManagers(t)
	ctx := context.Background()
	position := openWithLegs(t, m, "120", "95")

	_, err := m.engine.Execute(ctx, *position.SlOrderID, nil)
	require.NoError(t, err)

	tp := leg("125")
	_, err = m.orders.Upsert(ctx, 7, position.ID, TpSlUpdate{TakeProfit: &tp})
	require.ErrorIs(t, err, ErrPositionAlreadyClosed)
}
