package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradingroom/src/database"
	"tradingroom/src/model"
	"tradingroom/src/repository"
)

type discardExceptions struct{}

func (discardExceptions) Create(context.Context, *model.Exception) error { return nil }

func newFlowLedger(t *testing.T) *repository.Ledger {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return repository.NewLedgerWithDB(db)
}

func TestTradingFlow(t *testing.T) {
	ledger := newFlowLedger(t)
	room := &model.TradingRoom{Name: "flow", VirtualBalance: decimal.NewFromInt(1000)}
	require.NoError(t, ledger.Rooms.Create(context.Background(), room))

	log, _ := logrustest.NewNullLogger()
	router := newTestRouter(DefaultServices(logrus.NewEntry(log), ledger, discardExceptions{}))

	open := fmt.Sprintf(`{"room_id":%d,"symbol":"BTCUSDT","side":"long","quantity":"10","entry_price":"100",
		"leverage":10,"fee_rate":"0.00125","order_type":"market",
		"take_profit":{"enabled":true,"trigger_price":"120"},
		"stop_loss":{"enabled":true,"trigger_price":"95"}}`, room.ID)
	rr := doRequest(router, http.MethodPost, "/api/positions", open, 7)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var position model.Position
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &position))
	require.Equal(t, model.PositionStatusFilled, position.Status)
	require.NotNil(t, position.TpOrderID)
	require.NotNil(t, position.SlOrderID)

	// another user cannot see it
	rr = doRequest(router, http.MethodGet, fmt.Sprintf("/api/positions/%d", position.ID), "", 8)
	require.Equal(t, http.StatusNotFound, rr.Code)

	// TP on the wrong side is rejected
	rr = doRequest(router, http.MethodPut, fmt.Sprintf("/api/positions/%d/tpsl", position.ID),
		`{"take_profit":{"enabled":true,"trigger_price":"90"}}`, 7)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = doRequest(router, http.MethodPut, fmt.Sprintf("/api/positions/%d/tpsl", position.ID),
		`{"take_profit":{"enabled":true,"trigger_price":"110"}}`, 7)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(router, http.MethodPost, fmt.Sprintf("/api/conditional-orders/%d/execute", *position.TpOrderID),
		`{"price":"111"}`, 7)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var executed executionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &executed))
	require.Equal(t, model.PositionStatusClosed, executed.Position.Status)
	require.True(t, decimal.NewFromInt(111).Equal(executed.ExecutionPrice))
	require.True(t, decimal.NewFromInt(110).Equal(*executed.Position.RealizedPnl))
	require.Equal(t, []uint{*position.SlOrderID}, executed.CancelledOrderIDs)
	require.NotEmpty(t, executed.Reference)

	// the sibling was cancelled with the close
	rr = doRequest(router, http.MethodPost, fmt.Sprintf("/api/conditional-orders/%d/execute", *position.SlOrderID), "", 7)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(router, http.MethodGet, fmt.Sprintf("/api/positions/%d/conditional-orders", position.ID), "", 7)
	require.Equal(t, http.StatusOK, rr.Code)
	var orders []model.ConditionalOrder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &orders))
	require.Len(t, orders, 2)
}
