package trading

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

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
	"tradingroom/src/tp_sl"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestLedger returns a ledger over a private in-memory sqlite database.
// A single connection serializes transactions the way row locks would.
func newTestLedger(t *testing.T) *repository.Ledger {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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

func testLogger() *logrus.Entry {
	logger, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(logger)
}

type testManagers struct {
	ledger     *repository.Ledger
	positions  *PositionManager
	orders     *ConditionalOrderManager
	engine     *ExecutionEngine
	scheduled  *ScheduledOrderManager
	exceptions *recordingExceptions
}

func newTestManagers(t *testing.T) testManagers {
	t.Helper()
	ledger := newTestLedger(t)
	exceptions := &recordingExceptions{}

	m := testManagers{
		ledger:     ledger,
		positions:  NewPositionManager(testLogger(), ledger, exceptions),
		orders:     NewConditionalOrderManager(testLogger(), ledger, exceptions),
		engine:     NewExecutionEngine(testLogger(), ledger, exceptions),
		scheduled:  NewScheduledOrderManager(testLogger(), ledger, exceptions),
		exceptions: exceptions,
	}
	clock := func() time.Time { return fixedNow }
	m.positions.now = clock
	m.orders.now = clock
	m.engine.now = clock
	m.scheduled.now = clock
	return m
}

type recordingExceptions struct {
	recorded []*model.Exception
}

func (r *recordingExceptions) Create(_ context.Context, exc *model.Exception) error {
	r.recorded = append(r.recorded, exc)
	return nil
}

func seedRoom(t *testing.T, ledger *repository.Ledger, balance string) *model.TradingRoom {
	t.Helper()
	room := &model.TradingRoom{Name: "room", VirtualBalance: dec(balance)}
	require.NoError(t, ledger.Rooms.Create(context.Background(), room))
	return room
}

func roomBalance(t *testing.T, ledger *repository.Ledger, roomID uint) decimal.Decimal {
	t.Helper()
	room, err := ledger.Rooms.FindByID(context.Background(), roomID)
	require.NoError(t, err)
	require.NotNil(t, room)
	return room.VirtualBalance
}

func countRows(t *testing.T, ledger *repository.Ledger, table interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, ledger.DB().Model(table).Count(&n).Error)
	return n
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got.String())
}

func leg(price string) tp_sl.Leg {
	return tp_sl.Leg{Enabled: true, TriggerPrice: decPtr(price)}
}

// longRequest costs 101.25: value 1000, margin 100 at 10x, fee 1.25.
func longRequest(roomID uint) OpenPositionRequest {
	return OpenPositionRequest{
		RoomID:     roomID,
		UserID:     7,
		Symbol:     "btcusdt",
		Side:       model.SideLong,
		Quantity:   dec("10"),
		EntryPrice: dec("100"),
		Leverage:   10,
		OrderType:  model.OrderTypeMarket,
		FeeRate:    decPtr("0.00125"),
	}
}

// afterScheduledOrderRead runs fn once, right after the next read of a
// scheduled order, to interleave a competing write with a manager call.
func afterScheduledOrderRead(t *testing.T, ledger *repository.Ledger, name string, fn func(db *gorm.DB)) {
	t.Helper()
	db := ledger.DB()
	fired := false
	err := db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "scheduled_orders" {
			return
		}
		fired = true
		fn(db)
	})
	require.NoError(t, err)
}
