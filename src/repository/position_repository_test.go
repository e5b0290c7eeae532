package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradingroom/src/model"
)

func TestPositionRepositorySearch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	openedAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	positions := []model.Position{
		{ID: 1, RoomID: 1, UserID: 7, Symbol: "BTCUSDT", Status: model.PositionStatusFilled, OpenedAt: openedAt},
		{ID: 2, RoomID: 1, UserID: 7, Symbol: "ETHUSDT", Status: model.PositionStatusClosed, OpenedAt: openedAt.Add(24 * time.Hour)},
	}

	positionRows := func(returned ...model.Position) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "room_id", "user_id", "symbol", "status", "opened_at"})
		for _, p := range returned {
			rows.AddRow(p.ID, p.RoomID, p.UserID, p.Symbol, p.Status, p.OpenedAt)
		}
		return rows
	}

	t.Run("filters by room", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE room_id = $1 ORDER BY opened_at DESC, id DESC`)).
			WithArgs(uint(1)).
			WillReturnRows(positionRows(positions[1], positions[0]))

		results, err := repo.Search(context.Background(), PositionSearchOptions{RoomID: 1})
		if err != nil {
			t.Fatalf("unexpected error searching positions: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 positions for room 1, got %d", len(results))
		}
		if results[0].Symbol != "ETHUSDT" || results[1].Symbol != "BTCUSDT" {
			t.Fatalf("positions not returned in expected order: %+v", results)
		}
	})

	t.Run("filters by user, symbol and status", func(t *testing.T) {
		status := model.PositionStatusFilled
		filters := PositionSearchOptions{
			RoomID: 1,
			UserID: 7,
			Symbol: ptrString("BTCUSDT"),
			Status: &status,
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE room_id = $1 AND user_id = $2 AND symbol = $3 AND status = $4 ORDER BY opened_at DESC, id DESC`)).
			WithArgs(uint(1), uint(7), "BTCUSDT", "filled").
			WillReturnRows(positionRows(positions[0]))

		results, err := repo.Search(context.Background(), filters)
		if err != nil {
			t.Fatalf("unexpected error searching positions: %v", err)
		}
		if len(results) != 1 || results[0].ID != 1 {
			t.Fatalf("unexpected positions returned: %+v", results)
		}
	})

	t.Run("filters by opened window and paginates", func(t *testing.T) {
		filters := PositionSearchOptions{
			RoomID:       1,
			OpenedAfter:  ptrTime(openedAt.Add(-time.Hour)),
			OpenedBefore: ptrTime(openedAt.Add(36 * time.Hour)),
			Limit:        1,
			Offset:       1,
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE room_id = $1 AND opened_at >= $2 AND opened_at <= $3 ORDER BY opened_at DESC, id DESC LIMIT $4 OFFSET $5`)).
			WithArgs(uint(1), *filters.OpenedAfter, *filters.OpenedBefore, 1, 1).
			WillReturnRows(positionRows(positions[0]))

		results, err := repo.Search(context.Background(), filters)
		if err != nil {
			t.Fatalf("unexpected error searching positions: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 position for pagination, got %d", len(results))
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositoryFindByIDNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE "positions"."id" = $1 ORDER BY "positions"."id" LIMIT $2`)).
		WithArgs(uint(42), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	position, err := repo.FindByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("expected no error for a missing position, got %v", err)
	}
	if position != nil {
		t.Fatalf("expected nil position, got %+v", position)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositoryCloseIsGuardedByStatus(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	closeSQL := regexp.QuoteMeta(`UPDATE "positions" SET "close_price"=$1,"closed_at"=$2,"realized_pnl"=$3,"status"=$4,"updated_at"=$5 WHERE id = $6 AND status IN ($7)`)

	mock.ExpectBegin()
	mock.ExpectExec(closeSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	closedAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	affected, err := repo.Close(context.Background(), 5, decimal.NewFromInt(110), decimal.NewFromInt(100), closedAt)
	if err != nil {
		t.Fatalf("unexpected error closing position: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	// a second close loses the race: the predicate no longer matches
	mock.ExpectBegin()
	mock.ExpectExec(closeSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	affected, err = repo.Close(context.Background(), 5, decimal.NewFromInt(90), decimal.NewFromInt(-100), closedAt)
	if err != nil {
		t.Fatalf("unexpected error closing position twice: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected on the second close, got %d", affected)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestRoomRepositoryDebitRejectsWhenBalanceTooLow(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&RoomRepository{}).WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "trading_rooms" SET "virtual_balance"=virtual_balance - $1,"updated_at"=$2 WHERE id = $3 AND virtual_balance >= $4`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	affected, err := repo.Debit(context.Background(), 3, decimal.NewFromInt(5000))
	if err != nil {
		t.Fatalf("unexpected error debiting room: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected the debit to be rejected, got %d rows", affected)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestConditionalOrderRepositoryTransition(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&ConditionalOrderRepository{}).WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "conditional_orders" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status IN ($4,$5)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	affected, err := repo.Transition(context.Background(), 9,
		model.OrderStatusesInto(model.OrderStatusCancelled),
		map[string]interface{}{"status": model.OrderStatusCancelled},
	)
	if err != nil {
		t.Fatalf("unexpected error cancelling order: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func ptrString(val string) *string {
	return &val
}

func ptrTime(val time.Time) *time.Time {
	return &val
}
