package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/database"
)

// Ledger groups the repositories of every table the engine mutates so a
// multi-statement change can run against one transaction.
type Ledger struct {
	db *gorm.DB

	Rooms             *RoomRepository
	Positions         *PositionRepository
	ConditionalOrders *ConditionalOrderRepository
	ScheduledOrders   *ScheduledOrderRepository
	ExecutionLogs     *ExecutionLogRepository
}

// NewLedger creates a ledger bound to the main read/write database.
func NewLedger() *Ledger {
	logger.WithField("component", "Ledger").
		Info("Creating new Ledger with MainDB")

	return NewLedgerWithDB(database.MainDB)
}

// NewLedgerWithDB creates a ledger bound to db, which may be a transaction.
func NewLedgerWithDB(db *gorm.DB) *Ledger {
	return &Ledger{
		db:                db,
		Rooms:             &RoomRepository{db: db},
		Positions:         &PositionRepository{db: db},
		ConditionalOrders: &ConditionalOrderRepository{db: db},
		ScheduledOrders:   &ScheduledOrderRepository{db: db},
		ExecutionLogs:     &ExecutionLogRepository{db: db},
	}
}

// Atomic runs fn inside one database transaction. Every write fn performs
// through tx commits together or not at all.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx *Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewLedgerWithDB(tx))
	})
}

// DB exposes the underlying handle, mainly for tests and migrations.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}
