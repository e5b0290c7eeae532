package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/model"
)

// RoomRepository reads trading rooms and mutates their virtual balance.
type RoomRepository struct {
	db *gorm.DB
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *RoomRepository) WithDB(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.TradingRoom) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "RoomRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create trading room")
		return err
	}
	return nil
}

// FindByID returns (nil, nil) if the room does not exist.
func (r *RoomRepository) FindByID(ctx context.Context, id uint) (*model.TradingRoom, error) {
	var room model.TradingRoom

	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "RoomRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trading room")
		return nil, err
	}
	return &room, nil
}

// Debit subtracts amount from the room balance only when the balance covers it.
// The returned count is 0 when the room is missing or the balance is too low;
// callers must treat that as a rejected debit, never clamp.
func (r *RoomRepository) Debit(ctx context.Context, id uint, amount decimal.Decimal) (int64, error) {
	logger.WithFields(map[string]interface{}{
		"repo":   "RoomRepository",
		"op":     "Debit",
		"id":     id,
		"amount": amount.String(),
	}).Debug("Debiting room balance")

	res := r.db.WithContext(ctx).
		Model(&model.TradingRoom{}).
		Where("id = ? AND virtual_balance >= ?", id, amount).
		Update("virtual_balance", gorm.Expr("virtual_balance - ?", amount))
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "RoomRepository",
			"op":   "Debit",
			"id":   id,
		}).WithError(res.Error).Error("Failed to debit room balance")
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
