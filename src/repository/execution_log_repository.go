package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/model"
	"tradingroom/src/utils"
)

// ExecutionLogRepository appends execution audit rows.
type ExecutionLogRepository struct {
	db *gorm.DB
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExecutionLogRepository) WithDB(db *gorm.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

// Create inserts entry, assigning a fresh Reference when it has none.
func (r *ExecutionLogRepository) Create(ctx context.Context, entry *model.ExecutionLog) error {
	if entry.Reference == "" {
		entry.Reference = utils.NewReference()
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "ExecutionLogRepository",
			"op":         "Create",
			"order_kind": entry.OrderKind,
			"order_id":   entry.OrderID,
		}).WithError(err).Error("Failed to store execution log")
		return err
	}
	return nil
}

// ListByOrder returns the attempts recorded for one order, oldest first.
func (r *ExecutionLogRepository) ListByOrder(ctx context.Context, kind string, orderID uint) ([]model.ExecutionLog, error) {
	var entries []model.ExecutionLog

	err := r.db.WithContext(ctx).
		Where("order_kind = ? AND order_id = ?", kind, orderID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
