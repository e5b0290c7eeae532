package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/database"
	"tradingroom/src/model"
)

// ScheduledOrderRepository handles pending entry orders.
type ScheduledOrderRepository struct {
	db *gorm.DB
}

// NewScheduledOrderRepository creates a new repository instance using the main read/write database.
func NewScheduledOrderRepository() *ScheduledOrderRepository {
	logger.WithField("component", "ScheduledOrderRepository").
		Info("Creating new ScheduledOrderRepository with MainDB")

	return &ScheduledOrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ScheduledOrderRepository) WithDB(db *gorm.DB) *ScheduledOrderRepository {
	return &ScheduledOrderRepository{db: db}
}

func (r *ScheduledOrderRepository) Create(ctx context.Context, order *model.ScheduledOrder) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "ScheduledOrderRepository",
		"op":      "Create",
		"room_id": order.TradingRoomID,
		"symbol":  order.Symbol,
		"side":    order.Side,
		"trigger": order.TriggerPrice.String(),
	}).Debug("Creating scheduled order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ScheduledOrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create scheduled order")
		return err
	}
	return nil
}

// FindByID returns (nil, nil) if the order is not found.
func (r *ScheduledOrderRepository) FindByID(ctx context.Context, id uint) (*model.ScheduledOrder, error) {
	var order model.ScheduledOrder

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ScheduledOrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch scheduled order")
		return nil, err
	}
	return &order, nil
}

// FindByClientOrderID returns (nil, nil) if no order of the room carries token.
func (r *ScheduledOrderRepository) FindByClientOrderID(ctx context.Context, roomID uint, token string) (*model.ScheduledOrder, error) {
	var order model.ScheduledOrder

	err := r.db.WithContext(ctx).
		Where("trading_room_id = ? AND client_order_id = ?", roomID, token).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListPending returns open scheduled orders, optionally for one room.
func (r *ScheduledOrderRepository) ListPending(ctx context.Context, roomID uint, limit int) ([]model.ScheduledOrder, error) {
	if limit <= 0 {
		limit = 500
	}

	query := r.db.WithContext(ctx).
		Where("status IN ?", model.OpenOrderStatuses())
	if roomID != 0 {
		query = query.Where("trading_room_id = ?", roomID)
	}

	var orders []model.ScheduledOrder
	if err := query.Order("id ASC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition applies patch only while the order status is one of from.
func (r *ScheduledOrderRepository) Transition(
	ctx context.Context,
	id uint,
	from []model.OrderStatus,
	patch map[string]interface{},
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ScheduledOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(patch)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ScheduledOrderRepository",
			"op":   "Transition",
			"id":   id,
		}).WithError(res.Error).Error("Failed to transition scheduled order")
		return 0, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":          "ScheduledOrderRepository",
		"op":            "Transition",
		"id":            id,
		"status":        patch["status"],
		"rows_affected": res.RowsAffected,
	}).Debug("Scheduled order transition applied")

	return res.RowsAffected, nil
}
