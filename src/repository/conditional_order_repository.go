package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/database"
	"tradingroom/src/model"
)

// ConditionalOrderRepository handles TP/SL orders.
type ConditionalOrderRepository struct {
	db *gorm.DB
}

// NewConditionalOrderRepository creates a new repository instance using the main read/write database.
func NewConditionalOrderRepository() *ConditionalOrderRepository {
	logger.WithField("component", "ConditionalOrderRepository").
		Info("Creating new ConditionalOrderRepository with MainDB")

	return &ConditionalOrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ConditionalOrderRepository) WithDB(db *gorm.DB) *ConditionalOrderRepository {
	return &ConditionalOrderRepository{db: db}
}

func (r *ConditionalOrderRepository) Create(ctx context.Context, order *model.ConditionalOrder) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "ConditionalOrderRepository",
		"op":          "Create",
		"position_id": order.PositionID,
		"order_type":  order.OrderType,
		"trigger":     order.TriggerPrice.String(),
	}).Debug("Creating conditional order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConditionalOrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create conditional order")
		return err
	}
	return nil
}

// FindByID returns (nil, nil) if the order is not found.
func (r *ConditionalOrderRepository) FindByID(ctx context.Context, id uint) (*model.ConditionalOrder, error) {
	var order model.ConditionalOrder

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ConditionalOrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch conditional order")
		return nil, err
	}
	return &order, nil
}

// ListByPosition returns every order ever attached to a position, oldest first.
func (r *ConditionalOrderRepository) ListByPosition(ctx context.Context, positionID uint) ([]model.ConditionalOrder, error) {
	var orders []model.ConditionalOrder

	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListActive returns the orders the price-check job has to watch.
func (r *ConditionalOrderRepository) ListActive(ctx context.Context, limit int) ([]model.ConditionalOrder, error) {
	if limit <= 0 {
		limit = 500
	}

	var orders []model.ConditionalOrder
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusActive).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition applies patch to an order only while its status is one of from.
// The affected-row count is the authoritative answer to "did this caller win".
func (r *ConditionalOrderRepository) Transition(
	ctx context.Context,
	id uint,
	from []model.OrderStatus,
	patch map[string]interface{},
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ConditionalOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(patch)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConditionalOrderRepository",
			"op":   "Transition",
			"id":   id,
		}).WithError(res.Error).Error("Failed to transition conditional order")
		return 0, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":          "ConditionalOrderRepository",
		"op":            "Transition",
		"id":            id,
		"status":        patch["status"],
		"rows_affected": res.RowsAffected,
	}).Debug("Conditional order transition applied")

	return res.RowsAffected, nil
}

// CancelOpenByPosition cancels every open order of one kind attached to a position.
func (r *ConditionalOrderRepository) CancelOpenByPosition(
	ctx context.Context,
	positionID uint,
	kind model.ConditionalOrderType,
) ([]uint, error) {
	var ids []uint

	err := r.db.WithContext(ctx).
		Model(&model.ConditionalOrder{}).
		Where("position_id = ? AND order_type = ? AND status IN ?", positionID, kind, model.OrderStatusesInto(model.OrderStatusCancelled)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).
		Model(&model.ConditionalOrder{}).
		Where("id IN ? AND status IN ?", ids, model.OrderStatusesInto(model.OrderStatusCancelled)).
		Update("status", model.OrderStatusCancelled).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "ConditionalOrderRepository",
			"op":          "CancelOpenByPosition",
			"position_id": positionID,
			"order_type":  kind,
		}).WithError(err).Error("Failed to cancel sibling orders")
		return nil, err
	}
	return ids, nil
}

// ActivatePendingByPosition promotes the pending orders of a position that
// just filled and returns the ids it activated.
func (r *ConditionalOrderRepository) ActivatePendingByPosition(ctx context.Context, positionID uint) ([]uint, error) {
	var ids []uint

	err := r.db.WithContext(ctx).
		Model(&model.ConditionalOrder{}).
		Where("position_id = ? AND status IN ?", positionID, model.OrderStatusesInto(model.OrderStatusActive)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).
		Model(&model.ConditionalOrder{}).
		Where("id IN ? AND status IN ?", ids, model.OrderStatusesInto(model.OrderStatusActive)).
		Update("status", model.OrderStatusActive).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "ConditionalOrderRepository",
			"op":          "ActivatePendingByPosition",
			"position_id": positionID,
		}).WithError(err).Error("Failed to activate pending orders")
		return nil, err
	}
	return ids, nil
}
