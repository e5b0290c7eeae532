package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradingroom/src/database"
	"tradingroom/src/model"
)

// PositionRepository handles read/write operations for positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating PositionRepository with custom DB instance")

	return &PositionRepository{db: db}
}

// PositionSearchOptions narrows Search. Zero values are ignored.
type PositionSearchOptions struct {
	RoomID       uint
	UserID       uint
	Symbol       *string
	Status       *model.PositionStatus
	OpenOnly     bool
	OpenedAfter  *time.Time
	OpenedBefore *time.Time
	Limit        int
	Offset       int
}

// Create inserts a new position. The given position is updated with the generated ID.
func (r *PositionRepository) Create(ctx context.Context, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "Create",
		"room_id": position.RoomID,
		"symbol":  position.Symbol,
		"side":    position.Side,
		"qty":     position.Quantity.String(),
	}).Debug("Creating new position")

	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created successfully")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PositionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Position not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")
		return nil, err
	}

	return &position, nil
}

// FindByClientOrderID fetches the position created by the open request carrying token.
// Returns (nil, nil) if there is none.
func (r *PositionRepository) FindByClientOrderID(ctx context.Context, roomID uint, token string) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).
		Where("room_id = ? AND client_order_id = ?", roomID, token).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":            "PositionRepository",
			"op":              "FindByClientOrderID",
			"room_id":         roomID,
			"client_order_id": token,
		}).WithError(err).Error("Failed to fetch position by client order id")
		return nil, err
	}

	return &position, nil
}

// Search lists positions matching options, newest first.
func (r *PositionRepository) Search(ctx context.Context, options PositionSearchOptions) ([]model.Position, error) {
	query := r.db.WithContext(ctx).Model(&model.Position{})

	if options.RoomID != 0 {
		query = query.Where("room_id = ?", options.RoomID)
	}
	if options.UserID != 0 {
		query = query.Where("user_id = ?", options.UserID)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.OpenOnly {
		query = query.Where("status <> ?", model.PositionStatusClosed)
	}
	if options.OpenedAfter != nil {
		query = query.Where("opened_at >= ?", *options.OpenedAfter)
	}
	if options.OpenedBefore != nil {
		query = query.Where("opened_at <= ?", *options.OpenedBefore)
	}

	query = query.Order("opened_at DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var positions []model.Position
	if err := query.Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search positions")
		return nil, err
	}

	return positions, nil
}

// ListPending returns limit-entry positions still waiting to be filled.
func (r *PositionRepository) ListPending(ctx context.Context, limit int) ([]model.Position, error) {
	if limit <= 0 {
		limit = 500
	}

	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// Close moves a filled position to closed in a single guarded update.
// A zero count means another path already closed it (or it never filled).
func (r *PositionRepository) Close(
	ctx context.Context,
	id uint,
	closePrice decimal.Decimal,
	pnl decimal.Decimal,
	closedAt time.Time,
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status IN ?", id, model.PositionStatusesInto(model.PositionStatusClosed)).
		Updates(map[string]interface{}{
			"status":       model.PositionStatusClosed,
			"close_price":  closePrice,
			"closed_at":    closedAt,
			"realized_pnl": pnl,
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Close",
			"id":   id,
		}).WithError(res.Error).Error("Failed to close position")
		return 0, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":          "PositionRepository",
		"op":            "Close",
		"id":            id,
		"rows_affected": res.RowsAffected,
	}).Debug("Close position applied")

	return res.RowsAffected, nil
}

// Fill moves a pending limit position to filled.
func (r *PositionRepository) Fill(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status IN ?", id, model.PositionStatusesInto(model.PositionStatusFilled)).
		Update("status", model.PositionStatusFilled)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Fill",
			"id":   id,
		}).WithError(res.Error).Error("Failed to fill position")
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// UpdateLinkage patches TP/SL linkage columns of a position that is not closed.
func (r *PositionRepository) UpdateLinkage(ctx context.Context, id uint, patch map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status <> ?", id, model.PositionStatusClosed).
		Updates(patch)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "UpdateLinkage",
			"id":   id,
		}).WithError(res.Error).Error("Failed to update position tp/sl linkage")
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// SetLegStatus mirrors the status of a leg order onto the position, only while
// that order is still the one linked to the leg.
func (r *PositionRepository) SetLegStatus(
	ctx context.Context,
	id uint,
	kind model.ConditionalOrderType,
	orderID uint,
	status model.OrderStatus,
) error {
	_, _, orderColumn, statusColumn := model.LegColumns(kind)

	return r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND "+orderColumn+" = ?", id, orderID).
		Update(statusColumn, status).Error
}
