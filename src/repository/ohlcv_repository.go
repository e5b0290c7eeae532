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

var ErrNoCandles = errors.New("no candles for symbol")

// OHLCVRepository reads one minute candles from the market data database.
type OHLCVRepository struct {
	db *gorm.DB
}

// NewOHLCVRepository creates a repository bound to the read-only database.
func NewOHLCVRepository() *OHLCVRepository {
	logger.WithField("component", "OHLCVRepository").
		Info("Creating new OHLCVRepository with ReadOnlyDB")

	return &OHLCVRepository{
		db: database.ReadOnlyDB,
	}
}

func NewOHLCVRepositoryWithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{
		db: db,
	}
}

// FetchRecentOHLCV1m returns up to limit candles closed at or before to, in
// ascending chronological order.
func (s *OHLCVRepository) FetchRecentOHLCV1m(
	ctx context.Context,
	symbol string,
	to time.Time,
	limit int,
) ([]model.OHLCVCrypto1m, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []model.OHLCVCrypto1m
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND datetime <= ?", symbol, to).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// reverse to ascending chronological order for easier logic
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// LatestClose returns the close of the newest candle at or before to, and the
// time of that candle. Candles older than maxAge are reported as ErrNoCandles
// when maxAge is positive.
func (s *OHLCVRepository) LatestClose(
	ctx context.Context,
	symbol string,
	to time.Time,
	maxAge time.Duration,
) (decimal.Decimal, time.Time, error) {
	rows, err := s.FetchRecentOHLCV1m(ctx, symbol, to, 1)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	if len(rows) == 0 {
		return decimal.Zero, time.Time{}, ErrNoCandles
	}

	last := rows[len(rows)-1]
	if maxAge > 0 && to.Sub(last.Datetime) > maxAge {
		logger.WithFields(map[string]interface{}{
			"repo":     "OHLCVRepository",
			"op":       "LatestClose",
			"symbol":   symbol,
			"datetime": last.Datetime,
		}).Warn("Latest candle is stale")
		return decimal.Zero, last.Datetime, ErrNoCandles
	}
	return last.Close, last.Datetime, nil
}
