package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradingroom/src/repository"
)

// CandleSource is the slice of the OHLCV store the candle oracle reads.
type CandleSource interface {
	LatestClose(ctx context.Context, symbol string, to time.Time, maxAge time.Duration) (decimal.Decimal, time.Time, error)
}

// CandleOracle quotes the close of the latest stored 1m candle.
type CandleOracle struct {
	source CandleSource
	maxAge time.Duration
	now    func() time.Time
}

func NewCandleOracle(source CandleSource, maxAge time.Duration) *CandleOracle {
	return &CandleOracle{source: source, maxAge: maxAge, now: time.Now}
}

func (o *CandleOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	price, _, err := o.source.LatestClose(ctx, symbol, o.now().UTC(), o.maxAge)
	if err != nil {
		if errors.Is(err, repository.ErrNoCandles) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
		}
		return decimal.Zero, err
	}
	return price, nil
}

// StaticOracle serves fixed prices. Used for replays and tests.
type StaticOracle map[string]decimal.Decimal

func (o StaticOracle) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := o[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return price, nil
}
