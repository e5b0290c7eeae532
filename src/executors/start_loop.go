package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradingroom/src/connectors"
	"tradingroom/src/metrics"
	"tradingroom/src/repository"
	"tradingroom/src/tp_sl"
	"tradingroom/src/trading"
)

// PriceOracle quotes the current price of a symbol.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NewPriceOracle builds the oracle selected by source.
func NewPriceOracle(source string, cfg connectors.Config) (PriceOracle, error) {
	switch source {
	case PriceSourceHTTP, "":
		return connectors.NewPriceClient(cfg), nil
	case PriceSourceCandles:
		return connectors.NewCandleOracle(repository.NewOHLCVRepository(), cfg.CandleMaxAge), nil
	default:
		return nil, fmt.Errorf("price source %s not supported", source)
	}
}

// PassSummary counts what one price-check pass did.
type PassSummary struct {
	Filled    int
	Executed  int
	Scheduled int
	Stale     int
	Skipped   int
	Errors    int
}

// Loop is the background price check: it fills limit entries, fires TP/SL
// orders and executes scheduled orders whose price condition holds.
type Loop struct {
	logger    *logrus.Entry
	oracle    PriceOracle
	ledger    *repository.Ledger
	positions *trading.PositionManager
	engine    *trading.ExecutionEngine
	scheduled *trading.ScheduledOrderManager
	batchSize int
}

func NewLoop(logger *logrus.Entry, oracle PriceOracle, ledger *repository.Ledger, exceptions trading.ExceptionRecorder) *Loop {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Loop{
		logger:    logger,
		oracle:    oracle,
		ledger:    ledger,
		positions: trading.NewPositionManager(logger, ledger, exceptions),
		engine:    trading.NewExecutionEngine(logger, ledger, exceptions),
		scheduled: trading.NewScheduledOrderManager(logger, ledger, exceptions),
		batchSize: 500,
	}
}

// WithBatchSize caps how many rows of each kind a pass loads.
func (l *Loop) WithBatchSize(size int) *Loop {
	if size > 0 {
		l.batchSize = size
	}
	return l
}

// StartLoop runs a pass every LOOP_PERIOD until ctx is done.
func (l *Loop) StartLoop(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.New("loop period must be positive")
	}

	ticker := time.NewTicker(period) // Set up a ticker that fires periodically
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopped")
			return nil

		case <-ticker.C:
			summary, err := l.RunOnce(ctx)
			if err != nil {
				metrics.PriceCheckPass.WithLabelValues("error").Inc()
				l.logger.WithError(err).Error("Price check pass failed")
				continue
			}
			metrics.PriceCheckPass.WithLabelValues("ok").Inc()
			l.logger.WithFields(logrus.Fields{
				"filled":    summary.Filled,
				"executed":  summary.Executed,
				"scheduled": summary.Scheduled,
				"stale":     summary.Stale,
				"skipped":   summary.Skipped,
				"errors":    summary.Errors,
			}).Debug("loop tick")
		}
	}
}

// RunOnce performs one pass. Failures of single items are logged and counted;
// only a failure to load the work lists aborts the pass.
func (l *Loop) RunOnce(ctx context.Context) (PassSummary, error) {
	summary := PassSummary{}
	prices := newPriceCache(l.oracle)

	pending, err := l.ledger.Positions.ListPending(ctx, l.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list pending positions: %w", err)
	}
	for _, position := range pending {
		price, ok := prices.get(ctx, l.logger, position.Symbol)
		if !ok {
			summary.Skipped++
			continue
		}
		if !tp_sl.EntryTriggered(position.Side, position.EntryPrice, price) {
			continue
		}
		if _, err := l.positions.Fill(ctx, position.ID, &price); err != nil {
			l.itemFailed(&summary, err, "position", position.ID)
			continue
		}
		summary.Filled++
	}

	// listed after the fills so legs activated above are seen in this pass
	orders, err := l.ledger.ConditionalOrders.ListActive(ctx, l.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list active conditional orders: %w", err)
	}
	for _, order := range orders {
		price, ok := prices.get(ctx, l.logger, order.Symbol)
		if !ok {
			summary.Skipped++
			continue
		}
		if !tp_sl.Triggered(order.OrderType, order.Side, order.TriggerPrice, price) {
			continue
		}
		if _, err := l.engine.Execute(ctx, order.ID, &price); err != nil {
			if errors.Is(err, trading.ErrPositionAlreadyClosed) {
				summary.Stale++
				l.logger.WithField("order_id", order.ID).Info("Conditional order was stale, position already closed")
				continue
			}
			l.itemFailed(&summary, err, "conditional_order", order.ID)
			continue
		}
		summary.Executed++
	}

	scheduled, err := l.ledger.ScheduledOrders.ListPending(ctx, 0, l.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list pending scheduled orders: %w", err)
	}
	for _, order := range scheduled {
		price, ok := prices.get(ctx, l.logger, order.Symbol)
		if !ok {
			summary.Skipped++
			continue
		}
		if !tp_sl.EntryTriggered(order.Side, order.TriggerPrice, price) {
			continue
		}
		if _, err := l.scheduled.Execute(ctx, order.ID, &price); err != nil {
			l.itemFailed(&summary, err, "scheduled_order", order.ID)
			continue
		}
		summary.Scheduled++
	}

	return summary, nil
}

func (l *Loop) itemFailed(summary *PassSummary, err error, entity string, id uint) {
	summary.Errors++
	entry := l.logger.WithFields(logrus.Fields{"entity": entity, "id": id}).WithError(err)
	if errors.Is(err, trading.ErrOrderNotActive) {
		// lost a race with a cancel or another executor
		entry.Info("Item no longer actionable")
		return
	}
	entry.Warn("Price check item failed")
}

// priceCache asks the oracle at most once per symbol and pass.
type priceCache struct {
	oracle PriceOracle
	quotes map[string]*decimal.Decimal
}

func newPriceCache(oracle PriceOracle) *priceCache {
	return &priceCache{oracle: oracle, quotes: map[string]*decimal.Decimal{}}
}

func (c *priceCache) get(ctx context.Context, log *logrus.Entry, symbol string) (decimal.Decimal, bool) {
	if quote, seen := c.quotes[symbol]; seen {
		if quote == nil {
			return decimal.Zero, false
		}
		return *quote, true
	}

	price, err := c.oracle.CurrentPrice(ctx, symbol)
	if err != nil || !price.IsPositive() {
		c.quotes[symbol] = nil
		log.WithField("symbol", symbol).WithError(err).Warn("No usable price, skipping symbol this pass")
		return decimal.Zero, false
	}
	c.quotes[symbol] = &price
	return price, true
}
