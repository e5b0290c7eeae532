package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradingroom/src/database"
	"tradingroom/src/executors"
	"tradingroom/src/repository"
)

// Executor runs the background price check until interrupted.
type Executor struct {
	Log *logrus.Entry
}

func (t *Executor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	if config.Loop.PriceSource == executors.PriceSourceCandles {
		// Initialize read-only database
		if err := database.InitReadOnlyDB(); err != nil {
			logrus.WithError(err).Error("Failed to connect to read-only database")
			return err
		}
	}

	oracle, err := executors.NewPriceOracle(config.Loop.PriceSource, config.Connectors)
	if err != nil {
		return err
	}

	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "executor")
	}

	loop := executors.NewLoop(log, oracle, repository.NewLedger(), repository.NewExceptionRepository()).
		WithBatchSize(config.Loop.LoopBatchSize)

	log.WithFields(logrus.Fields{
		"price_source": config.Loop.PriceSource,
		"period":       config.Loop.LoopPeriod.String(),
	}).Info("Starting price check loop")

	if err := loop.StartLoop(ctx, config.Loop.LoopPeriod); err != nil {
		log.WithError(err).Error("Failed to start price check loop")
		return err
	}

	return nil
}
