package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradingroom/cmd/executor"
	"tradingroom/cmd/ohlcvcrypto"
	"tradingroom/src/database"
	"tradingroom/src/handler"
	"tradingroom/src/logging"
	"tradingroom/src/model"
	"tradingroom/src/repository"
	"tradingroom/src/server"
)

var Version string

func main() {
	// a missing .env is fine: the environment may be set by the orchestrator
	_ = godotenv.Load()

	closer := logging.Setup(logging.GetConfig())
	defer func() { _ = closer.Close() }()

	app := cli.NewApp()
	app.Name = "Trading Room CMD"
	app.Usage = "The trading room engine command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serverCMD,
		executorCMD,
		migrateCMD,
		ohlcvCryptoCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the HTTP API",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve the positions, conditional orders and scheduled orders API`,
	}
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the price check loop that fills, triggers and executes orders`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "run database migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Apply schema and data migrations to the main database and exit`,
	}
	ohlcvCryptoCMD = cli.Command{
		Name:        "ohlcv_crypto",
		Usage:       "run OHLCV crypto",
		Action:      ohlcvCryptoAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Import 1m candles used by the candle price source`,
	}
)

func serverAction(_ *cli.Context) error {
	logrus.Info("Starting server CMD")
	log := logrus.WithField("cmd", "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}

	services := handler.DefaultServices(log, repository.NewLedger(), repository.NewExceptionRepository())
	if err := server.StartServer(ctx, server.GetConfig(), services); err != nil {
		log.WithError(err).Error("Server stopped with error")
		return err
	}
	return nil
}

func executorAction(_ *cli.Context) error {
	logrus.Info("Starting executor CMD")

	executorLoop := &executor.Executor{Log: logrus.WithField("cmd", "executor")}
	err := executorLoop.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// migrateAction relies on InitMainDB running the migrations.
func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}
	return nil
}

// ohlcvCryptoAction will go get 1m OHLCV candles for the configured pair
func ohlcvCryptoAction(_ *cli.Context) error {
	logrus.Info("Starting OHLCV crypto CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}
	if err := database.MainDB.AutoMigrate(&model.OHLCVCrypto1m{}); err != nil {
		logrus.WithError(err).Error("Failed to migrate candle table")
		return err
	}

	_ohlcv := &ohlcvcrypto.OHLCVCrypto{
		Log: logrus.WithField("cmd", "ohlcv_crypto"),
		DB:  database.MainDB,
	}

	err := _ohlcv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}
