package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"

	"tradingroom/src/database"
	"tradingroom/src/handler"
	"tradingroom/src/logging"
	"tradingroom/src/repository"
	"tradingroom/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	_ = godotenv.Load()
	closer := logging.Setup(logging.GetConfig())
	defer func() { _ = closer.Close() }()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithField("app", APP_NAME)
	services := handler.DefaultServices(log, repository.NewLedger(), repository.NewExceptionRepository())
	if err := server.StartServer(ctx, server.GetConfig(), services); err != nil {
		log.WithError(err).Error("Server stopped with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
