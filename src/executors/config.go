package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	PriceSourceHTTP    = "http"
	PriceSourceCandles = "candles"
)

type Config struct {
	LoopPeriod    time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	LoopBatchSize int           `envconfig:"LOOP_BATCH_SIZE" default:"500"`
	PriceSource   string        `envconfig:"PRICE_SOURCE" default:"http"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
