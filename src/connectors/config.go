package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PriceBaseURL   string        `envconfig:"PRICE_BASE_URL" default:"https://api.binance.com"`
	PriceTickerURI string        `envconfig:"PRICE_TICKER_URI" default:"/api/v3/ticker/price"`
	PriceTimeout   time.Duration `envconfig:"PRICE_TIMEOUT" default:"15s"`

	// CandleMaxAge bounds how old the latest 1m candle may be before the
	// candle oracle refuses to quote from it. Zero disables the check.
	CandleMaxAge time.Duration `envconfig:"CANDLE_MAX_AGE" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
