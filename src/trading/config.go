package trading

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	DefaultFeeRate string `envconfig:"TRADING_DEFAULT_FEE_RATE" default:"0.0005"`
	MaxLeverage    int    `envconfig:"TRADING_MAX_LEVERAGE" default:"125"`
	// ExceptionService is the service name stored on persisted exceptions.
	ExceptionService string `envconfig:"TRADING_EXCEPTION_SERVICE" default:"trading"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// FeeRate parses DefaultFeeRate.
func (c Config) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.DefaultFeeRate)
	if err != nil || rate.IsNegative() {
		panic(fmt.Errorf("invalid TRADING_DEFAULT_FEE_RATE %q", c.DefaultFeeRate))
	}
	return rate
}
