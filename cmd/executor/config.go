package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"tradingroom/src/connectors"
	"tradingroom/src/executors"
)

type Config struct {
	Loop       executors.Config
	Connectors connectors.Config
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config.Loop); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	if err := envconfig.Process("", &config.Connectors); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
