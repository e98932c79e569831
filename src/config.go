package src

import (
	"fmt"

	"github.com/jwatral/qdomyos-zwift/src/model"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogConfig       model.LogConfig       `envconfig:""`
	PollerConfig    model.PollerConfig    `envconfig:""`
	TransportConfig model.TransportConfig `envconfig:""`
	ServerConfig    model.ServerConfig    `envconfig:""`
}

func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %v", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.TransportConfig.Kind {
	case "websocket", "redis":
	default:
		return fmt.Errorf("unknown transport %q (want websocket or redis)", c.TransportConfig.Kind)
	}
	if c.PollerConfig.Attempts < 1 {
		return fmt.Errorf("poller attempts must be at least 1, got %d", c.PollerConfig.Attempts)
	}
	if c.PollerConfig.Timeout <= 0 {
		return fmt.Errorf("poller timeout must be positive, got %s", c.PollerConfig.Timeout)
	}
	return nil
}
