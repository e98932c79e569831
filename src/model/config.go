package model

import "time"

// ----------------------------------------------------
// ================ Config ================
// LogConfig holds configuration for the global logger
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Format     string `envconfig:"LOG_FORMAT" default:"json"`
	Output     string `envconfig:"LOG_OUTPUT" default:"stdout"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339"`
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/inclination.log"`
}

// PollerConfig holds the refresh cycle settings
type PollerConfig struct {
	Command      string        `envconfig:"POLLER_COMMAND" default:"getnextinclination"`
	ResponseTag  string        `envconfig:"POLLER_RESPONSE_TAG" default:"R_getnextinclination"`
	Timeout      time.Duration `envconfig:"POLLER_TIMEOUT" default:"15s"`
	Attempts     int           `envconfig:"POLLER_ATTEMPTS" default:"3"`
	Interval     time.Duration `envconfig:"POLLER_INTERVAL" default:"500ms"`
	InitialDelay time.Duration `envconfig:"POLLER_INITIAL_DELAY" default:"500ms"`
	StrictDecode bool          `envconfig:"STRICT_DECODE" default:"true"`
}

// TransportConfig selects and configures the message-queue transport
type TransportConfig struct {
	Kind         string `envconfig:"TRANSPORT" default:"websocket"`
	BackendURL   string `envconfig:"BACKEND_URL" default:"ws://localhost:8080/ws"`
	RedisURL     string `envconfig:"REDIS_URL"`
	RequestQueue string `envconfig:"REDIS_REQUEST_QUEUE" default:"inclination:requests"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Addr        string `envconfig:"HTTP_ADDR" default:":8090"`
	ChartConfig string `envconfig:"CHART_CONFIG" default:"config.yaml"`
	Simulate    bool   `envconfig:"SIMULATE" default:"false"`
}
