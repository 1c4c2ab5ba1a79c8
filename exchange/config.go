package exchange

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/capdex/exchange/exchange/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig         `toml:"log"`
	DB     database.DBConfig `toml:"db"`
	API    APIConfig         `toml:"api"`
	Sweep  SweepConfig       `toml:"sweep"`
	Events EventsConfig      `toml:"events"`
}

type LogConfig struct {
	Level  slog.Level `toml:"level"`
	Prefix string     `toml:"prefix"`
}

type APIConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	AllowOrigins []string `toml:"allow_origins"`
}

type SweepConfig struct {
	// Seconds between finalization sweeps. The sweep is idempotent, so
	// multiple replicas may run it concurrently.
	IntervalSeconds int `toml:"interval_seconds"`
	BatchSize       int `toml:"batch_size"`
	Workers         int `toml:"workers"`
}

// Interval returns the sweep period, defaulting to one minute.
func (c SweepConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

type EventsConfig struct {
	// AMQP URL of the broker consumed by the notification service. Leave
	// empty to disable event publishing.
	URL   string `toml:"url"`
	Queue string `toml:"queue"`
}
