// Package config содержит логику чтения конфигурации сервиса доставки.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultGeocoderAddress — публичный экземпляр Nominatim.
const DefaultGeocoderAddress = "https://nominatim.openstreetmap.org"

// Config содержит параметры конфигурации сервиса доставки.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	AMQPURL         string        `env:"AMQP_URL"`
	GeocoderAddress string        `env:"GEOCODER_ADDRESS"`
	PollInterval    time.Duration `env:"POLL_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAMQPURL := cfg.AMQPURL
	envGeocoderAddress := cfg.GeocoderAddress
	envPollInterval := cfg.PollInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AMQPURL, "m", "", "AMQP broker URL for notifications")
	flag.StringVar(&cfg.GeocoderAddress, "g", DefaultGeocoderAddress, "geocoder base address")
	flag.DurationVar(&cfg.PollInterval, "p", 5*time.Second, "feed poll interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAMQPURL != "" {
		cfg.AMQPURL = envAMQPURL
	}
	if envGeocoderAddress != "" {
		cfg.GeocoderAddress = envGeocoderAddress
	}
	if envPollInterval != 0 {
		cfg.PollInterval = envPollInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return cfg, nil
}
