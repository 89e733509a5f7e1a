package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/paperledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Comma separated; empty accepts any Origin on the events stream.
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" default:""`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Bankroll config.BankrollConfig
}
