package config

import (
	"time"

	"github.com/fastprodman/paperledger/internal/amount"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

// RedisConfig enables the account snapshot cache when URL is set.
type RedisConfig struct {
	URL      string        `env:"REDIS_URL" default:""`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" default:"5s"`
}

type BankrollConfig struct {
	StartingBalance amount.Cents `env:"BANKROLL_STARTING_BALANCE" default:"1000.00"`
}
