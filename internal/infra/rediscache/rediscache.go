// Package rediscache is a Redis cache for bankroll account snapshots. Writes
// always go to Postgres; the service stores the fresh snapshot after every
// committed mutation and fills misses on the read path.
//
// Each snapshot is a hash holding the account version next to the JSON body.
// A put only lands when its version is at least the stored one, so a reader
// that loaded an account before a commit cannot replace the commit's
// snapshot.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fastprodman/paperledger/internal/config"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
)

// Connect parses cfg.URL and pings the server.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	err = rdb.Ping(ctx).Err()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const fieldData = "data"

// putIfNewer writes the snapshot hash at KEYS[1] unless its stored version is
// greater than ARGV[1]. ARGV[2] is the body and ARGV[3] the TTL in ms (none
// when <= 0). Returns 1 when written.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

type AccountCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func New(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *AccountCache {
	if log == nil {
		log = slog.Default()
	}

	return &AccountCache{rdb: rdb, ttl: ttl, log: log}
}

type snapshot struct {
	UserID          uint64     `json:"user_id"`
	Balance         int64      `json:"balance"`
	StartingBalance int64      `json:"starting_balance"`
	AllTimeHigh     int64      `json:"all_time_high"`
	BustCount       int        `json:"bust_count"`
	LastBustAt      *time.Time `json:"last_bust_at,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Get returns the cached snapshot. Any Redis failure counts as a miss.
func (c *AccountCache) Get(ctx context.Context, userID uint64) (accounts.Account, bool) {
	data, err := c.rdb.HGet(ctx, accountKey(userID), fieldData).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("account cache get", "user_id", userID, "err", err)
		}
		return accounts.Account{}, false
	}

	var s snapshot
	err = json.Unmarshal(data, &s)
	if err != nil {
		c.log.Warn("account cache decode", "user_id", userID, "err", err)
		return accounts.Account{}, false
	}

	return accounts.Account(s), true
}

// Put stores acct unless the cache already holds a newer version of it.
func (c *AccountCache) Put(ctx context.Context, acct accounts.Account) {
	data, err := json.Marshal(snapshot(acct))
	if err != nil {
		return
	}

	stored, err := putIfNewer.Run(ctx, c.rdb,
		[]string{accountKey(acct.UserID)},
		acct.Version, data, c.ttl.Milliseconds(),
	).Bool()
	if err != nil {
		c.log.Warn("account cache put", "user_id", acct.UserID, "err", err)
		return
	}

	if !stored {
		c.log.Debug("account cache kept newer snapshot", "user_id", acct.UserID, "version", acct.Version)
	}
}

func accountKey(userID uint64) string { return fmt.Sprintf("paperledger:account:%d", userID) }
