package persistence

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOptions_Defaults(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Addr: "localhost:6379", MinIdleConns: -1})

	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 0, opts.MinIdleConns)
	assert.Equal(t, 5*time.Minute, opts.ConnMaxIdleTime)
}

func TestRedisOptions_KeepsExplicitValues(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Addr: "r:6379", PoolSize: 5, DB: 2, ReadTimeout: time.Second})

	assert.Equal(t, 5, opts.PoolSize)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	client, err := OpenRedis(context.Background(), logger, config.RedisConfig{})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.EqualError(t, err, "redis addr is required")
}
