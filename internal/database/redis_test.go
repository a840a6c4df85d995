package database

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	base := &redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond}
	client, err := dialRedis(ctx, base, "chatforms-queue")

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "chatforms-queue")
	assert.Empty(t, base.ClientName)
}

func TestNewRedisClients_BadURL(t *testing.T) {
	_, err := NewRedisClients("not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
