package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps the job queue and websocket fan-out on separate
// connections so a blocking BLPOP never delays a PUBLISH.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queueClient, err := dialRedis(ctx, opt, "chatforms-queue")
	if err != nil {
		return nil, err
	}

	pubsubClient, err := dialRedis(ctx, opt, "chatforms-pubsub")
	if err != nil {
		queueClient.Close()
		return nil, err
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

// dialRedis copies base, names the connection for CLIENT LIST and pings it.
func dialRedis(ctx context.Context, base *redis.Options, name string) (*redis.Client, error) {
	opt := *base
	opt.ClientName = name
	client := redis.NewClient(&opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", name, err)
	}
	return client, nil
}

// Ping checks both connections.
func (r *RedisClients) Ping(ctx context.Context) error {
	if err := r.Queue.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis queue: %w", err)
	}
	if err := r.PubSub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis pubsub: %w", err)
	}
	return nil
}

func (r *RedisClients) Close() error {
	return errors.Join(r.Queue.Close(), r.PubSub.Close())
}
