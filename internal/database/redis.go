package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds the two broker connections: one for the compute job
// queue and cache, one dedicated to the delivery event queue so a blocked
// BRPOP on events never starves job traffic.
type RedisClients struct {
	Queue  *redis.Client
	Events *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Queue + cache client
	queueClient := redis.NewClient(opt)
	if err := queueClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	// Delivery events client (separate connection)
	eventsOpt := *opt
	eventsClient := redis.NewClient(&eventsOpt)
	if err := eventsClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (events): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		Events: eventsClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.Events.Close()
}
