package queue

import (
	"context"
	"errors"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const receiveBlock = 5 * time.Second

// RedisQueue carries job messages on a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

var (
	_ Queue    = (*RedisQueue)(nil)
	_ Consumer = (*RedisQueue)(nil)
)

// NewRedis connects to Redis and verifies the connection before
// returning a queue bound to key.
func NewRedis(addr, password string, db int, key string, logger *slog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisQueue{client: client, key: key, logger: logger}, nil
}

// Send pushes a message onto the list.
func (q *RedisQueue) Send(ctx context.Context, body string) error {
	return q.client.LPush(ctx, q.key, body).Err()
}

// Receive blocks until a message is available or ctx is done. The pop
// is cut into short blocking windows so shutdown stays responsive.
func (q *RedisQueue) Receive(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		values, err := q.client.BRPop(ctx, receiveBlock, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", err
		}
		if len(values) < 2 {
			continue
		}
		return values[1], nil
	}
}

// Close releases the connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
