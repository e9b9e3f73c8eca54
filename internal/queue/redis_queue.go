package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payment-gateway/internal/config"
)

// Queue is a named multi-producer/multi-consumer FIFO. Enqueue appends to the
// tail; Dequeue blocks up to timeout and pops the head, returning (nil, nil)
// when nothing arrived. Ordering within a kind and exclusive hand-off to a
// single dequeuer must be preserved by any implementation. There is no
// visibility timeout: a job popped and then lost to a crash is gone, and
// webhook retries are driven by the persisted log rather than redelivery.
type Queue interface {
	Enqueue(ctx context.Context, kind string, job any) error
	Dequeue(ctx context.Context, kind string, timeout time.Duration) ([]byte, error)
	Depth(ctx context.Context, kind string) (int64, error)
}

// RedisQueue implements Queue on Redis lists, one list per job kind.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisQueue{client: client}
}

// NewRedisQueueWithClient wraps an existing client, mainly for tests.
func NewRedisQueueWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue serializes the job and appends it to the tail of the kind's list.
func (q *RedisQueue) Enqueue(ctx context.Context, kind string, job any) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", kind, err)
	}
	if err := q.client.RPush(ctx, kind, body).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", kind, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job on the kind's list.
func (q *RedisQueue) Dequeue(ctx context.Context, kind string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, timeout, kind).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", kind, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("blpop %s: unexpected reply length %d", kind, len(res))
	}
	return []byte(res[1]), nil
}

// Depth returns the number of jobs waiting on the kind's list.
func (q *RedisQueue) Depth(ctx context.Context, kind string) (int64, error) {
	n, err := q.client.LLen(ctx, kind).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", kind, err)
	}
	return n, nil
}

// Close releases the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
