package propagation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"infosync/pkg/requestcontext"
)

const redisPollTimeout = time.Second

// RedisQueue shares jobs between replicas through a Redis list. A job popped
// by a worker that then crashes is lost.
type RedisQueue struct {
	client *redis.Client
	key    string
	handle Handler
	logger *slog.Logger
}

func NewRedisQueue(client *redis.Client, key string, handle Handler, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{client: client, key: key, handle: handle, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode dispatch job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push dispatch job: %w", err)
	}
	return nil
}

// Run pops and handles jobs until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := q.client.BRPop(ctx, redisPollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.ErrorContext(ctx, "dispatch queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redisPollTimeout):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.ErrorContext(ctx, "discarding undecodable dispatch job", "error", err)
			continue
		}
		// A popped job is gone from the list; finish it even if Run is stopping.
		q.handle(requestcontext.WithRequestID(context.WithoutCancel(ctx), job.RequestID), job)
	}
}
