package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueClient is the part of the go-redis client the queue uses.
type QueueClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// promoteBatch caps how many due jobs one PromoteDue call moves.
const promoteBatch = 100

// Queue is a Redis list of JSON encoded jobs. Jobs waiting for a retry
// sit in a sorted set next to it, scored by the unix milliseconds at
// which they become due.
type Queue struct {
	client     QueueClient
	key        string
	delayedKey string
}

var _ Publisher = (*Queue)(nil)

// NewQueue returns a queue on key. Delayed jobs live under key+":delayed".
func NewQueue(client QueueClient, key string) *Queue {
	return &Queue{client: client, key: key, delayedKey: key + ":delayed"}
}

// Publish appends job to the tail of the list.
func (q *Queue) Publish(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s job: %w", job.Kind, err)
	}
	return nil
}

// Defer schedules job to be pushed onto the list once at has passed.
func (q *Queue) Defer(ctx context.Context, job Job, at time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	member := redis.Z{Score: float64(at.UnixMilli()), Member: payload}
	if err := q.client.ZAdd(ctx, q.delayedKey, member).Err(); err != nil {
		return fmt.Errorf("defer %s job: %w", job.Kind, err)
	}
	return nil
}

// PromoteDue moves delayed jobs that are due at now onto the list and
// returns how many it moved. A job removed by a concurrent consumer is
// skipped, so each one is promoted once.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read delayed jobs: %w", err)
	}

	moved := 0
	for _, payload := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, payload).Result()
		if err != nil {
			return moved, fmt.Errorf("claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
			// put it back so the next call retries the move
			_ = q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(now.UnixMilli()), Member: payload}).Err()
			return moved, fmt.Errorf("promote delayed job: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Pop blocks up to timeout for the next job. It returns nil, nil when the
// wait expires with the list still empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
