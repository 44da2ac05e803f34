package redisqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glimte/sagaflow-go/messaging"
	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ messaging.Queue    = (*Queue)(nil)
	_ messaging.Releaser = (*Queue)(nil)
	_ messaging.Requeuer = (*Queue)(nil)
)

// foreignPrefix marks deliveries whose list element was not written by Push.
// Their Body is the raw element so Delete can still remove it.
const foreignPrefix = "foreign:"

// releaseScript moves one element from processing back to the queue head.
var releaseScript = goredis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue is a Redis-backed messaging.Queue.
type Queue struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// item is the stored list element. The id keeps identical bodies distinct
// so LREM removes exactly the reserved one.
type item struct {
	ID   string `json:"id"`
	Body []byte `json:"body"`
}

// New creates a queue on client. The caller owns the client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Queue {
	q := &Queue{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Ping verifies the Redis connection is alive.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Push implements messaging.Queue.
func (q *Queue) Push(ctx context.Context, queue string, body []byte) error {
	raw, err := json.Marshal(item{ID: uuid.New().String(), Body: body})
	if err != nil {
		return fmt.Errorf("redisqueue: encode item: %w", err)
	}
	if err := q.client.RPush(ctx, queueKey(queue), raw).Err(); err != nil {
		return fmt.Errorf("redisqueue: push %s: %w", queue, err)
	}
	return nil
}

// Pop implements messaging.Queue.
func (q *Queue) Pop(ctx context.Context, queue string) (*messaging.Delivery, error) {
	raw, err := q.client.LMove(ctx, queueKey(queue), processingKey(queue), "LEFT", "RIGHT").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, messaging.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redisqueue: pop %s: %w", queue, err)
	}

	it, ok := decodeItem(raw)
	if !ok {
		q.logger.Warn("Popped foreign queue item", "queue", queue)
		return &messaging.Delivery{
			ID:    foreignPrefix + uuid.New().String(),
			Queue: queue,
			Body:  []byte(raw),
		}, nil
	}

	return &messaging.Delivery{
		ID:    it.ID,
		Queue: queue,
		Body:  it.Body,
	}, nil
}

// Delete implements messaging.Queue.
func (q *Queue) Delete(ctx context.Context, d *messaging.Delivery) error {
	raw, err := element(d)
	if err != nil {
		return err
	}

	removed, err := q.client.LRem(ctx, processingKey(d.Queue), 1, raw).Result()
	if err != nil {
		return fmt.Errorf("redisqueue: delete %s: %w", d.ID, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownDelivery, d.ID)
	}
	return nil
}

// Release implements messaging.Releaser.
func (q *Queue) Release(ctx context.Context, d *messaging.Delivery) error {
	raw, err := element(d)
	if err != nil {
		return err
	}

	moved, err := releaseScript.Run(ctx, q.client,
		[]string{processingKey(d.Queue), queueKey(d.Queue)}, raw).Int()
	if err != nil {
		return fmt.Errorf("redisqueue: release %s: %w", d.ID, err)
	}
	if moved == 0 {
		return fmt.Errorf("%w: %s", messaging.ErrUnknownDelivery, d.ID)
	}
	return nil
}

// Len returns the number of items waiting on a queue.
func (q *Queue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.LLen(ctx, queueKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisqueue: len %s: %w", queue, err)
	}
	return n, nil
}

// Requeue implements messaging.Requeuer. Only call it while no worker
// consumes the queue.
func (q *Queue) Requeue(ctx context.Context, queue string) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, processingKey(queue), queueKey(queue), "RIGHT", "LEFT").Err()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("redisqueue: requeue %s: %w", queue, err)
		}
		moved++
	}

	if moved > 0 {
		q.logger.Info("Requeued reserved jobs", "queue", queue, "count", moved)
	}
	return moved, nil
}

// decodeItem reports whether raw is an element written by Push
func decodeItem(raw string) (item, bool) {
	var it item
	if err := json.Unmarshal([]byte(raw), &it); err != nil || it.ID == "" {
		return item{}, false
	}
	again, err := json.Marshal(it)
	if err != nil || !bytes.Equal(again, []byte(raw)) {
		return item{}, false
	}
	return it, true
}

// element rebuilds the list element a delivery was popped from
func element(d *messaging.Delivery) (string, error) {
	if strings.HasPrefix(d.ID, foreignPrefix) {
		return string(d.Body), nil
	}
	raw, err := json.Marshal(item{ID: d.ID, Body: d.Body})
	if err != nil {
		return "", fmt.Errorf("redisqueue: encode item: %w", err)
	}
	return string(raw), nil
}
