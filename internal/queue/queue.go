package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list carrying scan audit messages.
const DefaultKey = "attendance:scanlogs"

// Message is one typed envelope on the queue.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue carries messages from the API to whoever persists them.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
	Depth(ctx context.Context) (int64, error)
}

// Local is a buffered channel queue. Publisher and consumer must share a
// process, so it suits single-binary deployments and tests.
type Local struct {
	ch chan Message
}

// NewLocal creates a queue holding up to size pending messages.
func NewLocal(size int) *Local {
	return &Local{ch: make(chan Message, size)}
}

// Publish blocks while the buffer is full.
func (q *Local) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume forwards buffered messages until ctx is done, then closes the
// returned channel.
func (q *Local) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			var msg Message
			select {
			case msg = <-q.ch:
			case <-ctx.Done():
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Depth is the number of buffered messages.
func (q *Local) Depth(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// RedisList is a queue on a Redis list: LPUSH to publish, BRPOP to consume.
// It is shared by every API instance and the worker.
type RedisList struct {
	client *redis.Client
	key    string
	block  time.Duration
	pause  time.Duration
}

// NewRedisList builds a queue on key, or DefaultKey when key is empty.
func NewRedisList(client *redis.Client, key string) *RedisList {
	if key == "" {
		key = DefaultKey
	}
	return &RedisList{client: client, key: key, block: 5 * time.Second, pause: time.Second}
}

// Publish appends msg as JSON.
func (q *RedisList) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume pops messages oldest first until ctx is done. Payloads that are
// not valid JSON envelopes are dropped.
func (q *RedisList) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			msg, ok := q.pop(ctx)
			if !ok {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (q *RedisList) pop(ctx context.Context) (Message, bool) {
	res, err := q.client.BRPop(ctx, q.block, q.key).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil), ctx.Err() != nil:
		return Message{}, false
	default:
		// Redis is down; wait before the next attempt.
		select {
		case <-time.After(q.pause):
		case <-ctx.Done():
		}
		return Message{}, false
	}

	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return Message{}, false
	}
	return msg, true
}

// Depth is the list length.
func (q *RedisList) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
