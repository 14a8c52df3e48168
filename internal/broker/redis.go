package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/models"
)

// dequeueTimeout bounds each BRPOP so Dequeue notices a cancelled context.
const dequeueTimeout = time.Second

// cancelTTL keeps a cancellation visible to a worker that has not reached the
// task yet.
const cancelTTL = time.Hour

// RedisBroker is a Broker shared between processes through Redis. Tasks are
// a JSON list; results and cancellations travel over pub/sub.
type RedisBroker struct {
	redisClient *redis.Client
	name        string
	policy      Policy
}

func NewRedisBroker(redisClient *redis.Client, name string, policy Policy) *RedisBroker {
	return &RedisBroker{
		redisClient: redisClient,
		name:        name,
		policy:      policy,
	}
}

func (b *RedisBroker) pendingKey() string { return b.name + ":pending" }

func (b *RedisBroker) resultChannel(id string) string { return b.name + ":result:" + id }

func (b *RedisBroker) cancelChannel(id string) string { return b.name + ":cancel:" + id }

func (b *RedisBroker) cancelKey(id string) string { return b.name + ":cancelled:" + id }

func (b *RedisBroker) Enqueue(ctx context.Context, task *models.GenerationTask) error {
	item, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pending, err := b.redisClient.Incr(ctx, b.pendingKey()).Result()
	if err != nil {
		return err
	}
	if b.policy == PolicyReject && pending > 1 {
		b.redisClient.Decr(context.WithoutCancel(ctx), b.pendingKey())
		return ErrBusy
	}
	metrics.QueueDepth.Set(float64(pending))

	if err := b.redisClient.LPush(ctx, b.name, item).Err(); err != nil {
		b.redisClient.Decr(context.WithoutCancel(ctx), b.pendingKey())
		return err
	}
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context) (*models.GenerationTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := b.redisClient.BRPop(ctx, dequeueTimeout, b.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if len(data) < 2 {
			continue
		}

		var task models.GenerationTask
		if err := json.Unmarshal([]byte(data[1]), &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		return &task, nil
	}
}

// Subscribe waits for the subscription to be confirmed before returning, so
// a result published right after Enqueue is not lost.
func (b *RedisBroker) Subscribe(ctx context.Context, id string) (<-chan models.Result, func()) {
	out := make(chan models.Result, 1)
	pubsub := b.redisClient.Subscribe(ctx, b.resultChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("Failed to subscribe to results of task %s: %v", id, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var res models.Result
				if err := json.Unmarshal([]byte(msg.Payload), &res); err != nil {
					log.Printf("Failed to decode result of task %s: %v", id, err)
					continue
				}
				select {
				case out <- res:
				case <-done:
				}
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}
}

func (b *RedisBroker) Publish(ctx context.Context, id string, res models.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return b.redisClient.Publish(ctx, b.resultChannel(id), payload).Err()
}

func (b *RedisBroker) SignalCancel(ctx context.Context, id string) {
	pipe := b.redisClient.TxPipeline()
	pipe.Set(ctx, b.cancelKey(id), 1, cancelTTL)
	pipe.Publish(ctx, b.cancelChannel(id), "cancel")
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Failed to publish cancellation for task %s: %v", id, err)
	}
}

// IsCancelled watches id until ctx ends.
func (b *RedisBroker) IsCancelled(ctx context.Context, id string) <-chan struct{} {
	ch := make(chan struct{})

	// Subscribe before reading the key so a signal sent in between is not lost.
	pubsub := b.redisClient.Subscribe(ctx, b.cancelChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return ch
	}
	if n, err := b.redisClient.Exists(ctx, b.cancelKey(id)).Result(); err == nil && n > 0 {
		pubsub.Close()
		close(ch)
		return ch
	}

	go func() {
		defer pubsub.Close()

		// This is expected to fail once the task completes and ctx is cancelled.
		if _, err := pubsub.ReceiveMessage(ctx); err != nil {
			return
		}
		close(ch)
	}()
	return ch
}

func (b *RedisBroker) Done(ctx context.Context, id string) {
	pipe := b.redisClient.TxPipeline()
	decr := pipe.Decr(ctx, b.pendingKey())
	pipe.Del(ctx, b.cancelKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Failed to mark task %s done: %v", id, err)
		return
	}
	metrics.QueueDepth.Set(float64(decr.Val()))
}
