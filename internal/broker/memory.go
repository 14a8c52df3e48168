package broker

import (
	"context"
	"sync"

	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/models"
)

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	policy Policy
	tasks  chan *models.GenerationTask

	mu            sync.Mutex
	pending       int
	subscribers   map[string]chan models.Result
	cancellations map[string]chan struct{}
}

func NewMemoryBroker(bufferSize int, policy Policy) *MemoryBroker {
	return &MemoryBroker{
		policy:        policy,
		tasks:         make(chan *models.GenerationTask, bufferSize),
		subscribers:   make(map[string]chan models.Result),
		cancellations: make(map[string]chan struct{}),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, task *models.GenerationTask) error {
	b.mu.Lock()
	if b.policy == PolicyReject && b.pending > 0 {
		b.mu.Unlock()
		return ErrBusy
	}
	b.pending++
	b.cancellations[task.TaskID] = make(chan struct{})
	metrics.QueueDepth.Set(float64(b.pending))
	b.mu.Unlock()

	select {
	case b.tasks <- task:
		return nil
	case <-ctx.Done():
		b.Done(ctx, task.TaskID)
		return ctx.Err()
	}
}

func (b *MemoryBroker) Dequeue(ctx context.Context) (*models.GenerationTask, error) {
	select {
	case task := <-b.tasks:
		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, id string) (<-chan models.Result, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Result, 1)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id, ch) })
	}
}

func (b *MemoryBroker) unsubscribe(id string, ch chan models.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.subscribers[id]; ok && cur == ch {
		delete(b.subscribers, id)
	}
	close(ch)
}

// Publish delivers res to the subscriber of id. A result with no subscriber
// is dropped.
func (b *MemoryBroker) Publish(ctx context.Context, id string, res models.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		select {
		case ch <- res:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) SignalCancel(ctx context.Context, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.cancellations[id]
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (b *MemoryBroker) IsCancelled(ctx context.Context, id string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.cancellations[id]; ok {
		return ch
	}
	// Unknown tasks never report cancellation.
	return make(chan struct{})
}

func (b *MemoryBroker) Done(ctx context.Context, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.cancellations[id]; !ok {
		return
	}
	delete(b.cancellations, id)
	b.pending--
	metrics.QueueDepth.Set(float64(b.pending))
}
