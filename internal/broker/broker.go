// Package broker moves generation tasks from the frontends to the worker and
// carries each task's single result back.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sokinpui/gpt2bot.go/internal/models"
)

// ErrBusy is returned by Enqueue under the reject policy while another task
// is pending or running.
var ErrBusy = errors.New("busy, try again later")

// Policy decides what Enqueue does while a task is in flight.
type Policy string

const (
	PolicyQueue  Policy = "queue"
	PolicyReject Policy = "reject"
)

// ParsePolicy parses a policy name. The empty string means PolicyQueue.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyQueue:
		return PolicyQueue, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown busy policy %q", s)
	}
}

// Broker is the task queue between frontends and the worker.
//
// A task is in flight from Enqueue until the worker calls Done. Subscribe must
// be called before Enqueue so the result cannot be missed.
type Broker interface {
	Enqueue(ctx context.Context, task *models.GenerationTask) error
	Dequeue(ctx context.Context) (*models.GenerationTask, error)

	// Subscribe returns a channel that receives the result of task id. The
	// returned func releases the subscription.
	Subscribe(ctx context.Context, id string) (<-chan models.Result, func())
	Publish(ctx context.Context, id string, res models.Result) error

	SignalCancel(ctx context.Context, id string)
	// IsCancelled returns a channel closed once id is cancelled. If id was
	// cancelled before the call, the channel is already closed on return.
	IsCancelled(ctx context.Context, id string) <-chan struct{}

	Done(ctx context.Context, id string)
}

// Await waits for the result of a task the caller subscribed to. If ctx ends
// first the task is signalled as cancelled.
func Await(ctx context.Context, b Broker, id string, ch <-chan models.Result) (models.Result, error) {
	select {
	case res, ok := <-ch:
		if !ok {
			return models.Result{}, fmt.Errorf("result channel for task %s closed", id)
		}
		return res, nil
	case <-ctx.Done():
		b.SignalCancel(context.WithoutCancel(ctx), id)
		return models.Result{}, ctx.Err()
	}
}
