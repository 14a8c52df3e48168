package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/color"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/models"
	"github.com/sokinpui/gpt2bot.go/internal/store"
)

// Generator is the part of the pipeline the worker drives.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg store.Configuration) (string, error)
	GenerateCustom(ctx context.Context, name, prompt string, cfg store.Configuration) (string, error)
}

// Worker dequeues generation tasks and runs them one at a time.
type Worker struct {
	workerID  string
	broker    broker.Broker
	generator Generator
}

func New(b broker.Broker, g Generator) *Worker {
	return &Worker{
		workerID:  fmt.Sprintf("Worker-%d", os.Getpid()),
		broker:    b,
		generator: g,
	}
}

// Run processes tasks until ctx is cancelled or the broker fails.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("%s started. Waiting for tasks...", w.workerID)

	for {
		task, err := w.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("%s shutting down.", w.workerID)
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task *models.GenerationTask) {
	defer w.broker.Done(context.WithoutCancel(ctx), task.TaskID)

	taskCtx, cancelTask := context.WithCancel(ctx)
	defer cancelTask()

	cancelled := w.broker.IsCancelled(taskCtx, task.TaskID)
	select {
	case <-cancelled:
		log.Printf("Task %s was cancelled before start, skipping.", task.TaskID)
		metrics.Generations.WithLabelValues(task.Model(), metrics.Skipped).Inc()
		return
	default:
	}

	log.Printf("-> %s: %s", color.BlueString("Processing task"), task.TaskID)
	defer log.Printf("<- %s: %s", color.GreenString("Finished task"), task.TaskID)

	go func() {
		select {
		case <-cancelled:
			log.Printf("Cancellation signal received for task %s. Canceling.", task.TaskID)
			cancelTask()
		case <-taskCtx.Done():
		}
	}()

	res := models.Result{TaskID: task.TaskID}
	text, err := w.run(taskCtx, task)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("Task %s was canceled.", task.TaskID)
		} else {
			log.Printf("Error processing task %s: %v", task.TaskID, err)
		}
		res.Failure = models.NewFailure(err)
	} else {
		res.Text = text
	}

	if err := w.broker.Publish(context.WithoutCancel(ctx), task.TaskID, res); err != nil {
		log.Printf("Failed to publish result for task %s: %v", task.TaskID, err)
	}
}

func (w *Worker) run(ctx context.Context, task *models.GenerationTask) (string, error) {
	switch task.Kind {
	case models.KindCustom:
		return w.generator.GenerateCustom(ctx, task.ModelName, task.Prompt, task.Config)
	case models.KindGenerate, "":
		return w.generator.Generate(ctx, task.Prompt, task.Config)
	default:
		return "", fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
