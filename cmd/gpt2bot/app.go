package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/config"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/internal/watch"
	"github.com/sokinpui/gpt2bot.go/internal/worker"
	"github.com/sokinpui/gpt2bot.go/model"
)

// app is the wired process: every component a command may need.
type app struct {
	settings  *config.Settings
	store     *store.Store
	prompts   *prompts.Registry
	adapter   model.Adapter
	lifecycle *lifecycle.Manager
	pipeline  *pipeline.Pipeline
	broker    broker.Broker
	redis     *redis.Client
	state     *bot.State
}

// newApp wires the components. A config directory that cannot be created is
// the one startup error; every other problem with the files falls back to
// defaults.
func newApp(s *config.Settings, localWorker bool) (*app, error) {
	st, err := store.Open(s.ConfigPath)
	if err != nil {
		return nil, err
	}

	adapter, err := model.New(s.Backend, model.Options{
		ModelsDir:     s.ModelsDir,
		CheckpointURL: s.CheckpointURL,
		RuntimeURL:    s.RuntimeURL,
		APIKey:        s.APIKey,
	})
	if err != nil {
		return nil, err
	}

	policy, err := broker.ParsePolicy(s.BusyPolicy)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings:  s,
		store:     st,
		prompts:   prompts.Open(s.PromptsPath),
		adapter:   adapter,
		lifecycle: lifecycle.New(adapter),
	}
	a.pipeline = pipeline.New(adapter, a.lifecycle)

	switch s.Broker {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     s.RedisAddr(),
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		a.broker = broker.NewRedisBroker(a.redis, s.RedisQueue, policy)
	default:
		a.broker = broker.NewMemoryBroker(s.QueueSize, policy)
	}

	a.state = bot.New(st, a.prompts, a.lifecycle, a.broker, bot.Options{
		RequestTimeout: s.RequestTimeout,
		Preload:        localWorker,
	})
	return a, nil
}

// consume runs a worker on the broker tasks in this process until ctx ends.
func (a *app) consume(ctx context.Context) {
	if err := worker.New(a.broker, a.pipeline).Run(ctx); err != nil {
		log.Printf("Worker stopped: %v", err)
	}
}

// watchFiles reloads the config and prompt files when they are edited.
func (a *app) watchFiles(ctx context.Context) (func() error, error) {
	w, err := watch.New(watch.DefaultDebounce)
	if err != nil {
		return nil, err
	}

	err = w.Add(a.store.Path(), func() {
		prev := a.store.Snapshot()
		if cur, changed := a.store.Reload(); changed {
			a.state.ConfigReloaded(ctx, prev, cur)
		}
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", a.store.Path(), err)
	}
	if err := w.Add(a.prompts.Path(), a.prompts.Reload); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", a.prompts.Path(), err)
	}

	go w.Start(ctx)
	return w.Close, nil
}

// close waits a bounded time for an in-flight generation before releasing
// the model session.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.lifecycle.Close(ctx); err != nil {
		log.Printf("Closing model session: %v", err)
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// pingRedis fails fast when the shared broker is unreachable.
func (a *app) pingRedis(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis at %s: %w", a.settings.RedisAddr(), err)
	}
	return nil
}
