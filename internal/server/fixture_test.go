package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/internal/worker"
	"github.com/sokinpui/gpt2bot.go/model/modeltest"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	state      *bot.State
	dispatcher *command.Dispatcher
	store      *store.Store
	adapter    *modeltest.Adapter
}

func newFixture(t *testing.T, downloaded ...string) *fixture {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "gpt2.config"))
	require.NoError(t, err)

	a := modeltest.New(downloaded...)
	lm := lifecycle.New(a)
	b := broker.NewMemoryBroker(16, broker.PolicyQueue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.New(b, pipeline.New(a, lm)).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	state := bot.New(st, prompts.Open(filepath.Join(dir, "default_prompts.txt")), lm, b, bot.Options{Preload: true})
	d, err := bot.NewDispatcher(state, command.DefaultPrefix)
	require.NoError(t, err)

	return &fixture{state: state, dispatcher: d, store: st, adapter: a}
}
