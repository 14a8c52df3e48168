package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/internal/worker"
	"github.com/sokinpui/gpt2bot.go/model"
	"github.com/sokinpui/gpt2bot.go/model/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	state      *State
	dispatcher *command.Dispatcher
	store      *store.Store
	lifecycle  *lifecycle.Manager
	adapter    *modeltest.Adapter
	broker     *broker.MemoryBroker
	dir        string
}

func newFixture(t *testing.T, policy broker.Policy, downloaded ...string) *fixture {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "gpt2.config"))
	require.NoError(t, err)
	pr := prompts.Open(filepath.Join(dir, "default_prompts.txt"))

	a := modeltest.New(downloaded...)
	lm := lifecycle.New(a)
	b := broker.NewMemoryBroker(16, policy)

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

	s := New(st, pr, lm, b, Options{Preload: true})
	d, err := NewDispatcher(s, command.DefaultPrefix)
	require.NoError(t, err)

	return &fixture{state: s, dispatcher: d, store: st, lifecycle: lm, adapter: a, broker: b, dir: dir}
}

func (f *fixture) run(t *testing.T, text string) []string {
	t.Helper()
	replies, _ := f.dispatcher.Collect(context.Background(), command.Message{Author: "tester", Text: text, SentAt: time.Now()})
	return replies
}

func TestGenerateCommand(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")

	for _, name := range []string{"generate", "gpt2", "gpt2_generate"} {
		replies := f.run(t, ";;"+name+" Hello there")
		assert.Equal(t, []string{"Generating...", "Hello there [124M 100 tokens]"}, replies)
	}
}

func TestGenerateCommandErrors(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")

	assert.Equal(t, []string{"ERROR: Prompt required"}, f.run(t, ";;generate"))

	require.NoError(t, f.store.Persist(func() store.Configuration {
		c := store.Defaults()
		c.ModelName = "774M"
		return c
	}()))
	assert.Equal(t, []string{"ERROR: Model 774M is not downloaded"}, f.run(t, ";;generate Hello"))
	assert.Empty(t, f.adapter.CallsOf("generate"))
}

func TestGenerateBusyUnderRejectPolicy(t *testing.T) {
	f := newFixture(t, broker.PolicyReject, "124M")
	f.adapter.Delay = 200 * time.Millisecond

	first := make(chan []string)
	go func() { first <- f.run(t, ";;generate one") }()

	// The worker has picked up the first task once it opens a session.
	require.Eventually(t, func() bool { return len(f.adapter.Calls()) > 0 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"ERROR: Busy, try again later"}, f.run(t, ";;generate two"))
	assert.Equal(t, []string{"Generating...", "one [124M 100 tokens]"}, <-first)
}

func TestSetModel(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M", "355M")

	replies := f.run(t, ";;set_model 355M")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "model_name=355M")
	assert.Equal(t, "355M", f.store.Snapshot().ModelName)
	assert.Equal(t, "355M", f.lifecycle.LoadedModel())

	assert.Equal(t, []string{"ERROR: Invalid model name 2G"}, f.run(t, ";;set_model 2G"))
	assert.Equal(t, []string{"ERROR: Argument required"}, f.run(t, ";;set_model"))
	assert.Equal(t, "355M", f.store.Snapshot().ModelName)
}

func TestSetModelNotDownloadedStillSaves(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")
	require.NoError(t, f.lifecycle.EnsureLoaded(context.Background(), "124M"))

	replies := f.run(t, ";;gpt2_set_model 1558M")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "model_name=1558M")
	assert.Equal(t, "ERROR: Model 1558M is not downloaded", replies[1])
	assert.Equal(t, "124M", f.lifecycle.LoadedModel())
}

func TestSetLength(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")

	replies := f.run(t, ";;set_length 50")
	require.Len(t, replies, 1)
	assert.Equal(t, 50, f.store.Snapshot().Length)

	for _, arg := range []string{"0", "-5", "1024", "abc", "1.5"} {
		assert.Equal(t,
			[]string{"ERROR: Argument must be a positive integer number less than 1024"},
			f.run(t, ";;set_length "+arg), arg)
	}
	assert.Equal(t, 50, f.store.Snapshot().Length)
	assert.Equal(t, []string{"ERROR: Argument required"}, f.run(t, ";;set_length"))

	replies = f.run(t, ";;set_length 1023")
	require.Len(t, replies, 1)
	assert.Equal(t, 1023, f.store.Snapshot().Length)
}

func TestSetConfig(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")

	replies := f.run(t, ";;config temperature=1.2 top_k=40 include_prefix=false")
	require.Len(t, replies, 1)
	cfg := f.store.Snapshot()
	assert.Equal(t, 1.2, cfg.Temperature)
	assert.Equal(t, 40, cfg.TopK)
	assert.False(t, cfg.IncludePrefix)

	before, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	assert.Equal(t, []string{"ERROR: Invalid config name colour"}, f.run(t, ";;set_config length=5 colour=red"))
	assert.Equal(t, []string{"ERROR: Invalid config top_p=2"}, f.run(t, ";;set_config top_p=2 length=5"))
	assert.Equal(t, []string{"ERROR: Invalid argument"}, f.run(t, ";;set_config length"))
	assert.Equal(t, []string{"ERROR: Argument required"}, f.run(t, ";;set_config"))

	after, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, cfg, f.store.Snapshot())
}

func TestConfigSnapshotIsTakenAtAcceptance(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")
	f.adapter.Delay = 50 * time.Millisecond

	out := make(chan []string)
	go func() { out <- f.run(t, ";;generate Hi") }()

	require.Eventually(t, func() bool { return len(f.adapter.Calls()) > 0 }, time.Second, time.Millisecond)
	f.run(t, ";;set_length 7")

	assert.Equal(t, []string{"Generating...", "Hi [124M 100 tokens]"}, <-out)
	assert.Equal(t, []string{"Generating...", "Hi [124M 7 tokens]"}, f.run(t, ";;generate Hi"))
}

func TestResetConfig(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")
	f.run(t, ";;set_length 5")

	assert.Equal(t, []string{"ERROR: Argument not allowed"}, f.run(t, ";;reset_config now"))
	assert.Equal(t, 5, f.store.Snapshot().Length)

	assert.Equal(t, []string{"Config reset"}, f.run(t, ";;reset_config"))
	assert.Equal(t, store.Defaults(), f.store.Snapshot())
}

func TestShowConfig(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue)

	replies := f.run(t, ";;show_config")
	require.Len(t, replies, 1)
	assert.Equal(t, strings.TrimRight(store.Defaults().String(), "\n"), replies[0])
}

func TestDownloadModel(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue)

	assert.Equal(t, []string{"Model downloaded"}, f.run(t, ";;download_model 355M"))
	assert.True(t, f.lifecycle.IsAvailable("355M"))

	assert.Equal(t, []string{"Model downloaded"}, f.run(t, ";;gpt2_download_model"))
	assert.True(t, f.lifecycle.IsAvailable("124M"))

	assert.Equal(t, []string{"ERROR: Invalid argument"}, f.run(t, ";;download_model 2G"))

	f.adapter.FailDownload("774M", assert.AnError)
	assert.Equal(t, []string{"ERROR: Download failed"}, f.run(t, ";;download_model 774M"))
}

func TestCustom(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M", "355M")
	require.NoError(t, f.lifecycle.EnsureLoaded(context.Background(), "124M"))

	assert.Equal(t, []string{"[355M 100 tokens]"}, f.run(t, ";;custom 355M Hello"))
	assert.Equal(t, "124M", f.lifecycle.LoadedModel())
	assert.Equal(t, "124M", f.store.Snapshot().ModelName)

	assert.Equal(t, []string{"ERROR: Prompt required"}, f.run(t, ";;custom 355M"))
	assert.Equal(t, []string{"ERROR: Argument required"}, f.run(t, ";;custom"))
	assert.Equal(t, []string{"ERROR: Invalid model name 2G"}, f.run(t, ";;custom 2G Hello"))
	assert.Equal(t, []string{"ERROR: Model 774M is not downloaded"}, f.run(t, ";;custom 774M Hello"))
}

func TestCustomFallsBackToDefaultPrompt(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "355M")

	assert.Equal(t, []string{"Default prompt for 355M set"}, f.run(t, ";;default_prompt 355M Once upon a time"))
	f.run(t, ";;custom 355M")

	gens := f.adapter.CallsOf("generate")
	require.Len(t, gens, 1)
	assert.Equal(t, "Once upon a time", gens[0].Params.Prefix)
	assert.False(t, gens[0].Params.IncludePrefix)
}

func TestDefaultPromptErrors(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue)

	assert.Equal(t, []string{"ERROR: Missing model name"}, f.run(t, ";;prompt"))
	assert.Equal(t, []string{"ERROR: Default prompt cannot be blank"}, f.run(t, ";;prompt 124M"))
	assert.Equal(t, []string{"ERROR: Default prompt cannot be blank"}, f.run(t, ";;gpt2_set_default_prompt 124M    "))
	assert.Equal(t, []string{"ERROR: Invalid model name 9M"}, f.run(t, ";;prompt 9M hello"))
	assert.Equal(t, []string{`ERROR: Default prompt cannot contain any of "=#\n\r"`}, f.run(t, ";;prompt 124M a=b"))
	assert.Empty(t, f.state.DefaultPrompts())
}

func TestPing(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue)

	replies := f.run(t, ";;ping")
	require.Len(t, replies, 1)
	assert.Regexp(t, `^Pong! \d+ms$`, replies[0])

	assert.Equal(t, []string{"ERROR: Argument not allowed"}, f.run(t, ";;ping pong"))
}

func TestExtensionsCanBeSwapped(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")

	assert.Equal(t, []string{"Unloaded gpt2"}, f.run(t, ";;unload gpt2"))
	assert.Empty(t, f.run(t, ";;generate Hello"))
	assert.Equal(t, []string{"Loaded gpt2"}, f.run(t, ";;load gpt2"))
	assert.Equal(t, []string{"Reloaded gpt2"}, f.run(t, ";;reload gpt2"))
	assert.Len(t, f.run(t, ";;generate Hello"), 2)
}

func TestModels(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")
	require.NoError(t, f.lifecycle.EnsureLoaded(context.Background(), "124M"))

	infos := f.state.Models()
	require.Len(t, infos, len(model.Names))
	assert.Equal(t, ModelInfo{Name: "124M", Downloaded: true, Loaded: true}, infos[0])
	assert.Equal(t, ModelInfo{Name: "355M"}, infos[1])
}

func TestRequestTimeout(t *testing.T) {
	f := newFixture(t, broker.PolicyQueue, "124M")
	f.adapter.Delay = 200 * time.Millisecond
	f.state.opts.RequestTimeout = 20 * time.Millisecond

	assert.Equal(t, []string{"Generating...", "ERROR: Request timed out"}, f.run(t, ";;generate slow"))
}

func TestParseAssignments(t *testing.T) {
	b, err := ParseAssignments(" length=5  top_k=0 length=6 ")
	require.NoError(t, err)
	assert.Equal(t, store.Batch{{Key: "length", Value: "5"}, {Key: "top_k", Value: "0"}, {Key: "length", Value: "6"}}, b)

	_, err = ParseAssignments("=5")
	assert.ErrorIs(t, err, ErrMalformedAssignment)
}
