// Package bot holds the state of the GPT-2 chat bot and implements its
// commands on top of the config store, the prompt registry, the model
// lifecycle and the task broker.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sokinpui/gpt2bot.go/internal/broker"
	"github.com/sokinpui/gpt2bot.go/internal/color"
	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/models"
	"github.com/sokinpui/gpt2bot.go/internal/pipeline"
	"github.com/sokinpui/gpt2bot.go/internal/prompts"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
)

// Options tunes a State.
type Options struct {
	// RequestTimeout bounds each generation wait. Zero means no bound.
	RequestTimeout time.Duration

	// Preload loads the configured model in this process whenever the
	// configuration changes it. Disable it when the worker runs elsewhere.
	Preload bool
}

// State is everything the commands share.
type State struct {
	store     *store.Store
	prompts   *prompts.Registry
	lifecycle *lifecycle.Manager
	broker    broker.Broker
	opts      Options
}

func New(s *store.Store, p *prompts.Registry, lm *lifecycle.Manager, b broker.Broker, opts Options) *State {
	return &State{
		store:     s,
		prompts:   p,
		lifecycle: lm,
		broker:    b,
		opts:      opts,
	}
}

// Ready is called once the frontends are up.
func (s *State) Ready(ctx context.Context) {
	if s.opts.Preload {
		s.preload(ctx, s.store.Snapshot().ModelName)
	}
	log.Println(color.GreenString("Bot is ready"))
}

// Config returns the current configuration.
func (s *State) Config() store.Configuration {
	return s.store.Snapshot()
}

// DefaultPrompts returns the default prompt of every model that has one.
func (s *State) DefaultPrompts() map[string]string {
	return s.prompts.All()
}

// Models reports the cache state of every known model.
func (s *State) Models() []ModelInfo {
	loaded := s.lifecycle.LoadedModel()
	out := make([]ModelInfo, len(model.Names))
	for i, name := range model.Names {
		out[i] = ModelInfo{
			Name:       name,
			Downloaded: s.lifecycle.IsAvailable(name),
			Loaded:     name == loaded,
		}
	}
	return out
}

type ModelInfo struct {
	Name       string `json:"name"`
	Downloaded bool   `json:"downloaded"`
	Loaded     bool   `json:"loaded"`
}

// UpdateConfig applies b atomically and reloads the model if it changed.
func (s *State) UpdateConfig(ctx context.Context, b store.Batch) (store.Configuration, error) {
	prev := s.store.Snapshot()
	cfg, err := s.store.Update(b)
	if err != nil {
		outcome := metrics.Failed
		var be *store.BatchError
		if errors.As(err, &be) {
			outcome = metrics.Rejected
		}
		metrics.ConfigUpdates.WithLabelValues(outcome).Inc()
		return cfg, err
	}
	metrics.ConfigUpdates.WithLabelValues(metrics.OK).Inc()

	if cfg.ModelName != prev.ModelName {
		return cfg, s.modelChanged(ctx, cfg.ModelName)
	}
	return cfg, nil
}

// ResetConfig restores the defaults.
func (s *State) ResetConfig(ctx context.Context) (store.Configuration, error) {
	prev := s.store.Snapshot()
	cfg, err := s.store.Reset()
	if err != nil {
		metrics.ConfigUpdates.WithLabelValues(metrics.Failed).Inc()
		return cfg, err
	}
	metrics.ConfigUpdates.WithLabelValues(metrics.OK).Inc()

	if cfg.ModelName != prev.ModelName {
		return cfg, s.modelChanged(ctx, cfg.ModelName)
	}
	return cfg, nil
}

// ConfigReloaded is called after the config file changed on disk.
func (s *State) ConfigReloaded(ctx context.Context, prev, cur store.Configuration) {
	if prev.ModelName != cur.ModelName && s.opts.Preload {
		s.preload(ctx, cur.ModelName)
	}
}

func (s *State) modelChanged(ctx context.Context, name string) error {
	if !s.opts.Preload {
		return nil
	}
	return s.lifecycle.EnsureLoaded(ctx, name)
}

func (s *State) preload(ctx context.Context, name string) {
	if err := s.lifecycle.EnsureLoaded(ctx, name); err != nil {
		log.Printf("Could not load model %s: %v", name, err)
	}
}

// Generate runs prompt against the configured model. started is called once
// the task has been accepted.
func (s *State) Generate(ctx context.Context, prompt string, started func()) (string, error) {
	cfg := s.store.Snapshot()
	if strings.TrimSpace(prompt) == "" {
		return "", pipeline.ErrEmptyPrompt
	}
	if !s.lifecycle.IsAvailable(cfg.ModelName) {
		return "", &model.NotDownloadedError{Name: cfg.ModelName}
	}

	return s.submit(ctx, &models.GenerationTask{
		Kind:   models.KindGenerate,
		Prompt: prompt,
		Config: cfg,
	}, started)
}

// Custom runs prompt against name for this request only. An empty prompt
// falls back to the default prompt of name.
func (s *State) Custom(ctx context.Context, name, prompt string, started func()) (string, error) {
	if !model.IsValidName(name) {
		return "", &InvalidModelError{Name: name}
	}
	if strings.TrimSpace(prompt) == "" {
		p, ok := s.prompts.Get(name)
		if !ok {
			return "", pipeline.ErrEmptyPrompt
		}
		prompt = p
	}
	if !s.lifecycle.IsAvailable(name) {
		return "", &model.NotDownloadedError{Name: name}
	}

	return s.submit(ctx, &models.GenerationTask{
		Kind:      models.KindCustom,
		Prompt:    prompt,
		ModelName: name,
		Config:    s.store.Snapshot(),
	}, started)
}

func (s *State) submit(ctx context.Context, task *models.GenerationTask, started func()) (string, error) {
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	task.TaskID = uuid.New().String()
	task.AcceptedAt = time.Now()
	log.Printf("-> %s, assigned task_id: %s", color.BlueString("Received request"), task.TaskID)
	defer log.Printf("<- %s for task_id: %s", color.GreenString("Finished request"), task.TaskID)

	ch, stop := s.broker.Subscribe(ctx, task.TaskID)
	defer stop()

	if err := s.broker.Enqueue(ctx, task); err != nil {
		if errors.Is(err, broker.ErrBusy) {
			metrics.Generations.WithLabelValues(task.Model(), metrics.Rejected).Inc()
		}
		return "", err
	}
	if started != nil {
		started()
	}

	res, err := broker.Await(ctx, s.broker, task.TaskID, ch)
	if err != nil {
		return "", err
	}
	return res.Text, res.Err()
}

// Download fetches name, or the configured model when name is empty.
func (s *State) Download(ctx context.Context, name string) error {
	if name == "" {
		name = s.store.Snapshot().ModelName
	}
	if !model.IsValidName(name) {
		return &InvalidModelError{Name: name}
	}
	return s.lifecycle.Download(ctx, name)
}

// SetDefaultPrompt stores prompt as the default prompt of name.
func (s *State) SetDefaultPrompt(name, prompt string) error {
	if !model.IsValidName(name) {
		return &InvalidModelError{Name: name}
	}
	return s.prompts.Set(name, prompt)
}

// ParseLength parses a set_length argument.
func ParseLength(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > store.MaxLength {
		return 0, ErrInvalidLength
	}
	return n, nil
}

// ParseAssignments parses "k=v k=v" into an ordered batch.
func ParseAssignments(arg string) (store.Batch, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no assignments", ErrMalformedAssignment)
	}

	b := make(store.Batch, 0, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformedAssignment, f)
		}
		b = append(b, store.Change{Key: k, Value: v})
	}
	return b, nil
}
