// Package pipeline turns a prompt and a configuration snapshot into one
// generated sample.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
)

var ErrEmptyPrompt = errors.New("prompt required")

// Overlay replaces parts of the stored configuration for a single request.
type Overlay struct {
	ModelName     string
	IncludePrefix bool
}

// Apply returns a copy of cfg with the overlay fields set.
func (o Overlay) Apply(cfg store.Configuration) store.Configuration {
	cfg.ModelName = o.ModelName
	cfg.IncludePrefix = o.IncludePrefix
	return cfg
}

// CustomOverlay is the overlay used by one-off custom generations.
func CustomOverlay(name string) Overlay {
	return Overlay{ModelName: name, IncludePrefix: false}
}

// ParamsFromConfig builds the generation parameters for prompt.
func ParamsFromConfig(prompt string, cfg store.Configuration) model.Params {
	return model.Params{
		ModelName:     cfg.ModelName,
		Prefix:        prompt,
		Length:        cfg.Length,
		Temperature:   cfg.Temperature,
		TopK:          cfg.TopK,
		TopP:          cfg.TopP,
		IncludePrefix: cfg.IncludePrefix,
		NSamples:      1,
	}
}

// Pipeline runs generations through a lifecycle manager.
type Pipeline struct {
	adapter   model.Adapter
	lifecycle *lifecycle.Manager
}

func New(adapter model.Adapter, lm *lifecycle.Manager) *Pipeline {
	return &Pipeline{adapter: adapter, lifecycle: lm}
}

// Generate produces one sample for prompt with the configured model. The
// configured model becomes the loaded model if it is not already.
func (p *Pipeline) Generate(ctx context.Context, prompt string, cfg store.Configuration) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if !p.lifecycle.IsAvailable(cfg.ModelName) {
		return "", &model.NotDownloadedError{Name: cfg.ModelName}
	}

	params := ParamsFromConfig(prompt, cfg)
	var sample string
	err := p.observe(cfg.ModelName, func() error {
		return p.lifecycle.WithSession(ctx, cfg.ModelName, func(s model.Session) error {
			var err error
			sample, err = p.run(ctx, s, params)
			return err
		})
	})
	return sample, err
}

// GenerateCustom produces one sample with name instead of the configured
// model and without echoing the prompt. The loaded model is left as is.
func (p *Pipeline) GenerateCustom(ctx context.Context, name, prompt string, cfg store.Configuration) (string, error) {
	if !model.IsValidName(name) {
		return "", fmt.Errorf("%w: %s", model.ErrInvalidModelName, name)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if !p.lifecycle.IsAvailable(name) {
		return "", &model.NotDownloadedError{Name: name}
	}

	params := ParamsFromConfig(prompt, CustomOverlay(name).Apply(cfg))
	var sample string
	err := p.observe(name, func() error {
		return p.lifecycle.WithTransientSession(ctx, name, func(s model.Session) error {
			var err error
			sample, err = p.run(ctx, s, params)
			return err
		})
	})
	return sample, err
}

func (p *Pipeline) run(ctx context.Context, s model.Session, params model.Params) (string, error) {
	samples, err := p.adapter.Generate(ctx, s, params)
	if err != nil {
		if errors.Is(err, model.ErrGeneration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("%w: no samples returned", model.ErrGeneration)
	}
	return samples[0], nil
}

func (p *Pipeline) observe(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.GenerationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	outcome := metrics.OK
	if err != nil {
		outcome = metrics.Failed
	}
	metrics.Generations.WithLabelValues(name, outcome).Inc()
	return err
}
