package model

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	RegisterBackend("openai", newOpenAIBackend)
}

func newOpenAIBackend(opts Options) (Adapter, error) {
	if opts.RuntimeURL == "" {
		return nil, fmt.Errorf("%w: OpenAI compatible base URL is required", ErrConfiguration)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimSuffix(opts.RuntimeURL, "/")
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return NewOpenAIAdapter(openai.NewClientWithConfig(cfg), NewCache(opts.ModelsDir, opts.CheckpointURL, opts.HTTPClient)), nil
}

// OpenAIAdapter serves generations from an OpenAI compatible completions
// server hosting the GPT-2 checkpoints. The completions schema has no top_k
// field, so a non-zero top_k is dropped with a log line.
type OpenAIAdapter struct {
	client *openai.Client
	cache  *Cache

	warnTopK sync.Once
}

// NewOpenAIAdapter wraps client.
func NewOpenAIAdapter(client *openai.Client, cache *Cache) *OpenAIAdapter {
	return &OpenAIAdapter{client: client, cache: cache}
}

type openAISession struct {
	model string
}

func (s *openAISession) Close() error { return nil }

func (a *OpenAIAdapter) StartSession(ctx context.Context) (Session, error) {
	return &openAISession{}, nil
}

func (a *OpenAIAdapter) ResetSession(ctx context.Context, s Session) (Session, error) {
	return &openAISession{}, nil
}

// Load checks that the server serves name and binds the session to it.
func (a *OpenAIAdapter) Load(ctx context.Context, s Session, name string) error {
	sess, ok := s.(*openAISession)
	if !ok {
		return fmt.Errorf("openai: session of type %T not started by this adapter", s)
	}

	m, err := a.client.GetModel(ctx, name)
	if err != nil {
		return fmt.Errorf("openai: get model %s: %w", name, err)
	}
	sess.model = m.ID
	return nil
}

func (a *OpenAIAdapter) Generate(ctx context.Context, s Session, p Params) ([]string, error) {
	sess, ok := s.(*openAISession)
	if !ok || sess.model == "" {
		return nil, fmt.Errorf("%w: openai: no model loaded", ErrGeneration)
	}

	if p.TopK != 0 {
		a.warnTopK.Do(func() {
			log.Printf("openai backend: top_k=%d is not supported by the completions API and is ignored", p.TopK)
		})
	}

	model := p.ModelName
	if model == "" {
		model = sess.model
	}

	temperature, topP := completionSampling(p)
	resp, err := a.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       model,
		Prompt:      p.Prefix,
		MaxTokens:   p.Length,
		Temperature: temperature,
		TopP:        topP,
		N:           p.NSamples,
		Echo:        p.IncludePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI API error: %v", ErrGeneration, err)
	}

	samples := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		samples = append(samples, c.Text)
	}
	return samples, nil
}

// greedyTopP keeps only the most likely token under nucleus sampling.
const greedyTopP = 1e-6

// completionSampling maps the sampling knobs onto the completions request.
// Its temperature and top_p fields are dropped when zero, so zeros are
// rewritten to equivalents the server cannot mistake for "unset": top_p=0
// disables nucleus sampling, which is top_p=1, and temperature=0 is greedy
// decoding, which a tiny top_p reproduces at the default temperature.
func completionSampling(p Params) (temperature, topP float32) {
	topP = float32(p.TopP)
	if topP == 0 {
		topP = 1
	}
	if p.Temperature == 0 {
		return 1, greedyTopP
	}
	return float32(p.Temperature), topP
}

func (a *OpenAIAdapter) IsDownloaded(name string) bool {
	return a.cache.Has(name)
}

func (a *OpenAIAdapter) Download(ctx context.Context, name string) error {
	return a.cache.Fetch(ctx, name)
}
