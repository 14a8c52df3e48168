package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func init() {
	RegisterBackend("runtime", newRuntimeBackend)
}

func newRuntimeBackend(opts Options) (Adapter, error) {
	if opts.RuntimeURL == "" {
		return nil, fmt.Errorf("%w: runtime URL is required", ErrConfiguration)
	}
	return NewRuntimeAdapter(opts.RuntimeURL, NewCache(opts.ModelsDir, opts.CheckpointURL, opts.HTTPClient), opts.HTTPClient), nil
}

// RuntimeAdapter drives a local inference runtime over its JSON API. The
// runtime reads weights from the same models directory as the Cache.
type RuntimeAdapter struct {
	baseURL    string
	cache      *Cache
	httpClient *http.Client
}

// NewRuntimeAdapter returns an adapter for the runtime at baseURL.
func NewRuntimeAdapter(baseURL string, cache *Cache, client *http.Client) *RuntimeAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &RuntimeAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      cache,
		httpClient: client,
	}
}

type runtimeSession struct {
	id      string
	adapter *RuntimeAdapter
}

func (s *runtimeSession) Close() error {
	return s.adapter.post(context.Background(), "/api/session/close", sessionRequest{Session: s.id}, nil)
}

type sessionRequest struct {
	Session string `json:"session,omitempty"`
}

type sessionResponse struct {
	Session string `json:"session"`
}

type loadRequest struct {
	Session  string `json:"session"`
	Model    string `json:"model"`
	ModelDir string `json:"model_dir"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
	NumSamples  int     `json:"num_samples"`
}

type generateRequest struct {
	Session       string          `json:"session"`
	Model         string          `json:"model"`
	Prompt        string          `json:"prompt"`
	IncludePrefix bool            `json:"include_prefix"`
	Options       generateOptions `json:"options"`
}

type generateResponse struct {
	Samples []string `json:"samples"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *RuntimeAdapter) StartSession(ctx context.Context) (Session, error) {
	var resp sessionResponse
	if err := a.post(ctx, "/api/session", sessionRequest{}, &resp); err != nil {
		return nil, err
	}
	return &runtimeSession{id: resp.Session, adapter: a}, nil
}

func (a *RuntimeAdapter) ResetSession(ctx context.Context, s Session) (Session, error) {
	if s != nil {
		// The runtime may already have dropped a broken session.
		_ = s.Close()
	}
	return a.StartSession(ctx)
}

func (a *RuntimeAdapter) Load(ctx context.Context, s Session, name string) error {
	rs, err := a.session(s)
	if err != nil {
		return err
	}
	return a.post(ctx, "/api/load", loadRequest{
		Session:  rs.id,
		Model:    name,
		ModelDir: a.cache.Path(name),
	}, nil)
}

func (a *RuntimeAdapter) Generate(ctx context.Context, s Session, p Params) ([]string, error) {
	rs, err := a.session(s)
	if err != nil {
		return nil, err
	}

	req := generateRequest{
		Session:       rs.id,
		Model:         p.ModelName,
		Prompt:        p.Prefix,
		IncludePrefix: p.IncludePrefix,
		Options: generateOptions{
			NumPredict:  p.Length,
			Temperature: p.Temperature,
			TopK:        p.TopK,
			TopP:        p.TopP,
			NumSamples:  p.NSamples,
		},
	}

	var resp generateResponse
	if err := a.post(ctx, "/api/generate", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return resp.Samples, nil
}

func (a *RuntimeAdapter) IsDownloaded(name string) bool {
	return a.cache.Has(name)
}

func (a *RuntimeAdapter) Download(ctx context.Context, name string) error {
	return a.cache.Fetch(ctx, name)
}

func (a *RuntimeAdapter) session(s Session) (*runtimeSession, error) {
	rs, ok := s.(*runtimeSession)
	if !ok || rs == nil {
		return nil, fmt.Errorf("runtime: session of type %T not started by this adapter", s)
	}
	return rs, nil
}

func (a *RuntimeAdapter) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("runtime: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("runtime: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runtime: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("runtime: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("runtime: %s: %s", path, e.Error)
		}
		return fmt.Errorf("runtime: %s: status %d: %s", path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("runtime: decode response: %w", err)
	}
	return nil
}
