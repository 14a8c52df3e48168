package rpc

import "github.com/sokinpui/gpt2bot.go/internal/store"

type ExecuteRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type ExecuteResponse struct {
	Handled bool     `json:"handled"`
	Replies []string `json:"replies"`
}

// GenerateRequest runs Prompt against the configured model, or against Model
// for this request only when it is set.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type GetConfigRequest struct{}

// UpdateConfigRequest applies Changes atomically, or restores the defaults
// when Reset is set.
type UpdateConfigRequest struct {
	Changes store.Batch `json:"changes,omitempty"`
	Reset   bool        `json:"reset,omitempty"`
}

type ConfigResponse struct {
	Config store.Configuration `json:"config"`
}
