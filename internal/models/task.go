package models

import (
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/store"
)

// TaskKind selects how the worker runs a task.
type TaskKind string

const (
	// KindGenerate uses the configured model and becomes the loaded model.
	KindGenerate TaskKind = "generate"
	// KindCustom uses ModelName for this task only and never echoes the prompt.
	KindCustom TaskKind = "custom"
)

// GenerationTask is one accepted generation request. Config is the snapshot
// taken when the request was accepted.
type GenerationTask struct {
	TaskID     string              `json:"task_id"`
	Kind       TaskKind            `json:"kind"`
	Prompt     string              `json:"prompt"`
	ModelName  string              `json:"model_name,omitempty"`
	Config     store.Configuration `json:"config"`
	AcceptedAt time.Time           `json:"accepted_at"`
}

// Model returns the model the task runs against.
func (t *GenerationTask) Model() string {
	if t.Kind == KindCustom {
		return t.ModelName
	}
	return t.Config.ModelName
}
