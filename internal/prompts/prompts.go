// Package prompts keeps the default prompt of each model, used when a custom
// generation is requested without a prompt.
package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
	gpt2 "github.com/sokinpui/gpt2bot.go/model"
)

var (
	ErrBlankPrompt  = errors.New("default prompt cannot be blank")
	ErrInvalidModel = errors.New("invalid model name for default prompt")
	ErrReservedChar = errors.New("default prompt contains a reserved character")
)

// Registry maps model names to default prompts and persists them in a
// key=value file. It is safe for concurrent use.
type Registry struct {
	path string

	mu      sync.RWMutex
	prompts map[string]string
}

// Open loads the registry at path. A missing file is an empty registry; an
// unreadable one is logged and treated as empty.
func Open(path string) *Registry {
	r := &Registry{path: path}
	r.Reload()
	return r
}

// Reload re-reads the file.
func (r *Registry) Reload() {
	prompts := make(map[string]string)

	pairs, err := kvfile.Read(r.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		log.Printf("Ignoring default prompts at %s: %v", r.path, err)
	default:
		for _, p := range pairs {
			prompts[p.Key] = p.Value
		}
	}

	r.mu.Lock()
	r.prompts = prompts
	r.mu.Unlock()
}

// Get returns the default prompt for model.
func (r *Registry) Get(model string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prompts[model]
	return p, ok
}

// Set stores prompt as the default for model and persists the registry.
func (r *Registry) Set(model, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrBlankPrompt
	}
	if !gpt2.IsValidName(model) {
		return fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
	if strings.ContainsAny(prompt, kvfile.Reserved) {
		return fmt.Errorf("%w: none of %q allowed", ErrReservedChar, kvfile.Reserved)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]string, len(r.prompts)+1)
	for k, v := range r.prompts {
		next[k] = v
	}
	next[model] = prompt

	if err := kvfile.Write(r.path, pairs(next)); err != nil {
		return fmt.Errorf("persist default prompts: %w", err)
	}
	r.prompts = next
	return nil
}

// All returns a copy of every default prompt.
func (r *Registry) All() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := make(map[string]string, len(r.prompts))
	for k, v := range r.prompts {
		cp[k] = v
	}
	return cp
}

// Path returns the file backing the registry.
func (r *Registry) Path() string {
	return r.path
}

func pairs(m map[string]string) []kvfile.Pair {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kvfile.Pair, len(keys))
	for i, k := range keys {
		out[i] = kvfile.Pair{Key: k, Value: m[k]}
	}
	return out
}
