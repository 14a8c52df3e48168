package model

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
)

// Names lists the GPT-2 checkpoints the bot can fetch and load, smallest first.
var Names = []string{"124M", "355M", "774M", "1558M"}

// IsValidName reports whether name is one of Names.
func IsValidName(name string) bool {
	return slices.Contains(Names, name)
}

// Session is an opaque handle on a model runtime session.
type Session interface {
	Close() error
}

// Adapter is the boundary to the external model runtime. Implementations are
// not required to be safe for concurrent use on one Session; callers serialize.
type Adapter interface {
	// StartSession opens a fresh runtime session with no model loaded.
	StartSession(ctx context.Context) (Session, error)

	// ResetSession discards s and returns a fresh session.
	ResetSession(ctx context.Context, s Session) (Session, error)

	// Load loads the named model into s.
	Load(ctx context.Context, s Session, name string) error

	// Generate returns p.NSamples continuations of p.Prefix. Cancelling ctx
	// abandons the wait but may not stop the runtime from finishing the work.
	Generate(ctx context.Context, s Session, p Params) ([]string, error)

	// IsDownloaded reports whether the model weights are in the local cache.
	IsDownloaded(name string) bool

	// Download fetches the model weights into the local cache.
	Download(ctx context.Context, name string) error
}

// Options configures a backend.
type Options struct {
	ModelsDir     string
	CheckpointURL string
	RuntimeURL    string
	APIKey        string
	HTTPClient    *http.Client
}

// Backend builds an Adapter from Options.
type Backend func(opts Options) (Adapter, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes a backend available under name. Backends register
// themselves from init.
func RegisterBackend(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("model: backend %q registered twice", name))
	}
	backends[name] = b
}

// New builds the adapter of the named backend.
func New(name string, opts Options) (Adapter, error) {
	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return b(opts)
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	keys := make([]string, 0, len(backends))
	for k := range backends {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
