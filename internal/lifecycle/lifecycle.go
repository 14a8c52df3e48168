// Package lifecycle owns the model session: it loads and reloads models,
// reports availability, fetches weights and serializes every call into the
// session behind a single FIFO gate.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sokinpui/gpt2bot.go/internal/color"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Status is the coarse state of the session.
type Status int

const (
	Unloaded Status = iota
	Loaded
	LoadFailed
)

func (s Status) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "load failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State describes the last load outcome. Model is the model the state refers
// to: the loaded one for Loaded, the attempted one for LoadFailed.
type State struct {
	Status Status
	Model  string
	Cause  error
}

func (s State) String() string {
	switch s.Status {
	case Loaded:
		return fmt.Sprintf("loaded(%s)", s.Model)
	case LoadFailed:
		return fmt.Sprintf("load failed(%s): %v", s.Model, s.Cause)
	}
	return s.Status.String()
}

// LoadError is returned when a model could not be loaded even after a
// session reset.
type LoadError struct {
	Name  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Name, e.Cause)
}

func (e *LoadError) Unwrap() []error { return []error{model.ErrLoad, e.Cause} }

// Manager owns one model session. The session is only touched while holding
// the gate, so no two adapter calls on it ever overlap.
type Manager struct {
	adapter model.Adapter
	gate    *semaphore.Weighted

	mu      sync.RWMutex
	session model.Session
	loaded  string
	state   State

	downloads singleflight.Group
}

// New returns a manager with no session.
func New(adapter model.Adapter) *Manager {
	return &Manager{
		adapter: adapter,
		gate:    semaphore.NewWeighted(1),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LoadedModel returns the model held by the authoritative session, or "".
func (m *Manager) LoadedModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// IsAvailable reports whether the weights of name are cached locally.
func (m *Manager) IsAvailable(name string) bool {
	return m.adapter.IsDownloaded(name)
}

// EnsureLoaded makes name the loaded model. It is a no-op when name is
// already loaded. Missing weights yield a *model.NotDownloadedError and leave
// the state untouched. A failed load is retried once on a reset session; if
// that fails too the previous session stays in place and a *LoadError is
// returned.
func (m *Manager) EnsureLoaded(ctx context.Context, name string) error {
	if !model.IsValidName(name) {
		return fmt.Errorf("%w: %s", model.ErrInvalidModelName, name)
	}

	if err := m.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.gate.Release(1)

	return m.ensureLoadedLocked(ctx, name)
}

// WithSession runs fn on the session once name is loaded. The gate is held
// for the whole call.
func (m *Manager) WithSession(ctx context.Context, name string, fn func(model.Session) error) error {
	if !model.IsValidName(name) {
		return fmt.Errorf("%w: %s", model.ErrInvalidModelName, name)
	}

	if err := m.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.gate.Release(1)

	if err := m.ensureLoadedLocked(ctx, name); err != nil {
		return err
	}
	return fn(m.session)
}

// WithTransientSession runs fn against name without changing the loaded
// model. When name is not the loaded model a throwaway session is opened and
// closed around fn, still under the gate.
func (m *Manager) WithTransientSession(ctx context.Context, name string, fn func(model.Session) error) error {
	if !model.IsValidName(name) {
		return fmt.Errorf("%w: %s", model.ErrInvalidModelName, name)
	}

	if err := m.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.gate.Release(1)

	if m.session != nil && m.loaded == name {
		return fn(m.session)
	}

	if !m.adapter.IsDownloaded(name) {
		return &model.NotDownloadedError{Name: name}
	}

	s, err := m.open(ctx, name)
	if err != nil {
		return &LoadError{Name: name, Cause: err}
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Closing transient session for %s: %v", name, err)
		}
	}()

	return fn(s)
}

// Download fetches the weights of name. Concurrent downloads of one model
// share a single fetch; a caller whose ctx ends stops waiting but the fetch
// carries on for the others.
func (m *Manager) Download(ctx context.Context, name string) error {
	if !model.IsValidName(name) {
		return fmt.Errorf("%w: %s", model.ErrInvalidModelName, name)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := m.downloads.DoChan(name, func() (any, error) {
		log.Printf("-> %s %s", color.BlueString("Downloading model"), name)
		err := m.adapter.Download(fetchCtx, name)
		if err != nil {
			metrics.Downloads.WithLabelValues(name, metrics.Failed).Inc()
			log.Printf("<- %s %s: %v", color.RedString("Download failed"), name, err)
			return nil, err
		}
		metrics.Downloads.WithLabelValues(name, metrics.OK).Inc()
		log.Printf("<- %s %s", color.GreenString("Downloaded model"), name)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil && !errors.Is(res.Err, model.ErrDownload) {
			return fmt.Errorf("%w: %v", model.ErrDownload, res.Err)
		}
		return res.Err
	}
}

// Close waits for the call holding the gate, if any, then releases the
// session. If ctx ends first the session is left open and ctx's error is
// returned.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.gate.Release(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	m.loaded = ""
	m.state = State{Status: Unloaded}
	return err
}

func (m *Manager) ensureLoadedLocked(ctx context.Context, name string) error {
	if m.session != nil && m.loaded == name {
		// A failed load of another model leaves this session in use.
		m.mu.Lock()
		m.state = State{Status: Loaded, Model: name}
		m.mu.Unlock()
		return nil
	}

	if !m.adapter.IsDownloaded(name) {
		return &model.NotDownloadedError{Name: name}
	}

	log.Printf("-> %s %s", color.BlueString("Loading model"), name)
	s, err := m.open(ctx, name)
	if err != nil {
		metrics.ModelLoads.WithLabelValues(name, metrics.Failed).Inc()
		log.Printf("<- %s %s: %v", color.RedString("Load failed"), name, err)

		m.mu.Lock()
		m.state = State{Status: LoadFailed, Model: name, Cause: err}
		m.mu.Unlock()
		return &LoadError{Name: name, Cause: err}
	}
	metrics.ModelLoads.WithLabelValues(name, metrics.OK).Inc()
	log.Printf("<- %s %s", color.GreenString("Loaded model"), name)

	m.mu.Lock()
	prev := m.session
	m.session = s
	m.loaded = name
	m.state = State{Status: Loaded, Model: name}
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Printf("Closing previous session: %v", err)
		}
	}
	return nil
}

// open starts a session and loads name into it. The first failure resets the
// session and retries exactly once.
func (m *Manager) open(ctx context.Context, name string) (model.Session, error) {
	s, err := m.adapter.StartSession(ctx)
	if err != nil {
		return nil, err
	}

	loadErr := m.adapter.Load(ctx, s, name)
	if loadErr == nil {
		return s, nil
	}

	log.Printf("Loading %s failed (%v), resetting session and retrying", name, loadErr)
	s, err = m.adapter.ResetSession(ctx, s)
	if err != nil {
		return nil, errors.Join(loadErr, err)
	}

	if err := m.adapter.Load(ctx, s, name); err != nil {
		if cerr := s.Close(); cerr != nil {
			log.Printf("Closing failed session: %v", cerr)
		}
		return nil, err
	}
	return s, nil
}
