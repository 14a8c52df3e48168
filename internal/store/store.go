// Package store holds the bot's generation parameters: a closed set of typed
// keys persisted as key=value lines.
//
// The in-memory configuration only ever holds validated values. Updates are
// validated as a whole batch before any of it is applied, and a file that
// fails to load for any reason is replaced by the defaults as a whole.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
)

// Change is one raw key=value assignment of a batch.
type Change struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Batch is an ordered list of changes applied atomically by Update. A key
// listed twice takes its last value.
type Batch []Change

// Store is the validated, file-backed configuration. It is safe for
// concurrent use.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg Configuration
}

// Open creates the directory holding path if needed and loads the
// configuration. The only error is failing to create that directory or to
// write the file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	s := &Store{path: path}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current configuration.
func (s *Store) Snapshot() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Load re-reads the file. A missing, malformed, incomplete or invalid file is
// replaced by the defaults, which are written back.
func (s *Store) Load() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadLocked()
	if err != nil {
		log.Printf("Failed to persist default config to %s: %v", s.path, err)
	}
	return cfg
}

// Reload re-reads the file and reports whether the configuration changed.
func (s *Store) Reload() (Configuration, bool) {
	prev := s.Snapshot()
	cur := s.Load()
	return cur, cur != prev
}

func (s *Store) loadLocked() (Configuration, error) {
	cfg, err := readConfig(s.path)
	if err == nil {
		s.cfg = cfg
		return cfg, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("No config at %s, writing defaults", s.path)
	} else {
		log.Printf("Config at %s is unusable (%v), resetting to defaults", s.path, err)
	}

	s.cfg = Defaults()
	return s.cfg, s.writeLocked(s.cfg)
}

// readConfig parses the file at path. Every key must appear with a valid
// value; the last of duplicated keys wins.
func readConfig(path string) (Configuration, error) {
	pairs, err := kvfile.Read(path)
	if err != nil {
		return Configuration{}, err
	}

	var cfg Configuration
	var seen [numKeys]bool
	for _, p := range pairs {
		k, ok := ParseKey(p.Key)
		if !ok {
			return Configuration{}, &KeyError{Key: p.Key}
		}
		if err := cfg.set(k, p.Value); err != nil {
			return Configuration{}, &ValueError{Key: p.Key, Raw: p.Value, Reason: err}
		}
		seen[k] = true
	}

	var missing []string
	for _, k := range Keys() {
		if !seen[k] {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		return Configuration{}, fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}

	return cfg, nil
}

// Update validates every change of b and, only if all are valid, merges
// them into the configuration and persists it. A rejected batch returns a
// *BatchError and leaves memory and file untouched.
func (s *Store) Update(b Batch) (Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	var errs []error
	for _, c := range b {
		k, ok := ParseKey(c.Key)
		if !ok {
			errs = append(errs, &KeyError{Key: c.Key})
			continue
		}
		if err := next.set(k, c.Value); err != nil {
			errs = append(errs, &ValueError{Key: c.Key, Raw: c.Value, Reason: err})
		}
	}
	if len(errs) > 0 {
		return s.cfg, &BatchError{Errs: errs}
	}

	if err := s.writeLocked(next); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// Reset replaces the configuration with the defaults and persists it.
func (s *Store) Reset() (Configuration, error) {
	if err := s.Persist(Defaults()); err != nil {
		return s.Snapshot(), err
	}
	return Defaults(), nil
}

// Persist validates cfg, writes it as the whole file and makes it current.
func (s *Store) Persist(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *Store) writeLocked(cfg Configuration) error {
	if err := kvfile.Write(s.path, cfg.Entries()); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}
