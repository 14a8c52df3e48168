// Package modeltest provides an in-memory model.Adapter for tests. It records
// every call with its time interval so tests can assert on ordering and on the
// absence of overlapping calls.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sokinpui/gpt2bot.go/model"
)

// Call is one recorded adapter call.
type Call struct {
	Op      string
	Session int
	Model   string
	Params  model.Params
	Start   time.Time
	End     time.Time
}

// Session is the fake session handle.
type Session struct {
	ID     int
	mu     sync.Mutex
	model  string
	closed bool
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Model returns the model loaded into the session.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Adapter is a fake model.Adapter. The zero value is not usable; call New.
type Adapter struct {
	// Delay is slept inside Load and Generate.
	Delay time.Duration

	// GenerateFunc overrides the sample produced by Generate.
	GenerateFunc func(p model.Params) ([]string, error)

	mu         sync.Mutex
	downloaded map[string]bool
	failLoads  map[string]int
	failFetch  map[string]error
	calls      []Call
	sessions   []*Session
	nextID     int

	active     atomic.Int32
	overlapped atomic.Bool
	downloads  atomic.Int32
}

// New returns an adapter with the given models already in the cache.
func New(downloaded ...string) *Adapter {
	a := &Adapter{
		downloaded: make(map[string]bool),
		failLoads:  make(map[string]int),
		failFetch:  make(map[string]error),
	}
	for _, name := range downloaded {
		a.downloaded[name] = true
	}
	return a
}

// FailLoads makes the next n loads of name fail.
func (a *Adapter) FailLoads(name string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failLoads[name] = n
}

// FailDownload makes downloads of name fail with err.
func (a *Adapter) FailDownload(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failFetch[name] = err
}

// Calls returns a copy of the recorded calls.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (a *Adapter) CallsOf(op string) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Sessions returns every session handed out so far.
func (a *Adapter) Sessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Session(nil), a.sessions...)
}

// Overlapped reports whether two session calls ever ran at the same time.
func (a *Adapter) Overlapped() bool {
	return a.overlapped.Load()
}

// DownloadCount returns how many downloads actually ran.
func (a *Adapter) DownloadCount() int {
	return int(a.downloads.Load())
}

func (a *Adapter) enter() func() {
	if a.active.Add(1) > 1 {
		a.overlapped.Store(true)
	}
	return func() { a.active.Add(-1) }
}

func (a *Adapter) record(c Call) {
	c.End = time.Now()
	a.mu.Lock()
	a.calls = append(a.calls, c)
	a.mu.Unlock()
}

func (a *Adapter) sleep(ctx context.Context) error {
	if a.Delay == 0 {
		return nil
	}
	select {
	case <-time.After(a.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) newSession() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	s := &Session{ID: a.nextID}
	a.sessions = append(a.sessions, s)
	return s
}

func (a *Adapter) StartSession(ctx context.Context) (model.Session, error) {
	s := a.newSession()
	a.record(Call{Op: "start", Session: s.ID, Start: time.Now()})
	return s, nil
}

func (a *Adapter) ResetSession(ctx context.Context, s model.Session) (model.Session, error) {
	start := time.Now()
	if err := s.Close(); err != nil {
		return nil, err
	}
	ns := a.newSession()
	a.record(Call{Op: "reset", Session: ns.ID, Start: start})
	return ns, nil
}

func (a *Adapter) Load(ctx context.Context, s model.Session, name string) error {
	defer a.enter()()
	fs, ok := s.(*Session)
	if !ok {
		return errors.New("modeltest: foreign session")
	}
	c := Call{Op: "load", Session: fs.ID, Model: name, Start: time.Now()}
	defer func() { a.record(c) }()

	if err := a.sleep(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	fail := a.failLoads[name] > 0
	if fail {
		a.failLoads[name]--
	}
	a.mu.Unlock()
	if fail {
		return fmt.Errorf("modeltest: cannot load %s", name)
	}

	fs.mu.Lock()
	fs.model = name
	fs.mu.Unlock()
	return nil
}

func (a *Adapter) Generate(ctx context.Context, s model.Session, p model.Params) ([]string, error) {
	defer a.enter()()
	fs, ok := s.(*Session)
	if !ok {
		return nil, errors.New("modeltest: foreign session")
	}
	c := Call{Op: "generate", Session: fs.ID, Model: fs.Model(), Params: p, Start: time.Now()}
	defer func() { a.record(c) }()

	if err := a.sleep(ctx); err != nil {
		return nil, err
	}
	if fs.Closed() {
		return nil, errors.New("modeltest: session closed")
	}
	if fs.Model() != p.ModelName {
		return nil, fmt.Errorf("modeltest: session holds %q, asked for %q", fs.Model(), p.ModelName)
	}

	if a.GenerateFunc != nil {
		return a.GenerateFunc(p)
	}

	n := max(p.NSamples, 1)
	out := make([]string, n)
	for i := range out {
		text := fmt.Sprintf("[%s %d tokens]", p.ModelName, p.Length)
		if p.IncludePrefix {
			text = p.Prefix + " " + text
		}
		out[i] = text
	}
	return out, nil
}

func (a *Adapter) IsDownloaded(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.downloaded[name]
}

func (a *Adapter) Download(ctx context.Context, name string) error {
	a.downloads.Add(1)
	c := Call{Op: "download", Model: name, Start: time.Now()}
	defer func() { a.record(c) }()

	if err := a.sleep(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failFetch[name]; err != nil {
		return fmt.Errorf("%w: %v", model.ErrDownload, err)
	}
	a.downloaded[name] = true
	return nil
}
