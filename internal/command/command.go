// Package command parses prefixed chat messages and routes them to the
// handlers of the loaded extensions.
package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/metrics"
)

const DefaultPrefix = ";;"

var (
	ErrUnknownExtension = errors.New("unknown extension")
	ErrAlreadyLoaded    = errors.New("extension already loaded")
	ErrNotLoaded        = errors.New("extension not loaded")
	ErrPinned           = errors.New("extension cannot be unloaded")
	ErrNameConflict     = errors.New("command name already taken")
)

// Message is one incoming chat message.
type Message struct {
	Author string
	Text   string
	SentAt time.Time
}

// Replier sends a reply to the channel the message came from.
type Replier interface {
	Reply(text string)
}

// ReplyFunc adapts a function to Replier.
type ReplyFunc func(text string)

func (f ReplyFunc) Reply(text string) { f(text) }

// Request is one parsed invocation.
type Request struct {
	Name    string
	Args    string
	Message Message
	Replier
}

// Handler runs a command. A returned error is shown to the user.
type Handler func(ctx context.Context, req *Request) error

type Command struct {
	Name    string
	Aliases []string
	Handler Handler
}

// Extension is a named set of commands that is loaded and unloaded as a unit.
type Extension struct {
	Name     string
	Commands []Command
}

// table is the immutable routing state swapped on every load or unload.
type table struct {
	loaded   []string
	handlers map[string]Handler
}

func (t *table) isLoaded(name string) bool {
	for _, n := range t.loaded {
		if n == name {
			return true
		}
	}
	return false
}

// Dispatcher routes messages to commands. Dispatch is lock free; Load,
// Unload and Reload swap in a new routing table.
type Dispatcher struct {
	prefix    string
	errorText func(error) string

	mu         sync.Mutex
	extensions map[string]Extension
	pinned     map[string]bool
	active     atomic.Pointer[table]
}

type Option func(*Dispatcher)

// WithPrefix sets the command prefix.
func WithPrefix(prefix string) Option {
	return func(d *Dispatcher) { d.prefix = prefix }
}

// WithErrorText sets how handler errors are rendered.
func WithErrorText(fn func(error) string) Option {
	return func(d *Dispatcher) { d.errorText = fn }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prefix:     DefaultPrefix,
		errorText:  func(err error) string { return "ERROR: " + err.Error() },
		extensions: make(map[string]Extension),
		pinned:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.active.Store(&table{handlers: map[string]Handler{}})
	return d
}

// Register makes ext available to Load. Pinned extensions cannot be unloaded.
func (d *Dispatcher) Register(ext Extension, pinned bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extensions[ext.Name] = ext
	d.pinned[ext.Name] = pinned
}

// Loaded returns the names of the loaded extensions in load order.
func (d *Dispatcher) Loaded() []string {
	return append([]string(nil), d.active.Load().loaded...)
}

func (d *Dispatcher) Load(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.active.Load()
	if _, ok := d.extensions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	if cur.isLoaded(name) {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}
	return d.swap(append(append([]string(nil), cur.loaded...), name))
}

func (d *Dispatcher) Unload(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.active.Load()
	if _, ok := d.extensions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	if !cur.isLoaded(name) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	if d.pinned[name] {
		return fmt.Errorf("%w: %s", ErrPinned, name)
	}

	var next []string
	for _, n := range cur.loaded {
		if n != name {
			next = append(next, n)
		}
	}
	return d.swap(next)
}

// Reload rebuilds the handlers of a loaded extension in one swap.
func (d *Dispatcher) Reload(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.active.Load()
	if _, ok := d.extensions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	if !cur.isLoaded(name) {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	return d.swap(cur.loaded)
}

func (d *Dispatcher) swap(loaded []string) error {
	handlers := make(map[string]Handler)
	for _, name := range loaded {
		for _, c := range d.extensions[name].Commands {
			for _, n := range append([]string{c.Name}, c.Aliases...) {
				if _, taken := handlers[n]; taken {
					return fmt.Errorf("%w: %s (extension %s)", ErrNameConflict, n, name)
				}
				handlers[n] = c.Handler
			}
		}
	}
	d.active.Store(&table{loaded: loaded, handlers: handlers})
	return nil
}

// Parse splits a prefixed message into command name and arguments.
func (d *Dispatcher) Parse(text string) (name, args string, ok bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), d.prefix)
	if !ok {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// Dispatch runs the command in msg, if any, and reports whether one ran.
// Unknown commands are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, r Replier) bool {
	name, args, ok := d.Parse(msg.Text)
	if !ok {
		return false
	}

	h, ok := d.active.Load().handlers[name]
	if !ok {
		log.Printf("Ignoring unknown command %q from %s", name, msg.Author)
		return false
	}

	log.Printf("Command %s triggered by %s", name, msg.Author)
	metrics.Commands.WithLabelValues(name).Inc()

	if err := h(ctx, &Request{Name: name, Args: args, Message: msg, Replier: r}); err != nil {
		r.Reply(d.errorText(err))
	}
	return true
}

// Collect dispatches msg and returns the replies in order.
func (d *Dispatcher) Collect(ctx context.Context, msg Message) ([]string, bool) {
	var mu sync.Mutex
	var replies []string
	ran := d.Dispatch(ctx, msg, ReplyFunc(func(text string) {
		mu.Lock()
		replies = append(replies, text)
		mu.Unlock()
	}))
	return replies, ran
}
