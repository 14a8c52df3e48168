package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
)

// NewDispatcher returns a dispatcher with the gpt2, basic and utilities
// extensions registered and loaded.
func NewDispatcher(s *State, prefix string) (*command.Dispatcher, error) {
	d := command.NewDispatcher(command.WithPrefix(prefix), command.WithErrorText(ErrorText))
	d.Register(command.Utilities(d), true)
	d.Register(s.GPT2Extension(), false)
	d.Register(s.BasicExtension(), false)

	for _, name := range []string{"utilities", "basic", "gpt2"} {
		if err := d.Load(name); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// BasicExtension holds commands unrelated to generation.
func (s *State) BasicExtension() command.Extension {
	return command.Extension{
		Name: "basic",
		Commands: []command.Command{
			{Name: "ping", Handler: s.ping},
		},
	}
}

// GPT2Extension holds the generation and configuration commands.
func (s *State) GPT2Extension() command.Extension {
	return command.Extension{
		Name: "gpt2",
		Commands: []command.Command{
			{Name: "generate", Aliases: []string{"gpt2_generate", "gpt2"}, Handler: s.generate},
			{Name: "set_model", Aliases: []string{"gpt2_set_model"}, Handler: s.setModel},
			{Name: "set_length", Aliases: []string{"gpt2_set_length"}, Handler: s.setLength},
			{Name: "set_config", Aliases: []string{"config", "gpt2_set_config"}, Handler: s.setConfig},
			{Name: "download_model", Aliases: []string{"gpt2_download_model"}, Handler: s.downloadModel},
			{Name: "reset_config", Aliases: []string{"gpt2_reset_config"}, Handler: s.resetConfig},
			{Name: "custom", Aliases: []string{"gpt2_custom"}, Handler: s.custom},
			{Name: "default_prompt", Aliases: []string{"prompt", "gpt2_set_default_prompt"}, Handler: s.defaultPrompt},
			{Name: "show_config", Aliases: []string{"gpt2_config"}, Handler: s.showConfig},
		},
	}
}

func (s *State) ping(ctx context.Context, req *command.Request) error {
	if req.Args != "" {
		return command.ErrArgumentNotAllowed
	}
	var latency time.Duration
	if !req.Message.SentAt.IsZero() {
		latency = max(time.Since(req.Message.SentAt), 0)
	}
	req.Reply(fmt.Sprintf("Pong! %dms", latency.Milliseconds()))
	return nil
}

func (s *State) generate(ctx context.Context, req *command.Request) error {
	sample, err := s.Generate(ctx, req.Args, func() { req.Reply("Generating...") })
	if err != nil {
		return err
	}
	req.Reply(sample)
	return nil
}

func (s *State) custom(ctx context.Context, req *command.Request) error {
	if req.Args == "" {
		return command.ErrArgumentRequired
	}
	name, prompt, _ := strings.Cut(req.Args, " ")

	sample, err := s.Custom(ctx, name, strings.TrimSpace(prompt), nil)
	if err != nil {
		return err
	}
	req.Reply(sample)
	return nil
}

func (s *State) setModel(ctx context.Context, req *command.Request) error {
	if req.Args == "" {
		return command.ErrArgumentRequired
	}
	if !model.IsValidName(req.Args) {
		return &InvalidModelError{Name: req.Args}
	}
	return s.apply(ctx, req, store.Batch{{Key: store.ModelName.String(), Value: req.Args}})
}

func (s *State) setLength(ctx context.Context, req *command.Request) error {
	if req.Args == "" {
		return command.ErrArgumentRequired
	}
	n, err := ParseLength(req.Args)
	if err != nil {
		return err
	}
	return s.apply(ctx, req, store.Batch{{Key: store.Length.String(), Value: fmt.Sprint(n)}})
}

func (s *State) setConfig(ctx context.Context, req *command.Request) error {
	if req.Args == "" {
		return command.ErrArgumentRequired
	}
	b, err := ParseAssignments(req.Args)
	if err != nil {
		return err
	}
	return s.apply(ctx, req, b)
}

// apply replies with the new configuration before reporting a failed model
// load, since the configuration itself was saved.
func (s *State) apply(ctx context.Context, req *command.Request, b store.Batch) error {
	prev := s.store.Snapshot()
	cfg, err := s.UpdateConfig(ctx, b)
	if cfg != prev {
		req.Reply(fmt.Sprintf("Config updated\n%s", cfg))
	}
	return err
}

func (s *State) resetConfig(ctx context.Context, req *command.Request) error {
	if req.Args != "" {
		return command.ErrArgumentNotAllowed
	}
	cfg, err := s.ResetConfig(ctx)
	if cfg == store.Defaults() {
		req.Reply("Config reset")
	}
	return err
}

func (s *State) downloadModel(ctx context.Context, req *command.Request) error {
	if req.Args != "" && !model.IsValidName(req.Args) {
		return ErrInvalidArgument
	}
	if err := s.Download(ctx, req.Args); err != nil {
		return err
	}
	req.Reply("Model downloaded")
	return nil
}

func (s *State) defaultPrompt(ctx context.Context, req *command.Request) error {
	if req.Args == "" {
		return ErrMissingModelName
	}
	name, prompt, _ := strings.Cut(req.Args, " ")
	if err := s.SetDefaultPrompt(name, prompt); err != nil {
		return err
	}
	req.Reply(fmt.Sprintf("Default prompt for %s set", name))
	return nil
}

func (s *State) showConfig(ctx context.Context, req *command.Request) error {
	if req.Args != "" {
		return command.ErrArgumentNotAllowed
	}
	req.Reply(strings.TrimRight(s.store.Snapshot().String(), "\n"))
	return nil
}
