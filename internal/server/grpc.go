package server

import (
	"context"
	"log"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/color"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/rpc"
)

// Server implements the gpt2bot.Bot gRPC service.
type Server struct {
	rpc.UnimplementedBotServer
	state      *bot.State
	dispatcher *command.Dispatcher
}

func New(state *bot.State, d *command.Dispatcher) *Server {
	return &Server{
		state:      state,
		dispatcher: d,
	}
}

func (s *Server) Execute(ctx context.Context, req *rpc.ExecuteRequest) (*rpc.ExecuteResponse, error) {
	log.Printf("-> %s from %s", color.BlueString("Received command"), req.Author)
	replies, handled := s.dispatcher.Collect(ctx, command.Message{
		Author: req.Author,
		Text:   req.Text,
		SentAt: time.Now(),
	})
	return &rpc.ExecuteResponse{Handled: handled, Replies: replies}, nil
}

func (s *Server) Generate(ctx context.Context, req *rpc.GenerateRequest) (*rpc.GenerateResponse, error) {
	log.Printf("-> %s (gRPC)", color.BlueString("Received generate request"))

	var (
		text string
		err  error
	)
	if req.Model != "" {
		text, err = s.state.Custom(ctx, req.Model, req.Prompt, nil)
	} else {
		text, err = s.state.Generate(ctx, req.Prompt, nil)
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return &rpc.GenerateResponse{Text: text}, nil
}

func (s *Server) GetConfig(ctx context.Context, req *rpc.GetConfigRequest) (*rpc.ConfigResponse, error) {
	return &rpc.ConfigResponse{Config: s.state.Config()}, nil
}

func (s *Server) UpdateConfig(ctx context.Context, req *rpc.UpdateConfigRequest) (*rpc.ConfigResponse, error) {
	var err error
	if req.Reset {
		_, err = s.state.ResetConfig(ctx)
	} else {
		_, err = s.state.UpdateConfig(ctx, req.Changes)
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return &rpc.ConfigResponse{Config: s.state.Config()}, nil
}
