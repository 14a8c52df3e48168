package client

import (
	"context"

	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is an interface for interacting with a running gpt2bot server.
type Client interface {
	// Execute sends a chat command, prefix included, and returns the bot's
	// replies. handled is false when the text is not a known command.
	Execute(ctx context.Context, author, text string) (replies []string, handled bool, err error)

	// Generate runs prompt with the configured model, or with model for this
	// request only when it is not empty.
	Generate(ctx context.Context, prompt, model string) (string, error)

	GetConfig(ctx context.Context) (store.Configuration, error)

	// UpdateConfig applies changes atomically.
	UpdateConfig(ctx context.Context, changes store.Batch) (store.Configuration, error)

	// ResetConfig restores the default configuration.
	ResetConfig(ctx context.Context) (store.Configuration, error)

	// Close closes the connection to the server.
	Close() error
}

// grpcClient is the gRPC implementation of the Client interface.
type grpcClient struct {
	conn   *grpc.ClientConn
	client rpc.BotClient
}

// New creates a client for the server at addr. Without options the
// connection is insecure.
func New(addr string, opts ...grpc.DialOption) (Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}

	return &grpcClient{
		conn:   conn,
		client: rpc.NewBotClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *grpcClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *grpcClient) Execute(ctx context.Context, author, text string) ([]string, bool, error) {
	resp, err := c.client.Execute(ctx, &rpc.ExecuteRequest{Author: author, Text: text})
	if err != nil {
		return nil, false, err
	}
	return resp.Replies, resp.Handled, nil
}

func (c *grpcClient) Generate(ctx context.Context, prompt, model string) (string, error) {
	resp, err := c.client.Generate(ctx, &rpc.GenerateRequest{Prompt: prompt, Model: model})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *grpcClient) GetConfig(ctx context.Context) (store.Configuration, error) {
	resp, err := c.client.GetConfig(ctx, &rpc.GetConfigRequest{})
	if err != nil {
		return store.Configuration{}, err
	}
	return resp.Config, nil
}

func (c *grpcClient) UpdateConfig(ctx context.Context, changes store.Batch) (store.Configuration, error) {
	resp, err := c.client.UpdateConfig(ctx, &rpc.UpdateConfigRequest{Changes: changes})
	if err != nil {
		return store.Configuration{}, err
	}
	return resp.Config, nil
}

func (c *grpcClient) ResetConfig(ctx context.Context) (store.Configuration, error) {
	resp, err := c.client.UpdateConfig(ctx, &rpc.UpdateConfigRequest{Reset: true})
	if err != nil {
		return store.Configuration{}, err
	}
	return resp.Config, nil
}
