package server

import (
	"context"
	"net"
	"testing"

	"github.com/sokinpui/gpt2bot.go/client"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCClient(t *testing.T, downloaded ...string) (*fixture, client.Client) {
	t.Helper()

	f := newFixture(t, downloaded...)
	lis := bufconn.Listen(1 << 20)

	s := grpc.NewServer()
	rpc.RegisterBotServer(s, New(f.state, f.dispatcher))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := client.New("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return f, c
}

func TestGRPCExecute(t *testing.T) {
	_, c := newGRPCClient(t, "124M")
	ctx := context.Background()

	replies, handled, err := c.Execute(ctx, "bob", ";;gpt2 Hello")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"Generating...", "Hello [124M 100 tokens]"}, replies)

	replies, handled, err = c.Execute(ctx, "bob", ";;set_length 0")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"ERROR: Argument must be a positive integer number less than 1024"}, replies)

	_, handled, err = c.Execute(ctx, "bob", "hello")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestGRPCGenerate(t *testing.T) {
	_, c := newGRPCClient(t, "124M", "355M")
	ctx := context.Background()

	text, err := c.Generate(ctx, "Hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello [124M 100 tokens]", text)

	text, err = c.Generate(ctx, "Hello", "355M")
	require.NoError(t, err)
	assert.Equal(t, "[355M 100 tokens]", text)
}

func TestGRPCGenerateErrors(t *testing.T) {
	_, c := newGRPCClient(t)
	ctx := context.Background()

	_, err := c.Generate(ctx, "", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Prompt required", status.Convert(err).Message())

	_, err = c.Generate(ctx, "Hello", "")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "Model 124M is not downloaded", status.Convert(err).Message())

	_, err = c.Generate(ctx, "Hello", "2G")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCConfig(t *testing.T) {
	f, c := newGRPCClient(t)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Defaults(), cfg)

	cfg, err = c.UpdateConfig(ctx, store.Batch{{Key: "top_p", Value: "0.5"}, {Key: "top_k", Value: "10"}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.TopP)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, cfg, f.store.Snapshot())

	_, err = c.UpdateConfig(ctx, store.Batch{{Key: "top_p", Value: "0.1"}, {Key: "length", Value: "-5"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Invalid config length=-5", status.Convert(err).Message())
	assert.Equal(t, cfg, f.store.Snapshot())

	cfg, err = c.ResetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Defaults(), cfg)
}

func TestGRPCUnimplemented(t *testing.T) {
	var s rpc.UnimplementedBotServer
	_, err := s.Execute(context.Background(), &rpc.ExecuteRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
