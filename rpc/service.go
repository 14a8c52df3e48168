package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "gpt2bot.Bot"

const (
	ExecuteMethod      = "/" + ServiceName + "/Execute"
	GenerateMethod     = "/" + ServiceName + "/Generate"
	GetConfigMethod    = "/" + ServiceName + "/GetConfig"
	UpdateConfigMethod = "/" + ServiceName + "/UpdateConfig"
)

// BotServer is the server API of the gpt2bot.Bot service.
type BotServer interface {
	Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error)
	Generate(context.Context, *GenerateRequest) (*GenerateResponse, error)
	GetConfig(context.Context, *GetConfigRequest) (*ConfigResponse, error)
	UpdateConfig(context.Context, *UpdateConfigRequest) (*ConfigResponse, error)
}

// UnimplementedBotServer answers every method with codes.Unimplemented.
type UnimplementedBotServer struct{}

func (UnimplementedBotServer) Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Execute not implemented")
}

func (UnimplementedBotServer) Generate(context.Context, *GenerateRequest) (*GenerateResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Generate not implemented")
}

func (UnimplementedBotServer) GetConfig(context.Context, *GetConfigRequest) (*ConfigResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConfig not implemented")
}

func (UnimplementedBotServer) UpdateConfig(context.Context, *UpdateConfigRequest) (*ConfigResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateConfig not implemented")
}

func RegisterBotServer(s grpc.ServiceRegistrar, srv BotServer) {
	s.RegisterService(&BotServiceDesc, srv)
}

// unary builds the method handler of one unary call.
func unary[Req any, Resp any](method string, call func(BotServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BotServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BotServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var BotServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BotServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: unary(ExecuteMethod, BotServer.Execute)},
		{MethodName: "Generate", Handler: unary(GenerateMethod, BotServer.Generate)},
		{MethodName: "GetConfig", Handler: unary(GetConfigMethod, BotServer.GetConfig)},
		{MethodName: "UpdateConfig", Handler: unary(UpdateConfigMethod, BotServer.UpdateConfig)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gpt2bot.Bot",
}

// BotClient is the client API of the gpt2bot.Bot service.
type BotClient interface {
	Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteResponse, error)
	Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error)
	GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*ConfigResponse, error)
	UpdateConfig(ctx context.Context, in *UpdateConfigRequest, opts ...grpc.CallOption) (*ConfigResponse, error)
}

type botClient struct {
	cc grpc.ClientConnInterface
}

func NewBotClient(cc grpc.ClientConnInterface) BotClient {
	return &botClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *botClient) Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteResponse, error) {
	return invoke[ExecuteResponse](ctx, c.cc, ExecuteMethod, in, opts)
}

func (c *botClient) Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	return invoke[GenerateResponse](ctx, c.cc, GenerateMethod, in, opts)
}

func (c *botClient) GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*ConfigResponse, error) {
	return invoke[ConfigResponse](ctx, c.cc, GetConfigMethod, in, opts)
}

func (c *botClient) UpdateConfig(ctx context.Context, in *UpdateConfigRequest, opts ...grpc.CallOption) (*ConfigResponse, error) {
	return invoke[ConfigResponse](ctx, c.cc, UpdateConfigMethod, in, opts)
}
