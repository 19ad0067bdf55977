package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "codepilot.v1.CodePilot"

// FullMethod returns "/codepilot.v1.CodePilot/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// CodePilotServer is the server API for the CodePilot service.
type CodePilotServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	GetDashboard(context.Context, *GetDashboardRequest) (*Dashboard, error)
	CheckCredits(context.Context, *CheckCreditsRequest) (*CheckCreditsResponse, error)
	DeductCredits(context.Context, *DeductCreditsRequest) (*DeductCreditsResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error)
	ListTools(context.Context, *ListToolsRequest) (*ListToolsResponse, error)
	Watch(*WatchRequest, WatchServer) error
}

// WatchServer is the server side of the Watch stream.
type WatchServer interface {
	Send(*Change) error
	grpc.ServerStream
}

// UnimplementedCodePilotServer answers Unimplemented for every method.
type UnimplementedCodePilotServer struct{}

func (UnimplementedCodePilotServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}
func (UnimplementedCodePilotServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedCodePilotServer) GetDashboard(context.Context, *GetDashboardRequest) (*Dashboard, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDashboard not implemented")
}
func (UnimplementedCodePilotServer) CheckCredits(context.Context, *CheckCreditsRequest) (*CheckCreditsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckCredits not implemented")
}
func (UnimplementedCodePilotServer) DeductCredits(context.Context, *DeductCreditsRequest) (*DeductCreditsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeductCredits not implemented")
}
func (UnimplementedCodePilotServer) UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateProfile not implemented")
}
func (UnimplementedCodePilotServer) ListTools(context.Context, *ListToolsRequest) (*ListToolsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListTools not implemented")
}
func (UnimplementedCodePilotServer) Watch(*WatchRequest, WatchServer) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

// RegisterCodePilotServer registers srv on s.
func RegisterCodePilotServer(s grpc.ServiceRegistrar, srv CodePilotServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a MethodDesc that decodes Req and dispatches through the interceptor chain.
func unary[Req, Resp any](method string, call func(CodePilotServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CodePilotServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CodePilotServer).Watch(in, &watchServer{stream})
}

type watchServer struct{ grpc.ServerStream }

func (x *watchServer) Send(m *Change) error { return x.ServerStream.SendMsg(m) }

// ServiceDesc describes the CodePilot service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CodePilotServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", CodePilotServer.Register),
		unary("Login", CodePilotServer.Login),
		unary("GetDashboard", CodePilotServer.GetDashboard),
		unary("CheckCredits", CodePilotServer.CheckCredits),
		unary("DeductCredits", CodePilotServer.DeductCredits),
		unary("UpdateProfile", CodePilotServer.UpdateProfile),
		unary("ListTools", CodePilotServer.ListTools),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "codepilot/v1/codepilot",
}
