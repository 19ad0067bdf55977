package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
)

// Client is a typed CodePilot client. Every call is sent with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, "Register", in, opts)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *Client) GetDashboard(ctx context.Context, in *GetDashboardRequest, opts ...grpc.CallOption) (*Dashboard, error) {
	return invoke[Dashboard](ctx, c.cc, "GetDashboard", in, opts)
}

func (c *Client) CheckCredits(ctx context.Context, in *CheckCreditsRequest, opts ...grpc.CallOption) (*CheckCreditsResponse, error) {
	return invoke[CheckCreditsResponse](ctx, c.cc, "CheckCredits", in, opts)
}

func (c *Client) DeductCredits(ctx context.Context, in *DeductCreditsRequest, opts ...grpc.CallOption) (*DeductCreditsResponse, error) {
	return invoke[DeductCreditsResponse](ctx, c.cc, "DeductCredits", in, opts)
}

func (c *Client) UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*UpdateProfileResponse, error) {
	return invoke[UpdateProfileResponse](ctx, c.cc, "UpdateProfile", in, opts)
}

func (c *Client) ListTools(ctx context.Context, in *ListToolsRequest, opts ...grpc.CallOption) (*ListToolsResponse, error) {
	return invoke[ListToolsResponse](ctx, c.cc, "ListTools", in, opts)
}

// WatchClient receives streamed changes.
type WatchClient interface {
	Recv() (*Change, error)
	grpc.ClientStream
}

// Watch opens the change stream for the authenticated identity.
func (c *Client) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("Watch"), withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &watchClient{stream}
	// io.EOF means the server already ended the stream; Recv reports the status.
	if err := x.ClientStream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type watchClient struct{ grpc.ClientStream }

func (x *watchClient) Recv() (*Change, error) {
	m := new(Change)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
