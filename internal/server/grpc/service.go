package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenService messages are protobuf well-known types, so the service
// descriptor is written by hand instead of generated.
const (
	ServiceName       = "todoauth.v1.TokenService"
	VerifyFullMethod  = "/" + ServiceName + "/Verify"
	WhoAmIFullMethod  = "/" + ServiceName + "/WhoAmI"
	tokenServiceProto = "todoauth/v1/token.proto"
)

// TokenServiceServer verifies session tokens for services that do not hold
// the signing secret.
type TokenServiceServer interface {
	// Verify checks the token in the request and returns {sub, email, exp}.
	Verify(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// WhoAmI returns the identity of the token sent in the authorization metadata.
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: tokenServiceProto,
}

func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

func verifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VerifyFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).Verify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenServiceClient calls TokenService over an existing connection.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func (c *TokenServiceClient) Verify(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VerifyFullMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenServiceClient) WhoAmI(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WhoAmIFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
