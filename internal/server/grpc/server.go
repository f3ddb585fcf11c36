package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
)

// TokenVerifier is satisfied by *auth.Issuer.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

type GRPCServer struct {
	address  string
	verifier TokenVerifier
	logger   logging.Logger
}

var _ TokenServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, v TokenVerifier) *GRPCServer {
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		verifier: v,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	RegisterTokenServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) Verify(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.verifier.Verify(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return identityStruct(id)
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := identityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return identityStruct(id)
}

func identityStruct(id *auth.Identity) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]any{
		"sub":   id.SubjectID,
		"email": id.Email,
		"exp":   id.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode identity")
	}
	return st, nil
}
