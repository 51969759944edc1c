package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// UnaryServerInterceptor authenticates the "authorization" metadata of
// each unary call and stores claims and account on the handler context.
func UnaryServerInterceptor(verifier ClaimsVerifier, resolver AccountResolver, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticateGRPC(ctx, verifier, resolver)
		if err != nil {
			logAuthFailure(ctx, logger, err, info.FullMethod)
			return nil, grpcStatus(err)
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(verifier ClaimsVerifier, resolver AccountResolver, logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticateGRPC(ss.Context(), verifier, resolver)
		if err != nil {
			logAuthFailure(ctx, logger, err, info.FullMethod)
			return grpcStatus(err)
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticateGRPC(ctx context.Context, verifier ClaimsVerifier, resolver AccountResolver) (context.Context, error) {
	var authorization string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(HeaderAuthorization); len(values) > 0 {
			authorization = values[0]
		}
	}
	return Authenticate(ctx, verifier, resolver, authorization)
}

// grpcStatus converts a taxonomy error to a gRPC status. Only the code's
// message crosses the wire.
func grpcStatus(err error) error {
	e, ok := sserr.AsError(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	var c codes.Code
	switch e.Code.Category() {
	case "AUTH":
		c = codes.Unauthenticated
	case "VAL":
		c = codes.InvalidArgument
	case "NF":
		c = codes.NotFound
	case "CONF":
		c = codes.AlreadyExists
	case "UNAVAIL":
		c = codes.Unavailable
	case "TIMEOUT":
		c = codes.DeadlineExceeded
	default:
		c = codes.Internal
	}
	return status.Error(c, e.Code.String()+": "+e.Message)
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
