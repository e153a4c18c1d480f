package auth

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Checker validates an API key. The zero value, or any mode other than
// "apikey", or an empty key, allows everything.
type Checker struct {
	Mode   string
	Header string
	Key    string
}

// Enabled reports whether requests are actually checked.
func (c Checker) Enabled() bool {
	return c.Mode == "apikey" && c.Key != ""
}

func (c Checker) valid(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.Key)) == 1
}

// checkMetadata reads the key from the incoming gRPC metadata.
// header must be lowercase; gRPC normalises metadata keys.
func (c Checker) checkMetadata(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(c.Header)
	if len(vals) == 0 || !c.valid(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that enforces the
// API key on every incoming call. A missing, empty, or incorrect key returns
// codes.Unauthenticated.
func (c Checker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := c.checkMetadata(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor
// (the health service's Watch is a server stream).
func (c Checker) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := c.checkMetadata(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
