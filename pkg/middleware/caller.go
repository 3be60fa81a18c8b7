package middleware

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	CallerHeader      = "X-Caller-ID"
	CallerMetadataKey = "x-caller-id"
)

type callerKey struct{}

// WithCaller stores the authenticated caller identity on ctx.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller identity, if any.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}

// CallerFromRequest reads the caller header of a plain HTTP request.
func CallerFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(CallerHeader))
}

// CallerAnnotator forwards the caller header to gRPC metadata for routes
// proxied through the gateway mux.
func CallerAnnotator(ctx context.Context, req *http.Request) metadata.MD {
	md := metadata.New(nil)
	if caller := CallerFromRequest(req); caller != "" {
		md.Set(CallerMetadataKey, caller)
	}
	return md
}

// CallerInterceptor lifts x-caller-id from incoming metadata into the
// request context.
func CallerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		if ids := md.Get(CallerMetadataKey); len(ids) > 0 {
			ctx = WithCaller(ctx, strings.TrimSpace(ids[0]))
		}
		return handler(ctx, req)
	}
}
