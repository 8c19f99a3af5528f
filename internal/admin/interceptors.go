package admin

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor tags each admin call with a request id,
// taken from the x-request-id header when the caller sends one, and stores a
// logger carrying that id and the method on the context.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if id := incomingRequestID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		resp, err := handler(logging.ContextWithLogger(ctx, log), req)
		switch {
		case err != nil:
			log.Warn(ctx, "admin call failed", logging.Err(err))
		default:
			log.Debug(ctx, "admin call served")
		}
		return resp, err
	}
}

// SpanAttributesUnaryServerInterceptor annotates the otelgrpc server span.
func SpanAttributesUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return handler(ctx, req)
		}
		svc, method := observability.SplitMethod(info.FullMethod)
		span.SetAttributes(
			attribute.String("rpc.service", svc),
			attribute.String("rpc.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(requestIDMetadataKey) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
