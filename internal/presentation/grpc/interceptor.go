package grpcpresentation

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataRequestID = "x-request-id"

// mdCarrier adapts grpc metadata to the otel TextMapCarrier.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c mdCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// succeeded is implemented by responses that carry an application outcome.
type succeeded interface {
	Succeeded() bool
}

// UnaryServerInterceptor extracts trace context, opens a server span,
// injects a request-scoped logger, recovers panics and records
// grpc_requests_total{method,outcome}.
func UnaryServerInterceptor(tel observability.Observability) grpc.UnaryServerInterceptor {
	tel = observability.OrNop(tel)
	base := tel.Logger().With(observability.F("component", "grpc_server"))
	requests := tel.Metrics().Counter(observability.MGRPCRequests)
	prop := otel.GetTextMapPropagator()
	tracer := otel.Tracer("inventory.grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		method := path.Base(info.FullMethod)
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = prop.Extract(ctx, mdCarrier(md.Copy()))

		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.method", method),
			),
		)
		defer span.End()

		rid := mdCarrier(md).Get(metadataRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		fields := []observability.Field{
			observability.F("request_id", rid),
			observability.F("rpc_method", method),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		logger := base.With(fields...)
		ctx = logctx.With(ctx, logger)

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc_handler_panic",
					observability.F("panic", fmt.Sprint(r)),
					observability.F("stack", string(debug.Stack())),
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			outcome := "success"
			switch {
			case err != nil:
				outcome = "error"
				span.RecordError(err)
				span.SetStatus(otelcodes.Error, status.Code(err).String())
			default:
				if s, ok := resp.(succeeded); ok && !s.Succeeded() {
					outcome = "rejected"
				}
				span.SetStatus(otelcodes.Ok, outcome)
			}
			requests.Add(1, observability.L("method", method), observability.L("outcome", outcome))

			logger.Info("grpc_access",
				observability.F("outcome", outcome),
				observability.F("code", status.Code(err).String()),
				observability.F("latency_ms", time.Since(start).Milliseconds()),
			)
		}()

		return handler(ctx, req)
	}
}

// unaryClientInterceptor propagates trace context to the server.
func unaryClientInterceptor() grpc.UnaryClientInterceptor {
	prop := otel.GetTextMapPropagator()
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		prop.Inject(ctx, mdCarrier(md))
		return invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
	}
}
