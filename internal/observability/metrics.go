package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const unknownLabel = "unknown"

// AdminCollector counts and times admin gRPC calls.
type AdminCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewAdminCollector registers admin RPC metrics on reg, or on the default
// registry when reg is nil.
func NewAdminCollector(reg prometheus.Registerer) (*AdminCollector, error) {
	reg, gatherer := registryPair(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_requests_total",
		Help: "Admin RPCs handled, by service, method and gRPC status code.",
	}, []string{"service", "method", "code"}), "admin_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admin_request_duration_seconds",
		Help:    "Admin RPC latency in seconds. Streams are timed until they close.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 10, 60},
	}, []string{"service", "method"}), "admin_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &AdminCollector{gatherer: gatherer, RPCRequests: requests, RPCDurations: durations}, nil
}

func (c *AdminCollector) observe(fullMethod string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	service, method := SplitMethod(fullMethod)
	if c.RPCRequests != nil {
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
	}
	if c.RPCDurations != nil {
		c.RPCDurations.WithLabelValues(service, method).Observe(elapsed.Seconds())
	}
}

// UnaryServerInterceptor records every unary call.
func (c *AdminCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		var method string
		if info != nil {
			method = info.FullMethod
		}
		c.observe(method, err, time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor records every stream once it ends, such as a
// health Watch.
func (c *AdminCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		var method string
		if info != nil {
			method = info.FullMethod
		}
		c.observe(method, err, time.Since(start))
		return err
	}
}

// Handler serves /metrics from the collector's registry.
func (c *AdminCollector) Handler() http.Handler {
	return HandlerFor(c.gatherer)
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"). Missing
// parts come back as "unknown".
func SplitMethod(fullMethod string) (string, string) {
	path := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[strings.LastIndex(path[:i], "/")+1:]
	}
	service, method, ok := strings.Cut(path, "/")
	if !ok {
		return unknownLabel, unknownLabel
	}
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	}
	return orUnknown(service), orUnknown(method)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}
