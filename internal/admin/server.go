// Package admin serves the operational surface of wallsim: the standard gRPC
// health service and a Prometheus /metrics endpoint.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/observability"
)

// ServiceName is the health-check service reported alongside the server-wide
// ("") status.
const ServiceName = "wallstream.WallManager"

const shutdownTimeout = 5 * time.Second

// Options configures a Server. Zero values are usable.
type Options struct {
	Logger    logging.Logger
	Collector *observability.AdminCollector
	// Gatherer backs /metrics. Defaults to the collector's registry.
	Gatherer prometheus.Gatherer
}

// Server owns the admin gRPC server and the metrics HTTP handler.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	metrics http.Handler
	log     logging.Logger
}

// New builds a Server that reports NOT_SERVING until SetServing(true).
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}

	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		SpanAttributesUnaryServerInterceptor(),
	}
	var stream []grpc.StreamServerInterceptor
	if opts.Collector != nil {
		unary = append(unary, opts.Collector.UnaryServerInterceptor())
		stream = append(stream, opts.Collector.StreamServerInterceptor())
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	var metrics http.Handler
	switch {
	case opts.Gatherer != nil:
		metrics = observability.HandlerFor(opts.Gatherer)
	case opts.Collector != nil:
		metrics = opts.Collector.Handler()
	default:
		metrics = observability.HandlerFor(nil)
	}

	return &Server{grpc: srv, health: hs, metrics: metrics, log: log}
}

// SetServing flips the reported health of both the server and ServiceName.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// MetricsHandler returns the /metrics handler.
func (s *Server) MetricsHandler() http.Handler { return s.metrics }

// Serve runs the gRPC server on grpcLis and, when metricsLis is non-nil, the
// metrics endpoint on metricsLis. It blocks until ctx is canceled or a server
// fails, then shuts both down. Cancellation is not an error.
func (s *Server) Serve(ctx context.Context, grpcLis, metricsLis net.Listener) error {
	if grpcLis == nil {
		return errors.New("admin: gRPC listener is required")
	}
	errCh := make(chan error, 2)

	s.log.Info(ctx, "starting admin gRPC server", logging.String("addr", grpcLis.Addr().String()))
	go func() {
		if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("admin gRPC server: %w", err)
		}
	}()

	var httpSrv *http.Server
	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics)
		httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.log.Info(ctx, "serving Prometheus metrics", logging.String("addr", metricsLis.Addr().String()))
		go func() {
			if err := httpSrv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.log.Error(ctx, "admin server exited", logging.Err(serveErr))
	}

	s.log.Info(context.Background(), "shutting down admin server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn(context.Background(), "metrics server shutdown", logging.Err(err))
		}
	}
	return serveErr
}

// ListenAndServe opens TCP listeners for the given addresses and calls Serve.
// An empty metricsAddr disables the metrics endpoint.
func (s *Server) ListenAndServe(ctx context.Context, grpcAddr, metricsAddr string) error {
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen admin %s: %w", grpcAddr, err)
	}
	var metricsLis net.Listener
	if metricsAddr != "" {
		metricsLis, err = net.Listen("tcp", metricsAddr)
		if err != nil {
			_ = grpcLis.Close()
			return fmt.Errorf("listen metrics %s: %w", metricsAddr, err)
		}
	}
	return s.Serve(ctx, grpcLis, metricsLis)
}
