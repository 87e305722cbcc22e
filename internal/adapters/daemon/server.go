package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.trai.ch/rig/internal/adapters/distributed"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const metricsReadHeaderTimeout = 5 * time.Second

var errNoResult = zerr.New("build returned no result")

// Handler runs the requests of the daemon against its session.
type Handler interface {
	Build(ctx context.Context, req ports.BuildRequest) (*domain.BuildResult, error)
	GraphCacheStats() (hits, misses int64)
}

// Server implements the gRPC daemon service.
type Server struct {
	lifecycle   *Lifecycle
	handler     Handler
	logger      ports.Logger
	events      ports.EventLog
	metricsAddr string
	metrics     http.Handler
}

var _ daemonService = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithEventLog also serves the build event service on the daemon socket.
func WithEventLog(log ports.EventLog) Option {
	return func(s *Server) { s.events = log }
}

// WithMetrics serves h at /metrics on addr. An empty addr disables the endpoint.
func WithMetrics(addr string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsAddr = addr
		s.metrics = h
	}
}

// NewServer creates a new daemon server.
func NewServer(lifecycle *Lifecycle, handler Handler, logger ports.Logger, opts ...Option) *Server {
	s := &Server{lifecycle: lifecycle, handler: handler, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens on the daemon socket of root until ctx is done or the lifecycle
// shuts down.
func (s *Server) Serve(ctx context.Context, root string) error {
	socketPath := domain.DaemonSocketPath(root)

	if err := os.MkdirAll(filepath.Dir(socketPath), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create daemon directory")
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return zerr.Wrap(err, "failed to remove stale socket")
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen on UDS"), "socket", socketPath)
	}
	if err := os.Chmod(socketPath, domain.SocketPerm); err != nil {
		_ = lis.Close()
		return zerr.Wrap(err, "failed to set socket permissions")
	}

	pidPath := domain.DaemonPIDPath(root)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), domain.PrivateFilePerm); err != nil {
		_ = lis.Close()
		return zerr.Wrap(err, "failed to write PID file")
	}
	defer func() {
		_ = os.Remove(socketPath)
		_ = os.Remove(pidPath)
	}()

	s.logger.Info("daemon listening", "socket", socketPath, "pid", os.Getpid())
	return s.ServeListener(ctx, lis)
}

// ServeListener serves the daemon on lis until ctx is done or the lifecycle shuts down.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	Register(grpcServer, s)
	if s.events != nil {
		distributed.Register(grpcServer, distributed.NewServer(s.events, s.logger))
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	var metricsServer *http.Server
	if s.metricsAddr != "" && s.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics)
		metricsServer = &http.Server{Addr: s.metricsAddr, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Warn("metrics endpoint stopped", "addr", s.metricsAddr, "error", err.Error())
			}
		}()
		s.logger.Info("serving metrics", "addr", s.metricsAddr)
	}
	defer func() {
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
	}()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case <-s.lifecycle.ShutdownChan():
		s.logger.Info("daemon shutting down", "uptime", s.lifecycle.Uptime().String())
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return zerr.Wrap(err, "daemon server stopped")
	}
}

// Ping implements the Ping method.
func (s *Server) Ping(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.lifecycle.ResetTimer()
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldIdleRemaining: durationValue(s.lifecycle.IdleRemaining()),
	}}, nil
}

// Status implements the Status method.
func (s *Server) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.lifecycle.ResetTimer()
	hits, misses := s.handler.GraphCacheStats()
	return statusToStruct(&ports.DaemonStatus{
		Running:          true,
		PID:              os.Getpid(),
		Uptime:           s.lifecycle.Uptime(),
		LastActivity:     s.lifecycle.LastActivity(),
		IdleRemaining:    s.lifecycle.IdleRemaining(),
		GraphCacheHits:   hits,
		GraphCacheMisses: misses,
	}), nil
}

// Build implements the Build method. A build with failed rules is a successful call
// whose result is flagged as failed.
func (s *Server) Build(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	end := s.lifecycle.Begin()
	defer end()

	r, err := buildRequestFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := s.handler.Build(ctx, r)
	if result == nil && err == nil {
		err = errNoResult
	}
	switch {
	case result != nil && (err == nil || errors.Is(err, domain.ErrBuildExecutionFailed)):
		return buildResultToStruct(result, err != nil), nil
	case errors.Is(err, context.Canceled):
		return nil, status.Error(codes.Canceled, err.Error())
	default:
		s.logger.Warn("daemon build failed", "cwd", r.Cwd, "error", err.Error())
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
}

// Shutdown implements the Shutdown method.
func (s *Server) Shutdown(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.lifecycle.Shutdown()
	return &structpb.Struct{}, nil
}
