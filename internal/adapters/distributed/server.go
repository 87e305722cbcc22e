package distributed

import (
	"context"
	"errors"
	"net"

	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server exposes an EventLog over gRPC.
type Server struct {
	log    ports.EventLog
	logger ports.Logger
}

var _ eventsService = (*Server)(nil)

// NewServer creates a Server over log.
func NewServer(log ports.EventLog, logger ports.Logger) *Server {
	return &Server{log: log, logger: logger}
}

// QueryEvents answers a range query. Failures of the log travel inside the range.
func (s *Server) QueryEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := queryFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r := s.log.Query(ctx, q.decode())
	return EncodeRange(r).ToStruct(), nil
}

// PublishEvents appends a batch of events to a run.
func (s *Server) PublishEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, events, err := parsePublishRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	seqs, err := s.log.Publish(ctx, runID, events)
	if err != nil {
		s.logger.Warn("publish events failed", "run", runID.String(), "error", err.Error())
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return publishResponse(seqs), nil
}

// OpenRun starts a new run.
func (s *Server) OpenRun(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	runID, err := s.log.OpenRun(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Debug("opened run", "run", runID.String())
	return openRunResponse(runID), nil
}

// Serve runs a standalone gRPC server for the event service on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	Register(grpcServer, s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return zerr.Wrap(err, "event service stopped")
	}
}
