// Package daemon implements the background daemon of rig. It keeps one build session
// per workspace and serves it over gRPC on a Unix domain socket.
//
// The messages are google.protobuf.Struct values carried by the default proto codec.
// Conversion to and from domain types happens only in messages.go.
package daemon

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rig.daemon.v1.Daemon"

const (
	pingMethod     = "/" + ServiceName + "/Ping"
	statusMethod   = "/" + ServiceName + "/Status"
	buildMethod    = "/" + ServiceName + "/Build"
	shutdownMethod = "/" + ServiceName + "/Shutdown"
)

// daemonService is the handler type checked by grpc.Server.RegisterService.
type daemonService interface {
	Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Build(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Shutdown(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*daemonService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unaryHandler(pingMethod, daemonService.Ping)},
		{MethodName: "Status", Handler: unaryHandler(statusMethod, daemonService.Status)},
		{MethodName: "Build", Handler: unaryHandler(buildMethod, daemonService.Build)},
		{MethodName: "Shutdown", Handler: unaryHandler(shutdownMethod, daemonService.Shutdown)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rig/daemon/v1/daemon",
}

type unaryMethod func(daemonService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	//nolint:revive // argument order is fixed by grpc.MethodHandler
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc, _ := srv.(daemonService)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			s, _ := req.(*structpb.Struct)
			return call(svc, ctx, s)
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register installs the daemon service of srv on a gRPC server.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}
