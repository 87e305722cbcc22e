// Package distributed serves the build event log over gRPC so build slaves can
// publish events and the coordinator can read them back by range.
//
// The messages are google.protobuf.Struct values carried by the default proto
// codec. Conversion to and from domain types happens only in wire.go.
package distributed

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rig.distributed.v1.BuildSlaveEvents"

const (
	queryEventsMethod   = "/" + ServiceName + "/QueryEvents"
	publishEventsMethod = "/" + ServiceName + "/PublishEvents"
	openRunMethod       = "/" + ServiceName + "/OpenRun"
)

// eventsService is the handler type checked by grpc.Server.RegisterService.
type eventsService interface {
	QueryEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PublishEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	OpenRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*eventsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryEvents", Handler: unaryHandler(queryEventsMethod, eventsService.QueryEvents)},
		{MethodName: "PublishEvents", Handler: unaryHandler(publishEventsMethod, eventsService.PublishEvents)},
		{MethodName: "OpenRun", Handler: unaryHandler(openRunMethod, eventsService.OpenRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rig/distributed/v1/events",
}

type unaryMethod func(eventsService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	//nolint:revive // argument order is fixed by grpc.MethodHandler
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc, _ := srv.(eventsService)
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

// Register installs the event service of srv on a gRPC server.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}
