package grpcprobe

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "narwhal.probe.v1.Probe"
	runMethod   = "/" + ServiceName + "/Run"
)

// ProbeServer is implemented by probes that run out of process. The request
// carries "step", "client", "assets", "constraints", "assessment" and "notes";
// the response should be shaped like a step result (status, raw, summary).
type ProbeServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterProbeServer exposes srv on a gRPC server.
func RegisterProbeServer(s grpc.ServiceRegistrar, srv ProbeServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProbeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "narwhal/probe/v1/probe.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProbeServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProbeServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
