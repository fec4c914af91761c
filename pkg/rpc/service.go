package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the grpc service path segment for the underlayer
// transport, matching the shape a protoc-generated ServiceDesc would
// use even though this one is hand-built.
const ServiceName = "scheduler.underlayer.Underlayer"

// UnderlayerServer is implemented by pkg/localproxy's server, which
// cmd/schedulerd registers on its grpc.Server. Each method corresponds to one grpc call the
// domain scheduler makes into a local.
type UnderlayerServer interface {
	Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error)
	UnReserve(ctx context.Context, req *UnReserveRequest) (*Ack, error)
	Bind(ctx context.Context, req *BindRequest) (*BindResponse, error)
	UnBind(ctx context.Context, req *UnBindRequest) (*Ack, error)
	ClearGroup(ctx context.Context, req *ClearGroupRequest) (*Ack, error)
	Preempt(ctx context.Context, req *PreemptRequest) (*Ack, error)
	Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error)
	PullResource(ctx context.Context, req *PullResourceRequest) (*PullResourceResponse, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
}

func handle(dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor, info *grpc.UnaryServerInfo, req interface{}, call func(ctx context.Context, req interface{}) (interface{}, error)) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req)
		})
	}
}

// ServiceDesc is registered on the grpc.Server started by cmd/schedulerd
// and consumed on the client side via the method paths it declares.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UnderlayerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Reserve", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(ReserveRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/Reserve"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).Reserve(ctx, req.(*ReserveRequest))
			})(ctx)
		}),
		unaryMethod("UnReserve", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(UnReserveRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/UnReserve"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).UnReserve(ctx, req.(*UnReserveRequest))
			})(ctx)
		}),
		unaryMethod("Bind", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(BindRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/Bind"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).Bind(ctx, req.(*BindRequest))
			})(ctx)
		}),
		unaryMethod("UnBind", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(UnBindRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/UnBind"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).UnBind(ctx, req.(*UnBindRequest))
			})(ctx)
		}),
		unaryMethod("ClearGroup", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(ClearGroupRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/ClearGroup"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).ClearGroup(ctx, req.(*ClearGroupRequest))
			})(ctx)
		}),
		unaryMethod("Preempt", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(PreemptRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/Preempt"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).Preempt(ctx, req.(*PreemptRequest))
			})(ctx)
		}),
		unaryMethod("Dispatch", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(DispatchRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/Dispatch"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).Dispatch(ctx, req.(*DispatchRequest))
			})(ctx)
		}),
		unaryMethod("PullResource", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(PullResourceRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/PullResource"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).PullResource(ctx, req.(*PullResourceRequest))
			})(ctx)
		}),
		unaryMethod("Heartbeat", func(s interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(HeartbeatRequest)
			info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/" + ServiceName + "/Heartbeat"}
			return handle(dec, interceptor, info, req, func(ctx context.Context, req interface{}) (interface{}, error) {
				return s.(UnderlayerServer).Heartbeat(ctx, req.(*HeartbeatRequest))
			})(ctx)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpc/service.go",
}

func unaryMethod(name string, handler func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{MethodName: name, Handler: handler}
}
