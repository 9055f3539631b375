package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// The service descriptor is written by hand: the handler shape matches
// what protoc-gen-go-grpc emits, minus the protobuf message layer, so
// interceptors and reflection-free clients work unchanged.

const fullService = "janus.Engine"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: fullService,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
		{MethodName: "Modify", Handler: modifyHandler},
		{MethodName: "Quote", Handler: quoteHandler},
		{MethodName: "Depth", Handler: depthHandler},
		{MethodName: "OpenEvent", Handler: openEventHandler},
		{MethodName: "CloseEvent", Handler: closeEventHandler},
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "janus/api/grpcserver",
}

func unary[Req any, Resp any](
	method string,
	call func(*Server, context.Context, *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(*Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + fullService + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(*Server), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	submitHandler     = unary("Submit", (*Server).Submit)
	cancelHandler     = unary("Cancel", (*Server).Cancel)
	modifyHandler     = unary("Modify", (*Server).Modify)
	quoteHandler      = unary("Quote", (*Server).Quote)
	depthHandler      = unary("Depth", (*Server).Depth)
	openEventHandler  = unary("OpenEvent", (*Server).OpenEvent)
	closeEventHandler = unary("CloseEvent", (*Server).CloseEvent)
	resolveHandler    = unary("Resolve", (*Server).Resolve)
)
