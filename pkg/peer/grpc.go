package peer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PinServiceServer is the server API for peer-to-peer content exchange.
//
// Messages are protobuf well-known wrapper types, so no codegen step is needed.
type PinServiceServer interface {
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Fetch(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedPinServiceServer can be embedded to have forward compatible implementations.
type UnimplementedPinServiceServer struct{}

func (UnimplementedPinServiceServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}
func (UnimplementedPinServiceServer) Fetch(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Fetch not implemented")
}

// RegisterPinServiceServer registers the pin service on a gRPC server.
func RegisterPinServiceServer(s grpc.ServiceRegistrar, srv PinServiceServer) {
	s.RegisterService(&PinService_ServiceDesc, srv)
}

const (
	pinServiceName = "boxpeer.peer.v1.PinService"
	methodHas      = "/" + pinServiceName + "/Has"
	methodFetch    = "/" + pinServiceName + "/Fetch"
)

func _PinService_Has_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PinServiceServer).Has(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHas}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PinServiceServer).Has(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _PinService_Fetch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PinServiceServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFetch}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PinServiceServer).Fetch(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// PinService_ServiceDesc is the grpc.ServiceDesc for the pin service.
var PinService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: pinServiceName,
	HandlerType: (*PinServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Has", Handler: _PinService_Has_Handler},
		{MethodName: "Fetch", Handler: _PinService_Fetch_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "peer.proto",
}
