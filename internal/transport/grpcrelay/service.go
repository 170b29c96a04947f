// Package grpcrelay exposes a chain as a relay peer over gRPC.
//
// The service uses protobuf well-known wrapper types with JSON bodies so it
// needs no codegen step. Every method takes and returns a BytesValue.
package grpcrelay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "edgerelay.relay.v1.Relay"

// Method names.
const (
	MethodStatus             = "Status"
	MethodChannelOpenInit    = "ChannelOpenInit"
	MethodChannelOpenTry     = "ChannelOpenTry"
	MethodChannelOpenAck     = "ChannelOpenAck"
	MethodChannelOpenConfirm = "ChannelOpenConfirm"
	MethodCloseChannel       = "CloseChannel"
	MethodPending            = "Pending"
	MethodReceive            = "Receive"
	MethodAcknowledge        = "Acknowledge"
	MethodTimeout            = "Timeout"
)

// RelayServer is the server API for the Relay service.
type RelayServer interface {
	Status(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ChannelOpenInit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ChannelOpenTry(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ChannelOpenAck(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ChannelOpenConfirm(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	CloseChannel(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Pending(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Receive(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Acknowledge(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Timeout(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedRelayServer can be embedded to have forward compatible implementations.
type UnimplementedRelayServer struct{}

func unimplemented(method string) error {
	return status.Error(codes.Unimplemented, "method "+method+" not implemented")
}

func (UnimplementedRelayServer) Status(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodStatus)
}
func (UnimplementedRelayServer) ChannelOpenInit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodChannelOpenInit)
}
func (UnimplementedRelayServer) ChannelOpenTry(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodChannelOpenTry)
}
func (UnimplementedRelayServer) ChannelOpenAck(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodChannelOpenAck)
}
func (UnimplementedRelayServer) ChannelOpenConfirm(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodChannelOpenConfirm)
}
func (UnimplementedRelayServer) CloseChannel(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodCloseChannel)
}
func (UnimplementedRelayServer) Pending(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodPending)
}
func (UnimplementedRelayServer) Receive(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodReceive)
}
func (UnimplementedRelayServer) Acknowledge(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodAcknowledge)
}
func (UnimplementedRelayServer) Timeout(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodTimeout)
}

// RegisterRelayServer registers the Relay service on a gRPC server.
func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&Relay_ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryFunc func(RelayServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

// handler adapts one RelayServer method to a grpc method handler.
func handler(method string, call unaryFunc) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		next := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RelayServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, next)
	}
}

// Relay_ServiceDesc is the grpc.ServiceDesc for the Relay service.
var Relay_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodStatus, Handler: handler(MethodStatus, RelayServer.Status)},
		{MethodName: MethodChannelOpenInit, Handler: handler(MethodChannelOpenInit, RelayServer.ChannelOpenInit)},
		{MethodName: MethodChannelOpenTry, Handler: handler(MethodChannelOpenTry, RelayServer.ChannelOpenTry)},
		{MethodName: MethodChannelOpenAck, Handler: handler(MethodChannelOpenAck, RelayServer.ChannelOpenAck)},
		{MethodName: MethodChannelOpenConfirm, Handler: handler(MethodChannelOpenConfirm, RelayServer.ChannelOpenConfirm)},
		{MethodName: MethodCloseChannel, Handler: handler(MethodCloseChannel, RelayServer.CloseChannel)},
		{MethodName: MethodPending, Handler: handler(MethodPending, RelayServer.Pending)},
		{MethodName: MethodReceive, Handler: handler(MethodReceive, RelayServer.Receive)},
		{MethodName: MethodAcknowledge, Handler: handler(MethodAcknowledge, RelayServer.Acknowledge)},
		{MethodName: MethodTimeout, Handler: handler(MethodTimeout, RelayServer.Timeout)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay.proto",
}
