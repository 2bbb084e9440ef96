package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ChunkSize is the payload slice carried by one stream message.
const ChunkSize = 64 << 10

const (
	serviceName   = "ans104.storage.grpccas.v1.CAS"
	methodPut     = "/" + serviceName + "/Put"
	methodGet     = "/" + serviceName + "/Get"
	methodHas     = "/" + serviceName + "/Has"
	putStreamName = "Put"
	getStreamName = "Get"
)

// CASServer is the server API for the CAS gRPC service.
//
// Messages are protobuf well-known wrapper types so this package does not
// need a protoc/codegen toolchain. Put is a client stream of payload chunks
// answered with the CID string; Get answers a CID string with a server stream
// of chunks.
type CASServer interface {
	Put(CAS_PutServer) error
	Get(*wrapperspb.StringValue, CAS_GetServer) error
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedCASServer can be embedded to have forward compatible implementations.
type UnimplementedCASServer struct{}

func (UnimplementedCASServer) Put(CAS_PutServer) error {
	return status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedCASServer) Get(*wrapperspb.StringValue, CAS_GetServer) error {
	return status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedCASServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}

// RegisterCASServer registers the CAS service on a gRPC server.
func RegisterCASServer(s grpc.ServiceRegistrar, srv CASServer) {
	s.RegisterService(&CAS_ServiceDesc, srv)
}

type CAS_PutServer interface {
	SendAndClose(*wrapperspb.StringValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

type casPutServer struct{ grpc.ServerStream }

func (x *casPutServer) SendAndClose(m *wrapperspb.StringValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *casPutServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type CAS_GetServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type casGetServer struct{ grpc.ServerStream }

func (x *casGetServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

// CASClient is the client API for the CAS gRPC service.
type CASClient interface {
	Put(ctx context.Context, opts ...grpc.CallOption) (CAS_PutClient, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (CAS_GetClient, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type casClient struct{ cc grpc.ClientConnInterface }

func NewCASClient(cc grpc.ClientConnInterface) CASClient { return &casClient{cc: cc} }

type CAS_PutClient interface {
	Send(*wrapperspb.BytesValue) error
	CloseAndRecv() (*wrapperspb.StringValue, error)
	grpc.ClientStream
}

type casPutClient struct{ grpc.ClientStream }

func (x *casPutClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *casPutClient) CloseAndRecv() (*wrapperspb.StringValue, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(wrapperspb.StringValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type CAS_GetClient interface {
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type casGetClient struct{ grpc.ClientStream }

func (x *casGetClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *casClient) Put(ctx context.Context, opts ...grpc.CallOption) (CAS_PutClient, error) {
	stream, err := c.cc.NewStream(ctx, &CAS_ServiceDesc.Streams[0], methodPut, opts...)
	if err != nil {
		return nil, err
	}
	return &casPutClient{stream}, nil
}

func (c *casClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (CAS_GetClient, error) {
	stream, err := c.cc.NewStream(ctx, &CAS_ServiceDesc.Streams[1], methodGet, opts...)
	if err != nil {
		return nil, err
	}
	x := &casGetClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *casClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	err := c.cc.Invoke(ctx, methodHas, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _CAS_Put_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(CASServer).Put(&casPutServer{stream})
}

func _CAS_Get_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CASServer).Get(m, &casGetServer{stream})
}

func _CAS_Has_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CASServer).Has(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHas}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CASServer).Has(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// CAS_ServiceDesc is the grpc.ServiceDesc for CAS service.
var CAS_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CASServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Has", Handler: _CAS_Has_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: putStreamName, Handler: _CAS_Put_Handler, ClientStreams: true},
		{StreamName: getStreamName, Handler: _CAS_Get_Handler, ServerStreams: true},
	},
	Metadata: "cas.proto",
}
