// Package sessionv1 describes the accessgate.v1.Session service. Messages are
// well-known types so no generated code is needed.
package sessionv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "accessgate.v1.Session"

	WhoAmIFullMethodName           = "/accessgate.v1.Session/WhoAmI"
	CheckEntitlementFullMethodName = "/accessgate.v1.Session/CheckEntitlement"
)

// SessionServer is the server API for the Session service.
type SessionServer interface {
	// WhoAmI returns the session response of the caller with an empty token.
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// CheckEntitlement returns {allowed, payment_user} for the caller.
	CheckEntitlement(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc for the Session service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
		{MethodName: "CheckEntitlement", Handler: checkEntitlementHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accessgate/v1/session.proto",
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func checkEntitlementHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).CheckEntitlement(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckEntitlementFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServer).CheckEntitlement(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionClient is the client API for the Session service.
type SessionClient interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	CheckEntitlement(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type sessionClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionClient creates a Session client over cc.
func NewSessionClient(cc grpc.ClientConnInterface) SessionClient {
	return &sessionClient{cc: cc}
}

func (c *sessionClient) WhoAmI(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WhoAmIFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionClient) CheckEntitlement(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckEntitlementFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
