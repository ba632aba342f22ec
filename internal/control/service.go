// Package control serves the running bridge's state and enabled toggle on
// the local IPC socket: gRPC for the CLI and plain HTTP GET /status for
// scripts, multiplexed on one listener.
package control

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipbridge/internal/bridge"
)

const (
	serviceName      = "clipbridge.v1.Control"
	methodStatus     = "/" + serviceName + "/Status"
	methodSetEnabled = "/" + serviceName + "/SetEnabled"
)

// Bridge is the part of the supervisor the control endpoint drives.
type Bridge interface {
	Snapshot() bridge.Snapshot
	SetEnabled(on bool) error
}

// controlServer is the server API of clipbridge.v1.Control.
type controlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetEnabled(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "SetEnabled", Handler: setEnabledHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clipbridge/v1/control.proto",
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(controlServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func setEnabledHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlServer).SetEnabled(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSetEnabled}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(controlServer).SetEnabled(ctx, req.(*wrapperspb.BoolValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements clipbridge.v1.Control.
type Service struct {
	b Bridge
}

// NewService returns a Service backed by b.
func NewService(b Bridge) *Service { return &Service{b: b} }

// Register adds the service to s.
func (svc *Service) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, svc)
}

// Status implements clipbridge.v1.Control.Status.
func (svc *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return svc.reply()
}

// SetEnabled implements clipbridge.v1.Control.SetEnabled.
func (svc *Service) SetEnabled(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	on := req.GetValue()
	if err := svc.b.SetEnabled(on); err != nil {
		if errors.Is(err, bridge.ErrDisabled) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	slog.Info("clipboard integration set over control socket", "enabled", on, "peer", addrFromCtx(ctx))
	return svc.reply()
}

func (svc *Service) reply() (*structpb.Struct, error) {
	st, err := FromSnapshot(svc.b.Snapshot()).toStruct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
