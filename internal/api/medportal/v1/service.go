package medportalv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "medportal.v1.SchedulingService"

	GetAvailabilityFullMethod = "/" + ServiceName + "/GetAvailability"
	ListSlotsFullMethod       = "/" + ServiceName + "/ListSlots"
	BookAppointmentFullMethod = "/" + ServiceName + "/BookAppointment"
	SetWorkShiftsFullMethod   = "/" + ServiceName + "/SetWorkShifts"

	ApplyWeeklyRosterFullMethod = "/" + ServiceName + "/ApplyWeeklyRoster"
)

type SchedulingServiceServer interface {
	GetAvailability(context.Context, *GetAvailabilityRequest) (*GetAvailabilityResponse, error)
	ListSlots(context.Context, *ListSlotsRequest) (*ListSlotsResponse, error)
	BookAppointment(context.Context, *BookAppointmentRequest) (*BookAppointmentResponse, error)
	SetWorkShifts(context.Context, *SetWorkShiftsRequest) (*SetWorkShiftsResponse, error)
	ApplyWeeklyRoster(context.Context, *ApplyWeeklyRosterRequest) (*ApplyWeeklyRosterResponse, error)
}

// UnimplementedSchedulingServiceServer can be embedded to keep servers
// compiling when methods are added.
type UnimplementedSchedulingServiceServer struct{}

func (UnimplementedSchedulingServiceServer) GetAvailability(context.Context, *GetAvailabilityRequest) (*GetAvailabilityResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAvailability not implemented")
}

func (UnimplementedSchedulingServiceServer) ListSlots(context.Context, *ListSlotsRequest) (*ListSlotsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSlots not implemented")
}

func (UnimplementedSchedulingServiceServer) BookAppointment(context.Context, *BookAppointmentRequest) (*BookAppointmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method BookAppointment not implemented")
}

func (UnimplementedSchedulingServiceServer) SetWorkShifts(context.Context, *SetWorkShiftsRequest) (*SetWorkShiftsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetWorkShifts not implemented")
}

func (UnimplementedSchedulingServiceServer) ApplyWeeklyRoster(context.Context, *ApplyWeeklyRosterRequest) (*ApplyWeeklyRosterResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ApplyWeeklyRoster not implemented")
}

func unaryHandler[Req, Resp any](fullMethod string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetAvailability",
			Handler:    unaryHandler(GetAvailabilityFullMethod, SchedulingServiceServer.GetAvailability),
		},
		{
			MethodName: "ListSlots",
			Handler:    unaryHandler(ListSlotsFullMethod, SchedulingServiceServer.ListSlots),
		},
		{
			MethodName: "BookAppointment",
			Handler:    unaryHandler(BookAppointmentFullMethod, SchedulingServiceServer.BookAppointment),
		},
		{
			MethodName: "SetWorkShifts",
			Handler:    unaryHandler(SetWorkShiftsFullMethod, SchedulingServiceServer.SetWorkShifts),
		},
		{
			MethodName: "ApplyWeeklyRoster",
			Handler:    unaryHandler(ApplyWeeklyRosterFullMethod, SchedulingServiceServer.ApplyWeeklyRoster),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medportal/v1/scheduling.json",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

type SchedulingServiceClient interface {
	GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*GetAvailabilityResponse, error)
	ListSlots(ctx context.Context, in *ListSlotsRequest, opts ...grpc.CallOption) (*ListSlotsResponse, error)
	BookAppointment(ctx context.Context, in *BookAppointmentRequest, opts ...grpc.CallOption) (*BookAppointmentResponse, error)
	SetWorkShifts(ctx context.Context, in *SetWorkShiftsRequest, opts ...grpc.CallOption) (*SetWorkShiftsResponse, error)
	ApplyWeeklyRoster(ctx context.Context, in *ApplyWeeklyRosterRequest, opts ...grpc.CallOption) (*ApplyWeeklyRosterResponse, error)
}

type schedulingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSchedulingServiceClient returns a client that always speaks the JSON
// content-subtype.
func NewSchedulingServiceClient(cc grpc.ClientConnInterface) SchedulingServiceClient {
	return &schedulingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulingServiceClient) GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*GetAvailabilityResponse, error) {
	return invoke[GetAvailabilityResponse](ctx, c.cc, GetAvailabilityFullMethod, in, opts)
}

func (c *schedulingServiceClient) ListSlots(ctx context.Context, in *ListSlotsRequest, opts ...grpc.CallOption) (*ListSlotsResponse, error) {
	return invoke[ListSlotsResponse](ctx, c.cc, ListSlotsFullMethod, in, opts)
}

func (c *schedulingServiceClient) BookAppointment(ctx context.Context, in *BookAppointmentRequest, opts ...grpc.CallOption) (*BookAppointmentResponse, error) {
	return invoke[BookAppointmentResponse](ctx, c.cc, BookAppointmentFullMethod, in, opts)
}

func (c *schedulingServiceClient) SetWorkShifts(ctx context.Context, in *SetWorkShiftsRequest, opts ...grpc.CallOption) (*SetWorkShiftsResponse, error) {
	return invoke[SetWorkShiftsResponse](ctx, c.cc, SetWorkShiftsFullMethod, in, opts)
}

func (c *schedulingServiceClient) ApplyWeeklyRoster(ctx context.Context, in *ApplyWeeklyRosterRequest, opts ...grpc.CallOption) (*ApplyWeeklyRosterResponse, error) {
	return invoke[ApplyWeeklyRosterResponse](ctx, c.cc, ApplyWeeklyRosterFullMethod, in, opts)
}
