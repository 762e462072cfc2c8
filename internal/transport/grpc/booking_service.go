package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	bookingServiceName = "appointly.v1.Booking"

	methodCheckConflict = "/" + bookingServiceName + "/CheckConflict"
	methodBook          = "/" + bookingServiceName + "/Book"
	methodUpdateBooking = "/" + bookingServiceName + "/UpdateBooking"
)

type CheckConflictRequest struct {
	BusinessID           string `json:"business_id"`
	Date                 string `json:"date"`
	StartTime            string `json:"start_time"`
	DurationMinutes      int    `json:"duration_minutes,omitempty"`
	ServiceName          string `json:"service_name,omitempty"`
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type Hours struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CheckConflictResponse struct {
	Available                bool    `json:"available"`
	Reason                   string  `json:"reason,omitempty"`
	ConflictingAppointmentID string  `json:"conflicting_appointment_id,omitempty"`
	Weekday                  string  `json:"weekday,omitempty"`
	Hours                    []Hours `json:"hours,omitempty"`
}

type BookRequest struct {
	BusinessID    string `json:"business_id"`
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes,omitempty"`
}

type UpdateBookingRequest struct {
	BusinessID    string  `json:"business_id"`
	AppointmentID string  `json:"appointment_id"`
	ServiceName   *string `json:"service_name,omitempty"`
	Date          *string `json:"date,omitempty"`
	StartTime     *string `json:"start_time,omitempty"`
	CustomerName  *string `json:"customer_name,omitempty"`
	CustomerPhone *string `json:"customer_phone,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type Appointment struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	ServiceName     string `json:"service_name"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	Cost            int64  `json:"cost"`
	Notes           string `json:"notes,omitempty"`
}

type BookingServer interface {
	CheckConflict(ctx context.Context, req *CheckConflictRequest) (*CheckConflictResponse, error)
	Book(ctx context.Context, req *BookRequest) (*Appointment, error)
	UpdateBooking(ctx context.Context, req *UpdateBookingRequest) (*Appointment, error)
}

func RegisterBookingServer(s grpc.ServiceRegistrar, srv BookingServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckConflict", Handler: unaryHandler(methodCheckConflict, BookingServer.CheckConflict)},
		{MethodName: "Book", Handler: unaryHandler(methodBook, BookingServer.Book)},
		{MethodName: "UpdateBooking", Handler: unaryHandler(methodUpdateBooking, BookingServer.UpdateBooking)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointly/v1/booking",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(BookingServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingClient calls appointly.v1.Booking using the JSON codec.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func (c *BookingClient) CheckConflict(ctx context.Context, in *CheckConflictRequest, opts ...grpc.CallOption) (*CheckConflictResponse, error) {
	out := new(CheckConflictResponse)
	if err := c.cc.Invoke(ctx, methodCheckConflict, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) Book(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*Appointment, error) {
	out := new(Appointment)
	if err := c.cc.Invoke(ctx, methodBook, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) UpdateBooking(ctx context.Context, in *UpdateBookingRequest, opts ...grpc.CallOption) (*Appointment, error) {
	out := new(Appointment)
	if err := c.cc.Invoke(ctx, methodUpdateBooking, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
