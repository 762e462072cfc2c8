package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/conflicts"
	"appointly/backend/internal/store"
)

type BookingGRPCServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	CheckConflict(ctx context.Context, in booking.CheckInput) (conflicts.Decision, error)
	Book(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	UpdateBooking(ctx context.Context, in booking.UpdateInput) (domain.Appointment, error)
}

var _ BookingServer = (*BookingGRPCServer)(nil)

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingGRPCServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingGRPCServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingGRPCServer) CheckConflict(ctx context.Context, req *CheckConflictRequest) (*CheckConflictResponse, error) {
	log := s.log.With(slog.String("rpc", "CheckConflict"))

	caller, err := auth.Require(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	var exclude uuid.UUID
	if req.ExcludeAppointmentID != "" {
		exclude, err = uuid.Parse(req.ExcludeAppointmentID)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_exclude_id"))
			return nil, status.Error(codes.InvalidArgument, "exclude_appointment_id must be a UUID")
		}
	}

	decision, err := s.svc.CheckConflict(ctx, booking.CheckInput{
		BusinessID:      req.BusinessID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		ServiceName:     req.ServiceName,
		ExcludeID:       exclude,
	})
	if err != nil {
		return nil, s.statusError(log, err, slog.String("business_id", req.BusinessID))
	}

	resp := &CheckConflictResponse{Available: decision.Available, Reason: string(decision.Reason)}
	if !decision.Available {
		if decision.Reason == conflicts.ReasonTimeConflict {
			if caller.ID == req.BusinessID {
				resp.ConflictingAppointmentID = decision.ConflictingID.String()
			}
		} else {
			resp.Weekday = decision.Weekday.String()
			resp.Hours = toHours(decision.Hours)
		}
	}
	return resp, nil
}

func (s *BookingGRPCServer) Book(ctx context.Context, req *BookRequest) (*Appointment, error) {
	log := s.log.With(slog.String("rpc", "Book"))

	if _, err := auth.Require(ctx); err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	appt, err := s.svc.Book(ctx, booking.BookInput{
		BusinessID:     req.BusinessID,
		ServiceName:    req.ServiceName,
		Date:           req.Date,
		StartTime:      req.StartTime,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusError(log, err,
			slog.String("business_id", req.BusinessID),
			slog.String("date", req.Date),
			slog.String("start_time", req.StartTime),
		)
	}

	log.Info("appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("business_id", appt.BusinessID),
	)
	return toAppointment(appt), nil
}

func (s *BookingGRPCServer) UpdateBooking(ctx context.Context, req *UpdateBookingRequest) (*Appointment, error) {
	log := s.log.With(slog.String("rpc", "UpdateBooking"))

	if _, err := auth.Require(ctx); err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_appointment_id"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	appt, err := s.svc.UpdateBooking(ctx, booking.UpdateInput{
		BusinessID:    req.BusinessID,
		AppointmentID: id,
		ServiceName:   req.ServiceName,
		Date:          req.Date,
		StartTime:     req.StartTime,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, s.statusError(log, err,
			slog.String("business_id", req.BusinessID),
			slog.String("appointment_id", req.AppointmentID),
		)
	}

	log.Info("appointment updated", slog.String("appointment_id", appt.ID.String()))
	return toAppointment(appt), nil
}

// statusError maps service errors onto gRPC codes. Rejections become
// FailedPrecondition with the reason code leading the message.
func (s *BookingGRPCServer) statusError(log *slog.Logger, err error, attrs ...any) error {
	var (
		vErr *booking.ValidationError
		rErr *booking.RejectionError
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		msg := vErr.Error()
		if len(vErr.ValidServices) > 0 {
			msg += "; valid services: " + strings.Join(vErr.ValidServices, ", ")
		}
		return status.Error(codes.InvalidArgument, vErr.Code+": "+msg)
	case errors.As(err, &rErr):
		log.Info("booking rejected", append(attrs, slog.String("reason", string(rErr.Reason())))...)
		msg := string(rErr.Reason()) + ": " + rErr.Error()
		if rErr.Reason() != conflicts.ReasonTimeConflict && len(rErr.Decision.Hours) > 0 {
			msg += "; hours: " + formatHours(rErr.Decision.Hours)
		}
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, store.ErrConflict):
		log.Info("booking rejected", append(attrs, slog.String("reason", string(conflicts.ReasonTimeConflict)))...)
		return status.Error(codes.FailedPrecondition, string(conflicts.ReasonTimeConflict)+": requested time conflicts with an existing appointment")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, auth.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		log.Warn("permission denied", attrs...)
		return status.Error(codes.PermissionDenied, "not allowed to manage this appointment")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}
	log.Error("request failed", append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Unavailable, "temporarily unavailable, retry later")
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// AuthInterceptor attaches the caller identity from the "authorization"
// metadata. Calls without credentials continue anonymously and are rejected by
// the handlers that need an identity.
func AuthInterceptor(tokens interface {
	Verify(token string) (auth.Identity, error)
}) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return handler(ctx, req)
		}
		token, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "malformed authorization metadata")
		}
		id, err := tokens.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(auth.WithIdentity(ctx, id), req)
	}
}

func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func toAppointment(a domain.Appointment) *Appointment {
	return &Appointment{
		ID:              a.ID.String(),
		BusinessID:      a.BusinessID,
		Date:            a.Date.Format(domain.DateLayout),
		StartTime:       a.StartTime.String(),
		EndTime:         a.StartTime.Add(a.DurationMinutes).String(),
		DurationMinutes: a.DurationMinutes,
		ServiceName:     a.ServiceName,
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		Cost:            a.Cost,
		Notes:           a.Notes,
	}
}

func toHours(in []domain.Interval) []Hours {
	out := make([]Hours, 0, len(in))
	for _, iv := range in {
		out = append(out, Hours{StartTime: iv.Start.String(), EndTime: iv.End.String()})
	}
	return out
}

func formatHours(in []domain.Interval) string {
	parts := make([]string, 0, len(in))
	for _, iv := range in {
		parts = append(parts, iv.Start.String()+"-"+iv.End.String())
	}
	return strings.Join(parts, ", ")
}
