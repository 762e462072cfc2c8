package grpc

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/conflicts"
	"appointly/backend/internal/store"
	"appointly/backend/internal/store/memory"
)

type fakeBookingService struct {
	checkFn  func(ctx context.Context, in booking.CheckInput) (conflicts.Decision, error)
	bookFn   func(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	updateFn func(ctx context.Context, in booking.UpdateInput) (domain.Appointment, error)
}

func (f *fakeBookingService) CheckConflict(ctx context.Context, in booking.CheckInput) (conflicts.Decision, error) {
	if f.checkFn == nil {
		panic("CheckConflict not configured")
	}
	return f.checkFn(ctx, in)
}

func (f *fakeBookingService) Book(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, in)
}

func (f *fakeBookingService) UpdateBooking(ctx context.Context, in booking.UpdateInput) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("UpdateBooking not configured")
	}
	return f.updateFn(ctx, in)
}

func customerCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{ID: "cust-1", Role: auth.RoleCustomer})
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestBook_RequiresIdentity(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	_, err := srv.Book(context.Background(), &BookRequest{BusinessID: "biz"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
}

func TestBook_PassesIdempotencyKeyToService(t *testing.T) {
	var gotKey string

	srv := NewBookingServer(&fakeBookingService{
		bookFn: func(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
			gotKey = in.IdempotencyKey
			return domain.Appointment{ID: uuid.MustParse("00000000-0000-0000-0000-000000000010")}, nil
		},
	}, slog.Default())

	ctx := metadata.NewIncomingContext(customerCtx(), metadata.Pairs("idempotency-key", "k1"))
	if _, err := srv.Book(ctx, &BookRequest{BusinessID: "biz"}); err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if gotKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", gotKey, "k1")
	}
}

func TestBook_MapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantMsg  string
	}{
		{name: "race lost", err: store.ErrConflict, wantCode: codes.FailedPrecondition, wantMsg: "TIME_CONFLICT"},
		{name: "time conflict", err: &booking.RejectionError{Decision: conflicts.Decision{Reason: conflicts.ReasonTimeConflict}}, wantCode: codes.FailedPrecondition, wantMsg: "TIME_CONFLICT"},
		{
			name: "outside hours",
			err: &booking.RejectionError{Decision: conflicts.Decision{
				Reason: conflicts.ReasonOutsideHours,
				Hours:  []domain.Interval{{Start: domain.NewClock(9, 0), End: domain.NewClock(17, 0)}},
			}},
			wantCode: codes.FailedPrecondition,
			wantMsg:  "09:00-17:00",
		},
		{name: "idempotency", err: store.ErrIdempotencyConflict, wantCode: codes.FailedPrecondition},
		{name: "not found", err: store.ErrNotFound, wantCode: codes.NotFound},
		{name: "forbidden", err: auth.ErrForbidden, wantCode: codes.PermissionDenied},
		{name: "transient", err: booking.ErrTransient, wantCode: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewBookingServer(&fakeBookingService{
				bookFn: func(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
					return domain.Appointment{}, tt.err
				},
			}, slog.Default())

			_, err := srv.Book(customerCtx(), &BookRequest{BusinessID: "biz"})
			if status.Code(err) != tt.wantCode {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.wantCode)
			}
			if tt.wantMsg != "" && !strings.Contains(status.Convert(err).Message(), tt.wantMsg) {
				t.Fatalf("message = %q, want it to contain %q", status.Convert(err).Message(), tt.wantMsg)
			}
		})
	}
}

func TestUpdateBooking_RejectsBadID(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	_, err := srv.UpdateBooking(customerCtx(), &UpdateBookingRequest{BusinessID: "biz", AppointmentID: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCheckConflict_HidesConflictFromCustomers(t *testing.T) {
	conflictID := uuid.MustParse("00000000-0000-0000-0000-000000000020")
	srv := NewBookingServer(&fakeBookingService{
		checkFn: func(ctx context.Context, in booking.CheckInput) (conflicts.Decision, error) {
			return conflicts.Decision{Reason: conflicts.ReasonTimeConflict, ConflictingID: conflictID}, nil
		},
	}, slog.Default())

	resp, err := srv.CheckConflict(customerCtx(), &CheckConflictRequest{BusinessID: "biz"})
	if err != nil {
		t.Fatalf("CheckConflict error: %v", err)
	}
	if resp.ConflictingAppointmentID != "" {
		t.Fatalf("conflicting id leaked to customer: %q", resp.ConflictingAppointmentID)
	}

	ownerCtx := auth.WithIdentity(context.Background(), auth.Identity{ID: "biz", Role: auth.RoleBusinessOwner})
	resp, err = srv.CheckConflict(ownerCtx, &CheckConflictRequest{BusinessID: "biz"})
	if err != nil {
		t.Fatalf("CheckConflict error: %v", err)
	}
	if resp.ConflictingAppointmentID != conflictID.String() {
		t.Fatalf("conflicting id = %q, want %q", resp.ConflictingAppointmentID, conflictID)
	}
}

func TestDefaultRequestTimeoutInterceptor_SetsDeadline(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Second)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
}

func TestBookingService_OverBufconn(t *testing.T) {
	const businessID = "owner-1"
	s := memory.New()
	err := s.InBusinessTransaction(context.Background(), businessID, func(ctx context.Context, tx store.BusinessTx) error {
		if _, err := tx.CreateWindow(ctx, domain.AvailabilityWindow{
			OwnerID: businessID, DayOfWeek: time.Monday,
			StartTime: domain.NewClock(9, 0), EndTime: domain.NewClock(17, 0),
		}); err != nil {
			return err
		}
		_, err := tx.CreateService(ctx, domain.Service{OwnerID: businessID, Name: "Haircut", DurationMinutes: 30, Price: 25})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	tokens := auth.NewTokens("secret", "")
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		DefaultRequestTimeoutInterceptor(time.Second),
		AuthInterceptor(tokens),
	))
	RegisterBookingServer(server, NewBookingServer(booking.NewService(s), slog.Default()))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := NewBookingClient(conn)

	req := &BookRequest{
		BusinessID: businessID, ServiceName: "haircut", Date: "2026-01-05", StartTime: "10:00",
		CustomerName: "Ann", CustomerPhone: "555-0100",
	}

	_, err = client.Book(context.Background(), req)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous Book code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}

	token, err := tokens.Sign(auth.Identity{ID: "cust-1", Role: auth.RoleCustomer}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)

	appt, err := client.Book(ctx, req)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if appt.EndTime != "10:30" || appt.Cost != 25 {
		t.Fatalf("appointment = %+v", appt)
	}

	req.StartTime = "10:15"
	_, err = client.Book(ctx, req)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("overlapping Book code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}

	resp, err := client.CheckConflict(ctx, &CheckConflictRequest{BusinessID: businessID, Date: "2026-01-05", StartTime: "16:45", DurationMinutes: 30})
	if err != nil {
		t.Fatalf("CheckConflict error: %v", err)
	}
	if resp.Available || resp.Reason != string(conflicts.ReasonOutsideHours) || len(resp.Hours) != 1 {
		t.Fatalf("decision = %+v", resp)
	}

	start := "11:00"
	updated, err := client.UpdateBooking(ctx, &UpdateBookingRequest{BusinessID: businessID, AppointmentID: appt.ID, StartTime: &start})
	if err != nil {
		t.Fatalf("UpdateBooking error: %v", err)
	}
	if updated.StartTime != "11:00" {
		t.Fatalf("start_time = %q, want 11:00", updated.StartTime)
	}
}
