package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/conflicts"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

const (
	maxNameLen           = 200
	maxPhoneLen          = 32
	maxNotesLen          = 2000
	maxIdempotencyKeyLen = 256
)

type Service struct {
	repo store.Repository
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

type BookInput struct {
	BusinessID     string
	ServiceName    string
	Date           string
	StartTime      string
	CustomerName   string
	CustomerPhone  string
	Notes          string
	IdempotencyKey string
}

// Book resolves the service, validates the slot and stores the appointment,
// all while the business's calendar is locked.
func (s *Service) Book(ctx context.Context, in BookInput) (appt domain.Appointment, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("business.id", in.BusinessID),
		attribute.String("appointment.date", in.Date),
	))
	defer func() { endSpan(span, err) }()

	caller, _ := auth.FromContext(ctx)

	businessID := strings.TrimSpace(in.BusinessID)
	if businessID == "" {
		return domain.Appointment{}, validationError("business_id is required")
	}
	serviceName := strings.TrimSpace(in.ServiceName)
	if serviceName == "" {
		return domain.Appointment{}, validationError("service_name is required")
	}
	date, start, err := parseSlot(in.Date, in.StartTime)
	if err != nil {
		return domain.Appointment{}, err
	}
	customerName, customerPhone, err := validateCustomer(in.CustomerName, in.CustomerPhone)
	if err != nil {
		return domain.Appointment{}, err
	}
	if len(in.Notes) > maxNotesLen {
		return domain.Appointment{}, validationError("notes too long")
	}

	draft := domain.Appointment{
		BusinessID:    businessID,
		Date:          date,
		StartTime:     start,
		CustomerName:  customerName,
		CustomerPhone: customerPhone,
		Notes:         in.Notes,
		BookedBy:      caller.ID,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		draft.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("appointly:book:"+businessID+":"+caller.ID+":"+key))
	}

	var out domain.Appointment
	err = s.repo.InBusinessTransaction(ctx, businessID, func(ctx context.Context, tx store.BusinessTx) error {
		services, err := tx.ListServices(ctx, businessID)
		if err != nil {
			return err
		}
		svc, ok := domain.FindService(services, serviceName)
		if !ok {
			return invalidService(services)
		}
		draft.ServiceName = svc.Name
		draft.DurationMinutes = svc.DurationMinutes
		draft.Cost = svc.Price

		if draft.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, businessID, draft.ID)
			switch {
			case err == nil:
				if !existing.SameBooking(draft) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		decision, err := conflicts.Check(ctx, tx, conflicts.Candidate{
			BusinessID:      businessID,
			Date:            date,
			Start:           start,
			DurationMinutes: draft.DurationMinutes,
		})
		if err != nil {
			return err
		}
		if !decision.Available {
			return &RejectionError{Decision: decision}
		}

		created, err := tx.CreateAppointment(ctx, draft)
		if err != nil {
			return err
		}
		if err := appendAppointmentEvent(ctx, tx, domain.EventAppointmentBooked, created); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	span.SetAttributes(attribute.String("appointment.id", out.ID.String()))
	return out, nil
}

// UpdateInput changes an existing appointment. Nil fields keep their value.
type UpdateInput struct {
	BusinessID    string
	AppointmentID uuid.UUID
	ServiceName   *string
	Date          *string
	StartTime     *string
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
}

// UpdateBooking re-validates the changed appointment against every other
// appointment of the business. Duration and cost are re-derived only when the
// service changes.
func (s *Service) UpdateBooking(ctx context.Context, in UpdateInput) (appt domain.Appointment, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "booking.UpdateBooking", trace.WithAttributes(
		attribute.String("business.id", in.BusinessID),
		attribute.String("appointment.id", in.AppointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	caller, err := auth.Require(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	businessID := strings.TrimSpace(in.BusinessID)
	if businessID == "" {
		return domain.Appointment{}, validationError("business_id is required")
	}
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLen {
		return domain.Appointment{}, validationError("notes too long")
	}

	var out domain.Appointment
	err = s.repo.InBusinessTransaction(ctx, businessID, func(ctx context.Context, tx store.BusinessTx) error {
		current, err := tx.GetAppointment(ctx, businessID, in.AppointmentID)
		if err != nil {
			return err
		}
		if !canManage(caller, current) {
			return auth.ErrForbidden
		}

		next := current
		dateStr, startStr := current.Date.Format(domain.DateLayout), current.StartTime.String()
		if in.Date != nil {
			dateStr = *in.Date
		}
		if in.StartTime != nil {
			startStr = *in.StartTime
		}
		next.Date, next.StartTime, err = parseSlot(dateStr, startStr)
		if err != nil {
			return err
		}

		name, phone := current.CustomerName, current.CustomerPhone
		if in.CustomerName != nil {
			name = *in.CustomerName
		}
		if in.CustomerPhone != nil {
			phone = *in.CustomerPhone
		}
		next.CustomerName, next.CustomerPhone, err = validateCustomer(name, phone)
		if err != nil {
			return err
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}

		if in.ServiceName != nil && !strings.EqualFold(strings.TrimSpace(*in.ServiceName), current.ServiceName) {
			services, err := tx.ListServices(ctx, businessID)
			if err != nil {
				return err
			}
			svc, ok := domain.FindService(services, *in.ServiceName)
			if !ok {
				return invalidService(services)
			}
			next.ServiceName = svc.Name
			next.DurationMinutes = svc.DurationMinutes
			next.Cost = svc.Price
		}

		decision, err := conflicts.Check(ctx, tx, conflicts.Candidate{
			BusinessID:      businessID,
			Date:            next.Date,
			Start:           next.StartTime,
			DurationMinutes: next.DurationMinutes,
			ExcludeID:       current.ID,
		})
		if err != nil {
			return err
		}
		if !decision.Available {
			return &RejectionError{Decision: decision}
		}

		updated, err := tx.UpdateAppointment(ctx, next)
		if err != nil {
			return err
		}
		if err := appendAppointmentEvent(ctx, tx, domain.EventAppointmentUpdated, updated); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return out, nil
}

type CheckInput struct {
	BusinessID      string
	Date            string
	StartTime       string
	DurationMinutes int
	// ServiceName supplies the duration when DurationMinutes is zero.
	ServiceName string
	ExcludeID   uuid.UUID
}

// CheckConflict reports whether a slot could be booked right now. It never writes.
func (s *Service) CheckConflict(ctx context.Context, in CheckInput) (conflicts.Decision, error) {
	businessID := strings.TrimSpace(in.BusinessID)
	if businessID == "" {
		return conflicts.Decision{}, validationError("business_id is required")
	}
	date, start, err := parseSlot(in.Date, in.StartTime)
	if err != nil {
		return conflicts.Decision{}, err
	}

	duration := in.DurationMinutes
	if duration < 0 {
		return conflicts.Decision{}, validationError("duration_minutes must be positive")
	}
	if duration == 0 {
		if strings.TrimSpace(in.ServiceName) == "" {
			return conflicts.Decision{}, validationError("duration_minutes or service_name is required")
		}
		services, err := s.repo.ListServices(ctx, businessID)
		if err != nil {
			return conflicts.Decision{}, classify(err)
		}
		svc, ok := domain.FindService(services, in.ServiceName)
		if !ok {
			return conflicts.Decision{}, invalidService(services)
		}
		duration = svc.DurationMinutes
	}
	if duration > domain.MinutesPerDay {
		return conflicts.Decision{}, validationError("duration_minutes too long")
	}

	decision, err := conflicts.Check(ctx, s.repo, conflicts.Candidate{
		BusinessID:      businessID,
		Date:            date,
		Start:           start,
		DurationMinutes: duration,
		ExcludeID:       in.ExcludeID,
	})
	if err != nil {
		return conflicts.Decision{}, classify(err)
	}
	return decision, nil
}

// canManage allows the business owner and the customer who made the booking.
func canManage(caller auth.Identity, appt domain.Appointment) bool {
	if caller.ID == "" {
		return false
	}
	if caller.ID == appt.BusinessID {
		return true
	}
	return appt.BookedBy != "" && caller.ID == appt.BookedBy
}

func parseSlot(dateStr, startStr string) (time.Time, domain.Clock, error) {
	if strings.TrimSpace(dateStr) == "" {
		return time.Time{}, 0, validationError("date is required")
	}
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		return time.Time{}, 0, validationError("date must be YYYY-MM-DD")
	}
	if strings.TrimSpace(startStr) == "" {
		return time.Time{}, 0, validationError("start_time is required")
	}
	start, err := domain.ParseClock(startStr)
	if err != nil {
		return time.Time{}, 0, validationError("start_time must be HH:MM")
	}
	return date, start, nil
}

func validateCustomer(name, phone string) (string, string, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return "", "", validationError("customer_name is required")
	}
	if len(name) > maxNameLen {
		return "", "", validationError("customer_name too long")
	}
	if phone == "" {
		return "", "", validationError("customer_phone is required")
	}
	if len(phone) > maxPhoneLen || DigitsOnly(phone) == "" {
		return "", "", validationError("invalid customer_phone")
	}
	return name, phone, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		var rErr *RejectionError
		if errors.As(err, &rErr) {
			span.SetAttributes(attribute.String("booking.rejection", string(rErr.Reason())))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
