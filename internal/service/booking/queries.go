package booking

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

func (s *Service) Get(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error) {
	if businessID == "" {
		return domain.Appointment{}, validationError("business_id is required")
	}
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.repo.GetAppointment(ctx, businessID, id)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return appt, nil
}

// List returns the business's appointments ordered by date and start time,
// optionally restricted to one date and/or one service.
func (s *Service) List(ctx context.Context, businessID, date, serviceName string) ([]domain.Appointment, error) {
	if businessID == "" {
		return nil, validationError("business_id is required")
	}
	filter := store.AppointmentFilter{ServiceName: strings.TrimSpace(serviceName)}
	if strings.TrimSpace(date) != "" {
		d, err := domain.ParseDate(date)
		if err != nil {
			return nil, validationError("date must be YYYY-MM-DD")
		}
		filter.Date = &d
	}
	rows, err := s.repo.ListAppointments(ctx, businessID, filter)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// Search matches phone numbers on their digits only and names as a
// case-insensitive substring. At least one criterion is required.
func (s *Service) Search(ctx context.Context, businessID, phone, name string) ([]domain.Appointment, error) {
	if businessID == "" {
		return nil, validationError("business_id is required")
	}
	filter := store.AppointmentFilter{NameContains: strings.TrimSpace(name)}
	if strings.TrimSpace(phone) != "" {
		filter.PhoneDigits = DigitsOnly(phone)
		if filter.PhoneDigits == "" {
			return nil, validationError("phone must contain digits")
		}
	}
	if filter.PhoneDigits == "" && filter.NameContains == "" {
		return nil, validationError("phone or name is required")
	}
	rows, err := s.repo.ListAppointments(ctx, businessID, filter)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

type DailyStats struct {
	Date         time.Time
	Count        int
	ServiceNames []string
	TotalRevenue int64
}

var statsDateLayouts = []string{domain.DateLayout, "01-02-2006"}

// DailyStats summarizes one date. It accepts YYYY-MM-DD or MM-DD-YYYY and
// returns store.ErrNotFound when nothing is booked that day.
func (s *Service) DailyStats(ctx context.Context, businessID, date string) (DailyStats, error) {
	if businessID == "" {
		return DailyStats{}, validationError("business_id is required")
	}
	var (
		day    time.Time
		parsed bool
	)
	for _, layout := range statsDateLayouts {
		if d, err := time.ParseInLocation(layout, strings.TrimSpace(date), time.UTC); err == nil {
			day, parsed = d, true
			break
		}
	}
	if !parsed {
		return DailyStats{}, validationError("date must be YYYY-MM-DD or MM-DD-YYYY")
	}

	rows, err := s.repo.ListAppointments(ctx, businessID, store.AppointmentFilter{Date: &day})
	if err != nil {
		return DailyStats{}, classify(err)
	}
	if len(rows) == 0 {
		return DailyStats{}, store.ErrNotFound
	}

	stats := DailyStats{Date: day, Count: len(rows), ServiceNames: make([]string, 0, len(rows))}
	for _, a := range rows {
		stats.ServiceNames = append(stats.ServiceNames, a.ServiceName)
		stats.TotalRevenue += a.Cost
	}
	return stats, nil
}

// Delete removes an appointment. Only the business owner or the customer who
// booked it may do so.
func (s *Service) Delete(ctx context.Context, businessID string, id uuid.UUID) error {
	caller, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if businessID == "" {
		return validationError("business_id is required")
	}
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}

	err = s.repo.InBusinessTransaction(ctx, businessID, func(ctx context.Context, tx store.BusinessTx) error {
		current, err := tx.GetAppointment(ctx, businessID, id)
		if err != nil {
			return err
		}
		if !canManage(caller, current) {
			return auth.ErrForbidden
		}
		if err := tx.DeleteAppointment(ctx, businessID, id); err != nil {
			return err
		}
		return appendAppointmentEvent(ctx, tx, domain.EventAppointmentDeleted, current)
	})
	return classify(err)
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
