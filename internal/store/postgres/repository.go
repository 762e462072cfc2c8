package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

var _ store.Repository = (*BookingRepo)(nil)

// InBusinessTransaction runs fn in a transaction that holds the business's
// advisory lock, so concurrent writers for the same business are serialized.
func (r *BookingRepo) InBusinessTransaction(ctx context.Context, businessID string, fn func(ctx context.Context, tx store.BusinessTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockBusinessCalendar(ctx, tx, businessID); err != nil {
			return err
		}
		return fn(ctx, businessTx{tx: tx})
	})
}

func lockBusinessCalendar(ctx context.Context, tx bun.Tx, businessID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", businessID).Exec(ctx)
	return err
}

func (r *BookingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *BookingRepo) ListWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	return listWindows(ctx, r.db, ownerID, &day)
}

func (r *BookingRepo) ListAllWindows(ctx context.Context, ownerID string) ([]domain.AvailabilityWindow, error) {
	return listWindows(ctx, r.db, ownerID, nil)
}

func (r *BookingRepo) ListAppointmentsOn(ctx context.Context, businessID string, date time.Time) ([]domain.Appointment, error) {
	return listAppointmentsOn(ctx, r.db, businessID, date)
}

func (r *BookingRepo) ListServices(ctx context.Context, ownerID string) ([]domain.Service, error) {
	return listServices(ctx, r.db, ownerID)
}

func (r *BookingRepo) GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, businessID, id)
}

func (r *BookingRepo) ListAppointments(ctx context.Context, businessID string, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID)
	if filter.Date != nil {
		q = q.Where("appt_date = ?", filter.Date.Format(domain.DateLayout))
	}
	if filter.ServiceName != "" {
		q = q.Where("lower(service_name) = lower(?)", strings.TrimSpace(filter.ServiceName))
	}
	if filter.PhoneDigits != "" {
		q = q.Where("regexp_replace(customer_phone, '[^0-9]', '', 'g') = ?", filter.PhoneDigits)
	}
	if filter.NameContains != "" {
		q = q.Where("customer_name ILIKE ?", "%"+escapeLike(filter.NameContains)+"%")
	}
	err := q.OrderExpr("appt_date ASC, start_minute ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListAppointmentsBetween(ctx context.Context, businessID string, from, to time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID).
		Where("appt_date >= ?", from.Format(domain.DateLayout)).
		Where("appt_date <= ?", to.Format(domain.DateLayout)).
		OrderExpr("appt_date ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listWindows(ctx context.Context, db bun.IDB, ownerID string, day *time.Weekday) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	q := db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID)
	if day != nil {
		q = q.Where("day_of_week = ?", int(*day))
	}
	err := q.OrderExpr("day_of_week ASC, start_minute ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listAppointmentsOn(ctx context.Context, db bun.IDB, businessID string, date time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID).
		Where("appt_date = ?", date.Format(domain.DateLayout)).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listServices(ctx context.Context, db bun.IDB, ownerID string) ([]domain.Service, error) {
	var rows []domain.Service
	err := db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		OrderExpr("lower(name) ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointment(ctx context.Context, db bun.IDB, businessID string, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("business_id = ?", businessID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
