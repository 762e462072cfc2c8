package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

type businessTx struct {
	tx bun.Tx
}

var _ store.BusinessTx = businessTx{}

// savepoint runs fn under a SAVEPOINT so a constraint violation leaves the
// enclosing transaction usable.
func (r businessTx) savepoint(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.tx.RunInTx(ctx, nil, fn)
}

func (r businessTx) ListWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	return listWindows(ctx, r.tx, ownerID, &day)
}

func (r businessTx) ListAppointmentsOn(ctx context.Context, businessID string, date time.Time) ([]domain.Appointment, error) {
	return listAppointmentsOn(ctx, r.tx, businessID, date)
}

func (r businessTx) ListServices(ctx context.Context, ownerID string) ([]domain.Service, error) {
	return listServices(ctx, r.tx, ownerID)
}

func (r businessTx) GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.tx, businessID, id)
}

func (r businessTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Date = domain.DateOf(appt.Date)

	var inserted int64
	err := r.savepoint(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&m).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		if violates(err, codeExclusionViolation, constraintAppointmentsNoOverlap) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	if inserted > 0 {
		return m, nil
	}

	// The id already exists: a replay of an idempotent request.
	existing, err := getAppointment(ctx, r.tx, appt.BusinessID, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	if !existing.SameBooking(appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r businessTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Date = domain.DateOf(appt.Date)

	var affected int64
	err := r.savepoint(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(&m).
			Column("appt_date", "start_minute", "duration_minutes", "service_name", "cost",
				"customer_name", "customer_phone", "notes", "updated_at").
			Where("business_id = ?", appt.BusinessID).
			Where("id = ?", appt.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		if violates(err, codeExclusionViolation, constraintAppointmentsNoOverlap) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (r businessTx) DeleteAppointment(ctx context.Context, businessID string, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("business_id = ?", businessID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r businessTx) CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := w
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return m, nil
}

func (r businessTx) DeleteWindow(ctx context.Context, ownerID string, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.AvailabilityWindow)(nil)).
		Where("owner_id = ?", ownerID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r businessTx) CreateService(ctx context.Context, s domain.Service) (domain.Service, error) {
	m := s
	err := r.savepoint(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&m).Exec(ctx)
		return err
	})
	if err != nil {
		if violates(err, codeUniqueViolation, constraintServicesOwnerName) {
			return domain.Service{}, store.ErrDuplicateService
		}
		return domain.Service{}, err
	}
	return m, nil
}

func (r businessTx) UpdateService(ctx context.Context, s domain.Service) (domain.Service, error) {
	m := s
	var affected int64
	err := r.savepoint(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(&m).
			Column("name", "duration_minutes", "price", "updated_at").
			Where("owner_id = ?", s.OwnerID).
			Where("id = ?", s.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		if violates(err, codeUniqueViolation, constraintServicesOwnerName) {
			return domain.Service{}, store.ErrDuplicateService
		}
		return domain.Service{}, err
	}
	if affected == 0 {
		return domain.Service{}, store.ErrNotFound
	}
	return m, nil
}

func (r businessTx) DeleteService(ctx context.Context, ownerID string, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Service)(nil)).
		Where("owner_id = ?", ownerID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r businessTx) AppendEvent(ctx context.Context, e domain.OutboxEvent) error {
	m := e
	if m.Traceparent == "" && m.Tracestate == "" {
		m.Traceparent, m.Tracestate = telemetry.TraceContextStrings(ctx)
	}
	_, err := r.tx.NewInsert().
		Model(&m).
		ExcludeColumn("id", "published_at").
		Exec(ctx)
	return err
}
