package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

// businessTx reads and writes a private snapshot and records each write as an
// op replayed against the shared data on commit.
type businessTx struct {
	d      *data
	ops    []func(*data)
	events []domain.OutboxEvent
}

var _ store.BusinessTx = (*businessTx)(nil)

func (t *businessTx) apply(op func(*data)) {
	op(t.d)
	t.ops = append(t.ops, op)
}

func (t *businessTx) ListWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	return listWindows(t.d, ownerID, &day), nil
}

func (t *businessTx) ListAppointmentsOn(ctx context.Context, businessID string, date time.Time) ([]domain.Appointment, error) {
	day := domain.DateOf(date)
	return filterAppointments(t.d, businessID, func(a domain.Appointment) bool {
		return domain.DateOf(a.Date).Equal(day)
	}), nil
}

func (t *businessTx) ListServices(ctx context.Context, ownerID string) ([]domain.Service, error) {
	return listServices(t.d, ownerID), nil
}

func (t *businessTx) GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(t.d, businessID, id)
}

// overlapsExisting mirrors the appointments_no_overlap exclusion constraint.
func (t *businessTx) overlapsExisting(a domain.Appointment) bool {
	day := domain.DateOf(a.Date)
	for _, other := range t.d.appts {
		if other.ID == a.ID || other.BusinessID != a.BusinessID {
			continue
		}
		if domain.DateOf(other.Date).Equal(day) && other.Interval().Overlaps(a.Interval()) {
			return true
		}
	}
	return false
}

func (t *businessTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Date = domain.DateOf(appt.Date)
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		m.ID = id
	}

	if existing, ok := t.d.appts[m.ID]; ok {
		if existing.BusinessID != appt.BusinessID || !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	if t.overlapsExisting(m) {
		return domain.Appointment{}, store.ErrConflict
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	t.apply(func(d *data) { d.appts[m.ID] = m })
	return m, nil
}

func (t *businessTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	existing, err := getAppointment(t.d, appt.BusinessID, appt.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	m := appt
	m.Date = domain.DateOf(appt.Date)
	m.BookedBy = existing.BookedBy
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	if t.overlapsExisting(m) {
		return domain.Appointment{}, store.ErrConflict
	}
	t.apply(func(d *data) { d.appts[m.ID] = m })
	return m, nil
}

func (t *businessTx) DeleteAppointment(ctx context.Context, businessID string, id uuid.UUID) error {
	if _, err := getAppointment(t.d, businessID, id); err != nil {
		return err
	}
	t.apply(func(d *data) { delete(d.appts, id) })
	return nil
}

func (t *businessTx) CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := w
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.AvailabilityWindow{}, err
		}
		m.ID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	t.apply(func(d *data) { d.windows[m.ID] = m })
	return m, nil
}

func (t *businessTx) DeleteWindow(ctx context.Context, ownerID string, id uuid.UUID) error {
	w, ok := t.d.windows[id]
	if !ok || w.OwnerID != ownerID {
		return store.ErrNotFound
	}
	t.apply(func(d *data) { delete(d.windows, id) })
	return nil
}

func (t *businessTx) duplicateName(s domain.Service) bool {
	for _, other := range t.d.services {
		if other.ID != s.ID && other.OwnerID == s.OwnerID && strings.EqualFold(other.Name, s.Name) {
			return true
		}
	}
	return false
}

func (t *businessTx) CreateService(ctx context.Context, s domain.Service) (domain.Service, error) {
	m := s
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Service{}, err
		}
		m.ID = id
	}
	if t.duplicateName(m) {
		return domain.Service{}, store.ErrDuplicateService
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	t.apply(func(d *data) { d.services[m.ID] = m })
	return m, nil
}

func (t *businessTx) UpdateService(ctx context.Context, s domain.Service) (domain.Service, error) {
	existing, ok := t.d.services[s.ID]
	if !ok || existing.OwnerID != s.OwnerID {
		return domain.Service{}, store.ErrNotFound
	}
	if t.duplicateName(s) {
		return domain.Service{}, store.ErrDuplicateService
	}
	m := s
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	t.apply(func(d *data) { d.services[m.ID] = m })
	return m, nil
}

func (t *businessTx) DeleteService(ctx context.Context, ownerID string, id uuid.UUID) error {
	existing, ok := t.d.services[id]
	if !ok || existing.OwnerID != ownerID {
		return store.ErrNotFound
	}
	t.apply(func(d *data) { delete(d.services, id) })
	return nil
}

func (t *businessTx) AppendEvent(ctx context.Context, e domain.OutboxEvent) error {
	if e.EventID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.EventID = id
	}
	if e.Traceparent == "" && e.Tracestate == "" {
		e.Traceparent, e.Tracestate = telemetry.TraceContextStrings(ctx)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	t.events = append(t.events, e)
	return nil
}
