// Package memory is an in-process store with the same locking and constraint
// behavior as the Postgres store. It backs local development and tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type data struct {
	windows  map[uuid.UUID]domain.AvailabilityWindow
	appts    map[uuid.UUID]domain.Appointment
	services map[uuid.UUID]domain.Service
}

func (d *data) clone() *data {
	return &data{
		windows:  maps.Clone(d.windows),
		appts:    maps.Clone(d.appts),
		services: maps.Clone(d.services),
	}
}

type Store struct {
	mu    sync.RWMutex
	d     *data
	locks map[string]*sync.Mutex

	events      []domain.OutboxEvent
	nextEventID int64
	publishMu   sync.Mutex
}

func New() *Store {
	return &Store{
		d: &data{
			windows:  make(map[uuid.UUID]domain.AvailabilityWindow),
			appts:    make(map[uuid.UUID]domain.Appointment),
			services: make(map[uuid.UUID]domain.Service),
		},
		locks: make(map[string]*sync.Mutex),
	}
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Outbox     = (*Store)(nil)
)

func (s *Store) businessLock(businessID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[businessID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[businessID] = l
	}
	return l
}

// InBusinessTransaction serializes fn against every other transaction for the
// same business. Changes become visible only if fn returns nil and ctx is still live.
func (s *Store) InBusinessTransaction(ctx context.Context, businessID string, fn func(ctx context.Context, tx store.BusinessTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.businessLock(businessID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()

	tx := &businessTx{d: snapshot}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range tx.ops {
		op(s.d)
	}
	for _, e := range tx.events {
		s.nextEventID++
		e.ID = s.nextEventID
		s.events = append(s.events, e)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) read() *data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.clone()
}

func (s *Store) ListWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	return listWindows(s.read(), ownerID, &day), nil
}

func (s *Store) ListAllWindows(ctx context.Context, ownerID string) ([]domain.AvailabilityWindow, error) {
	return listWindows(s.read(), ownerID, nil), nil
}

func (s *Store) ListAppointmentsOn(ctx context.Context, businessID string, date time.Time) ([]domain.Appointment, error) {
	day := domain.DateOf(date)
	return filterAppointments(s.read(), businessID, func(a domain.Appointment) bool {
		return domain.DateOf(a.Date).Equal(day)
	}), nil
}

func (s *Store) ListServices(ctx context.Context, ownerID string) ([]domain.Service, error) {
	return listServices(s.read(), ownerID), nil
}

func (s *Store) GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(s.read(), businessID, id)
}

func (s *Store) ListAppointments(ctx context.Context, businessID string, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	name := strings.ToLower(strings.TrimSpace(filter.NameContains))
	return filterAppointments(s.read(), businessID, func(a domain.Appointment) bool {
		if filter.Date != nil && !domain.DateOf(a.Date).Equal(domain.DateOf(*filter.Date)) {
			return false
		}
		if filter.ServiceName != "" && !strings.EqualFold(a.ServiceName, strings.TrimSpace(filter.ServiceName)) {
			return false
		}
		if filter.PhoneDigits != "" && digitsOnly(a.CustomerPhone) != filter.PhoneDigits {
			return false
		}
		if name != "" && !strings.Contains(strings.ToLower(a.CustomerName), name) {
			return false
		}
		return true
	}), nil
}

func (s *Store) ListAppointmentsBetween(ctx context.Context, businessID string, from, to time.Time) ([]domain.Appointment, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	return filterAppointments(s.read(), businessID, func(a domain.Appointment) bool {
		d := domain.DateOf(a.Date)
		return !d.Before(from) && !d.After(to)
	}), nil
}

// PublishPending hands unpublished events to publish in insertion order.
func (s *Store) PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, events []domain.OutboxEvent) error) (int, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.RLock()
	var pending []domain.OutboxEvent
	for _, e := range s.events {
		if e.PublishedAt == nil {
			pending = append(pending, e)
			if len(pending) == limit {
				break
			}
		}
	}
	s.mu.RUnlock()

	if len(pending) == 0 {
		return 0, nil
	}
	if err := publish(ctx, pending); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	published := make(map[int64]struct{}, len(pending))
	for _, e := range pending {
		published[e.ID] = struct{}{}
	}
	s.mu.Lock()
	for i := range s.events {
		if _, ok := published[s.events[i].ID]; ok {
			s.events[i].PublishedAt = &now
		}
	}
	s.mu.Unlock()
	return len(pending), nil
}

// Events returns a copy of every event appended so far.
func (s *Store) Events() []domain.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OutboxEvent, len(s.events))
	copy(out, s.events)
	return out
}

func listWindows(d *data, ownerID string, day *time.Weekday) []domain.AvailabilityWindow {
	var out []domain.AvailabilityWindow
	for _, w := range d.windows {
		if w.OwnerID != ownerID {
			continue
		}
		if day != nil && w.DayOfWeek != *day {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func listServices(d *data, ownerID string) []domain.Service {
	var out []domain.Service
	for _, svc := range d.services {
		if svc.OwnerID == ownerID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func filterAppointments(d *data, businessID string, keep func(domain.Appointment) bool) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range d.appts {
		if a.BusinessID == businessID && keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func getAppointment(d *data, businessID string, id uuid.UUID) (domain.Appointment, error) {
	a, ok := d.appts[id]
	if !ok || a.BusinessID != businessID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
