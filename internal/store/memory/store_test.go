package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func appt(start domain.Clock, minutes int) domain.Appointment {
	return domain.Appointment{
		BusinessID:      "biz-1",
		Date:            monday,
		StartTime:       start,
		DurationMinutes: minutes,
		ServiceName:     "Haircut",
		CustomerName:    "Ann",
		CustomerPhone:   "(555) 010-0100",
		Cost:            25,
	}
}

func TestInBusinessTransaction_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		if _, err := tx.CreateAppointment(ctx, appt(domain.NewClock(10, 0), 30)); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, domain.OutboxEvent{EventType: domain.EventAppointmentBooked, Payload: "{}"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := s.ListAppointmentsOn(ctx, "biz-1", monday)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, s.Events())
}

func TestInBusinessTransaction_CanceledContextDoesNotCommit(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		_, err := tx.CreateAppointment(ctx, appt(domain.NewClock(10, 0), 30))
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	rows, err := s.ListAppointmentsOn(context.Background(), "biz-1", monday)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreateAppointment_EnforcesNoOverlapAndIdempotency(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := appt(domain.NewClock(10, 0), 30)
	first.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		if _, err := tx.CreateAppointment(ctx, first); err != nil {
			return err
		}

		_, err := tx.CreateAppointment(ctx, appt(domain.NewClock(10, 15), 30))
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = tx.CreateAppointment(ctx, appt(domain.NewClock(10, 30), 30))
		assert.NoError(t, err, "back-to-back must be accepted")

		replay, err := tx.CreateAppointment(ctx, first)
		assert.NoError(t, err)
		assert.Equal(t, first.ID, replay.ID)

		changed := first
		changed.CustomerName = "Someone else"
		_, err = tx.CreateAppointment(ctx, changed)
		assert.ErrorIs(t, err, store.ErrIdempotencyConflict)
		return nil
	})
	require.NoError(t, err)

	rows, err := s.ListAppointmentsOn(ctx, "biz-1", monday)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.NewClock(10, 0), rows[0].StartTime)
	assert.Equal(t, domain.NewClock(10, 30), rows[1].StartTime)
}

func TestInBusinessTransaction_SerializesConcurrentBookings(t *testing.T) {
	s := New()
	ctx := context.Background()

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
				existing, err := tx.ListAppointmentsOn(ctx, "biz-1", monday)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return store.ErrConflict
				}
				_, err = tx.CreateAppointment(ctx, appt(domain.NewClock(10, 0), 30))
				return err
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	rows, err := s.ListAppointmentsOn(ctx, "biz-1", monday)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestListAppointments_Filters(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		a := appt(domain.NewClock(9, 0), 30)
		if _, err := tx.CreateAppointment(ctx, a); err != nil {
			return err
		}
		b := appt(domain.NewClock(11, 0), 60)
		b.ServiceName = "Coloring"
		b.CustomerName = "Bob Stone"
		b.CustomerPhone = "555 999 0000"
		_, err := tx.CreateAppointment(ctx, b)
		return err
	})
	require.NoError(t, err)

	byService, err := s.ListAppointments(ctx, "biz-1", store.AppointmentFilter{ServiceName: "coloring"})
	require.NoError(t, err)
	require.Len(t, byService, 1)
	assert.Equal(t, "Bob Stone", byService[0].CustomerName)

	byPhone, err := s.ListAppointments(ctx, "biz-1", store.AppointmentFilter{PhoneDigits: "5550100100"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, "Ann", byPhone[0].CustomerName)

	byName, err := s.ListAppointments(ctx, "biz-1", store.AppointmentFilter{NameContains: "STONE"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	other, err := s.ListAppointments(ctx, "biz-2", store.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestServices_DuplicateNameIsCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InBusinessTransaction(ctx, "owner-1", func(ctx context.Context, tx store.BusinessTx) error {
		if _, err := tx.CreateService(ctx, domain.Service{OwnerID: "owner-1", Name: "Haircut", DurationMinutes: 30, Price: 25}); err != nil {
			return err
		}
		_, err := tx.CreateService(ctx, domain.Service{OwnerID: "owner-1", Name: "HAIRCUT", DurationMinutes: 45, Price: 30})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicateService)
}

func TestPublishPending_MarksPublishedOnlyOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InBusinessTransaction(ctx, "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendEvent(ctx, domain.OutboxEvent{AggregateID: "a", EventType: domain.EventAppointmentBooked, Payload: "{}"}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, err = s.PublishPending(ctx, 10, func(ctx context.Context, events []domain.OutboxEvent) error {
		return errors.New("broker down")
	})
	require.Error(t, err)

	var seen []int64
	n, err := s.PublishPending(ctx, 2, func(ctx context.Context, events []domain.OutboxEvent) error {
		for _, e := range events {
			seen = append(seen, e.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, seen)

	n, err = s.PublishPending(ctx, 10, func(ctx context.Context, events []domain.OutboxEvent) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PublishPending(ctx, 10, func(ctx context.Context, events []domain.OutboxEvent) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}
