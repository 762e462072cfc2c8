package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
	"appointly/backend/internal/store/memory"
)

const ownerID = "owner-1"

func TestCreateWindow(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	w, err := svc.CreateWindow(ctx, CreateWindowInput{OwnerID: ownerID, DayOfWeek: "monday", StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Monday, w.DayOfWeek)

	tests := []struct {
		name    string
		in      CreateWindowInput
		wantErr error
		invalid bool
	}{
		{name: "overlapping", in: CreateWindowInput{DayOfWeek: "Mon", StartTime: "11:00", EndTime: "13:00"}, wantErr: store.ErrWindowOverlap},
		{name: "touching end", in: CreateWindowInput{DayOfWeek: "1", StartTime: "12:00", EndTime: "13:00"}, wantErr: store.ErrWindowOverlap},
		{name: "touching start", in: CreateWindowInput{DayOfWeek: "monday", StartTime: "08:00", EndTime: "09:00"}, wantErr: store.ErrWindowOverlap},
		{name: "end before start", in: CreateWindowInput{DayOfWeek: "monday", StartTime: "15:00", EndTime: "14:00"}, invalid: true},
		{name: "equal bounds", in: CreateWindowInput{DayOfWeek: "monday", StartTime: "15:00", EndTime: "15:00"}, invalid: true},
		{name: "bad weekday", in: CreateWindowInput{DayOfWeek: "funday", StartTime: "15:00", EndTime: "16:00"}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.OwnerID = ownerID
			_, err := svc.CreateWindow(ctx, tt.in)
			if tt.invalid {
				var vErr *ValidationError
				assert.True(t, errors.As(err, &vErr), "error = %v", err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = svc.CreateWindow(ctx, CreateWindowInput{OwnerID: ownerID, DayOfWeek: "monday", StartTime: "12:01", EndTime: "17:00"})
	require.NoError(t, err)
	_, err = svc.CreateWindow(ctx, CreateWindowInput{OwnerID: ownerID, DayOfWeek: "tuesday", StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)

	all, err := svc.ListWindows(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.NewClock(9, 0), all[0].StartTime)
	assert.Equal(t, domain.NewClock(12, 1), all[1].StartTime)
	assert.Equal(t, time.Tuesday, all[2].DayOfWeek)

	monday, err := svc.GetWindows(ctx, ownerID, time.Monday)
	require.NoError(t, err)
	assert.Len(t, monday, 2)

	require.NoError(t, svc.DeleteWindow(ctx, ownerID, all[2].ID))
	assert.ErrorIs(t, svc.DeleteWindow(ctx, "someone-else", all[0].ID), store.ErrNotFound)
}

func TestOpenings(t *testing.T) {
	s := memory.New()
	svc := NewService(s)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := svc.CreateWindow(ctx, CreateWindowInput{OwnerID: ownerID, DayOfWeek: "monday", StartTime: "09:00", EndTime: "11:00"})
	require.NoError(t, err)

	err = s.InBusinessTransaction(ctx, ownerID, func(ctx context.Context, tx store.BusinessTx) error {
		if _, err := tx.CreateService(ctx, domain.Service{OwnerID: ownerID, Name: "Haircut", DurationMinutes: 30, Price: 25}); err != nil {
			return err
		}
		_, err := tx.CreateAppointment(ctx, domain.Appointment{
			BusinessID:      ownerID,
			Date:            time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			StartTime:       domain.NewClock(9, 30),
			DurationMinutes: 30,
			ServiceName:     "Haircut",
			CustomerName:    "Ann",
			CustomerPhone:   "555",
			Cost:            25,
		})
		return err
	})
	require.NoError(t, err)

	openings, err := svc.Openings(ctx, OpeningsInput{BusinessID: ownerID, ServiceName: "haircut", From: "2026-01-05", To: "2026-01-11", StepMinutes: 30})
	require.NoError(t, err)

	var starts []string
	for _, o := range openings {
		starts = append(starts, o.Date.Format(domain.DateLayout)+" "+o.Start.String())
	}
	assert.Equal(t, []string{"2026-01-05 09:00", "2026-01-05 10:00", "2026-01-05 10:30"}, starts)

	_, err = svc.Openings(ctx, OpeningsInput{BusinessID: ownerID, ServiceName: "haircut", From: "2026-01-05", To: "2026-03-05"})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = svc.Openings(ctx, OpeningsInput{BusinessID: ownerID, ServiceName: "massage", From: "2026-01-05"})
	assert.True(t, errors.As(err, &vErr))
}

func TestOpenings_SkipsPastSlots(t *testing.T) {
	s := memory.New()
	svc := NewService(s)
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 10, 5, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := svc.CreateWindow(ctx, CreateWindowInput{OwnerID: ownerID, DayOfWeek: "monday", StartTime: "09:00", EndTime: "11:00"})
	require.NoError(t, err)
	err = s.InBusinessTransaction(ctx, ownerID, func(ctx context.Context, tx store.BusinessTx) error {
		_, err := tx.CreateService(ctx, domain.Service{OwnerID: ownerID, Name: "Haircut", DurationMinutes: 30, Price: 25})
		return err
	})
	require.NoError(t, err)

	openings, err := svc.Openings(ctx, OpeningsInput{BusinessID: ownerID, ServiceName: "Haircut", From: "2026-01-05", StepMinutes: 30})
	require.NoError(t, err)
	require.Len(t, openings, 1)
	assert.Equal(t, domain.NewClock(10, 30), openings[0].Start)
}
