package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

// Reader is the read surface of the conflict checker.
type Reader interface {
	ListWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error)
	ListAppointmentsOn(ctx context.Context, businessID string, date time.Time) ([]domain.Appointment, error)
}

// BusinessTx is the write surface available while a business's calendar is serialized.
type BusinessTx interface {
	Reader

	ListServices(ctx context.Context, ownerID string) ([]domain.Service, error)
	GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, businessID string, id uuid.UUID) error

	CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, ownerID string, id uuid.UUID) error

	CreateService(ctx context.Context, s domain.Service) (domain.Service, error)
	UpdateService(ctx context.Context, s domain.Service) (domain.Service, error)
	DeleteService(ctx context.Context, ownerID string, id uuid.UUID) error

	AppendEvent(ctx context.Context, e domain.OutboxEvent) error
}

// AppointmentFilter narrows List queries. Zero values match everything.
type AppointmentFilter struct {
	Date         *time.Time
	ServiceName  string
	PhoneDigits  string
	NameContains string
}

// Repository is the persistent store. Writes that must observe a consistent
// calendar go through InBusinessTransaction, which serializes per business.
type Repository interface {
	Reader

	InBusinessTransaction(ctx context.Context, businessID string, fn func(ctx context.Context, tx BusinessTx) error) error

	ListAllWindows(ctx context.Context, ownerID string) ([]domain.AvailabilityWindow, error)
	ListServices(ctx context.Context, ownerID string) ([]domain.Service, error)
	GetAppointment(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, businessID string, filter AppointmentFilter) ([]domain.Appointment, error)
	ListAppointmentsBetween(ctx context.Context, businessID string, from, to time.Time) ([]domain.Appointment, error)

	Ping(ctx context.Context) error
}

// Outbox hands pending events to publish and marks them published when it returns nil.
// Events claimed by one caller are invisible to concurrent callers until released.
type Outbox interface {
	PublishPending(ctx context.Context, limit int, publish func(ctx context.Context, events []domain.OutboxEvent) error) (int, error)
}
