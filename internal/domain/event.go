package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	EventAppointmentBooked  = "appointment.booked.v1"
	EventAppointmentUpdated = "appointment.updated.v1"
	EventAppointmentDeleted = "appointment.deleted.v1"
)

// OutboxEvent is written in the same transaction as the change it describes
// and relayed to the message broker afterwards.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events"`

	ID          int64      `bun:"id,pk,autoincrement"`
	EventID     uuid.UUID  `bun:"event_id,type:uuid,notnull"`
	AggregateID string     `bun:"aggregate_id,notnull"`
	EventType   string     `bun:"event_type,notnull"`
	Payload     string     `bun:"payload,type:jsonb,notnull"`
	Traceparent string     `bun:"traceparent"`
	Tracestate  string     `bun:"tracestate"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	PublishedAt *time.Time `bun:"published_at"`
}

func (e *OutboxEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if e.EventID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.EventID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
