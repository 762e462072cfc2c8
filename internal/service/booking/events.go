package booking

import (
	"context"
	"encoding/json"
	"time"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type appointmentEvent struct {
	AppointmentID   string    `json:"appointment_id"`
	BusinessID      string    `json:"business_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	ServiceName     string    `json:"service_name"`
	Cost            int64     `json:"cost"`
	BookedBy        string    `json:"booked_by,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func appendAppointmentEvent(ctx context.Context, tx store.BusinessTx, eventType string, a domain.Appointment) error {
	payload, err := json.Marshal(appointmentEvent{
		AppointmentID:   a.ID.String(),
		BusinessID:      a.BusinessID,
		Date:            a.Date.Format(domain.DateLayout),
		StartTime:       a.StartTime.String(),
		DurationMinutes: a.DurationMinutes,
		ServiceName:     a.ServiceName,
		Cost:            a.Cost,
		BookedBy:        a.BookedBy,
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, domain.OutboxEvent{
		AggregateID: a.BusinessID,
		EventType:   eventType,
		Payload:     string(payload),
	})
}
