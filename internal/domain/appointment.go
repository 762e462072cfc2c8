package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Appointment is a concrete booking. Duration and Cost are copied from the
// service at booking time and are not affected by later catalog edits.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	BusinessID      string    `bun:"business_id,notnull"`
	Date            time.Time `bun:"appt_date,type:date,notnull"`
	StartTime       Clock     `bun:"start_minute,notnull"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	ServiceName     string    `bun:"service_name,notnull"`
	CustomerName    string    `bun:"customer_name,notnull"`
	CustomerPhone   string    `bun:"customer_phone,notnull"`
	Cost            int64     `bun:"cost,notnull"`
	Notes           string    `bun:"notes"`
	BookedBy        string    `bun:"booked_by"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Interval is the derived [start, start+duration) span on the appointment's date.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.StartTime.Add(a.DurationMinutes)}
}

func (a Appointment) Weekday() time.Weekday {
	return a.Date.Weekday()
}

// SameBooking compares the caller-supplied fields of two appointments. It is
// used to decide whether a replayed idempotent request matches the stored one.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.BusinessID == b.BusinessID &&
		DateOf(a.Date).Equal(DateOf(b.Date)) &&
		a.StartTime == b.StartTime &&
		a.ServiceName == b.ServiceName &&
		a.CustomerName == b.CustomerName &&
		a.CustomerPhone == b.CustomerPhone &&
		a.Notes == b.Notes
}
