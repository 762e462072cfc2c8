package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AvailabilityWindow is a recurring weekly span during which a business accepts bookings.
// Windows are never edited in place; owners delete and recreate them.
type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID        uuid.UUID    `bun:"id,pk,type:uuid"`
	OwnerID   string       `bun:"owner_id,notnull"`
	DayOfWeek time.Weekday `bun:"day_of_week,notnull"`
	StartTime Clock        `bun:"start_minute,notnull"`
	EndTime   Clock        `bun:"end_minute,notnull"`
	CreatedAt time.Time    `bun:"created_at,notnull"`
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (w AvailabilityWindow) Interval() Interval {
	return Interval{Start: w.StartTime, End: w.EndTime}
}

// Intervals projects windows onto their wall-clock spans.
func Intervals(windows []AvailabilityWindow) []Interval {
	out := make([]Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Interval())
	}
	return out
}
