// Package conflicts decides whether a proposed appointment slot is legal
// given a business's weekly availability and its existing bookings.
package conflicts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type Reason string

const (
	ReasonNoAvailability Reason = "NO_AVAILABILITY"
	ReasonOutsideHours   Reason = "OUTSIDE_HOURS"
	ReasonTimeConflict   Reason = "TIME_CONFLICT"
)

var ErrInvalidCandidate = errors.New("invalid candidate")

// Candidate is a proposed slot. ExcludeID, when set, names an appointment that
// is ignored during the overlap scan (the one being moved by an update).
type Candidate struct {
	BusinessID      string
	Date            time.Time
	Start           domain.Clock
	DurationMinutes int
	ExcludeID       uuid.UUID
}

func (c Candidate) Interval() domain.Interval {
	return domain.Interval{Start: c.Start, End: c.Start.Add(c.DurationMinutes)}
}

// Decision is the outcome of a check. Hours lists the business's windows for
// the candidate's weekday; it is empty when Reason is NO_AVAILABILITY.
type Decision struct {
	Available     bool
	Reason        Reason
	ConflictingID uuid.UUID
	Weekday       time.Weekday
	Hours         []domain.Interval
}

// Check runs the availability and overlap rules against r. It has no side
// effects; a non-nil error means the store could not be read.
func Check(ctx context.Context, r store.Reader, c Candidate) (Decision, error) {
	if c.BusinessID == "" || c.DurationMinutes <= 0 || !c.Start.Valid() {
		return Decision{}, ErrInvalidCandidate
	}

	weekday := c.Date.Weekday()
	windows, err := r.ListWindows(ctx, c.BusinessID, weekday)
	if err != nil {
		return Decision{}, err
	}
	if len(windows) == 0 {
		return Decision{Reason: ReasonNoAvailability, Weekday: weekday}, nil
	}

	hours := domain.Intervals(windows)
	candidate := c.Interval()
	contained := false
	for _, h := range hours {
		if h.Contains(candidate) {
			contained = true
			break
		}
	}
	if !contained {
		return Decision{Reason: ReasonOutsideHours, Weekday: weekday, Hours: hours}, nil
	}

	appts, err := r.ListAppointmentsOn(ctx, c.BusinessID, domain.DateOf(c.Date))
	if err != nil {
		return Decision{}, err
	}
	for _, a := range appts {
		if c.ExcludeID != uuid.Nil && a.ID == c.ExcludeID {
			continue
		}
		if a.Interval().Overlaps(candidate) {
			return Decision{Reason: ReasonTimeConflict, ConflictingID: a.ID, Weekday: weekday, Hours: hours}, nil
		}
	}

	return Decision{Available: true, Weekday: weekday, Hours: hours}, nil
}

// Checker binds Check to a store.
type Checker struct {
	reader store.Reader
}

func NewChecker(reader store.Reader) *Checker {
	return &Checker{reader: reader}
}

func (c *Checker) CheckConflict(ctx context.Context, candidate Candidate) (Decision, error) {
	return Check(ctx, c.reader, candidate)
}
