package availability

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

const (
	DefaultStepMinutes = 15
	minStepMinutes     = 5
	maxStepMinutes     = 240
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo store.Repository
	now  func() time.Time
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type CreateWindowInput struct {
	OwnerID   string
	DayOfWeek string
	StartTime string
	EndTime   string
}

// CreateWindow adds a weekly window. A window that overlaps or merely touches
// an existing window on the same weekday is rejected with store.ErrWindowOverlap.
func (s *Service) CreateWindow(ctx context.Context, in CreateWindowInput) (domain.AvailabilityWindow, error) {
	if in.OwnerID == "" {
		return domain.AvailabilityWindow{}, validationError("owner_id is required")
	}
	day, err := domain.ParseWeekday(in.DayOfWeek)
	if err != nil {
		return domain.AvailabilityWindow{}, validationError("day_of_week must be a weekday name or 0-6")
	}
	start, err := domain.ParseClock(in.StartTime)
	if err != nil {
		return domain.AvailabilityWindow{}, validationError("start_time must be HH:MM")
	}
	end, err := domain.ParseClock(in.EndTime)
	if err != nil {
		return domain.AvailabilityWindow{}, validationError("end_time must be HH:MM")
	}
	if end <= start {
		return domain.AvailabilityWindow{}, validationError("end_time must be after start_time")
	}

	w := domain.AvailabilityWindow{OwnerID: in.OwnerID, DayOfWeek: day, StartTime: start, EndTime: end}

	var out domain.AvailabilityWindow
	err = s.repo.InBusinessTransaction(ctx, in.OwnerID, func(ctx context.Context, tx store.BusinessTx) error {
		existing, err := tx.ListWindows(ctx, in.OwnerID, day)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Interval().Touches(w.Interval()) {
				return store.ErrWindowOverlap
			}
		}
		created, err := tx.CreateWindow(ctx, w)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return out, nil
}

func (s *Service) DeleteWindow(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" {
		return validationError("owner_id is required")
	}
	if id == uuid.Nil {
		return validationError("window_id is required")
	}
	return s.repo.InBusinessTransaction(ctx, ownerID, func(ctx context.Context, tx store.BusinessTx) error {
		return tx.DeleteWindow(ctx, ownerID, id)
	})
}

// ListWindows returns every window of the owner ordered by weekday then start.
func (s *Service) ListWindows(ctx context.Context, ownerID string) ([]domain.AvailabilityWindow, error) {
	if ownerID == "" {
		return nil, validationError("owner_id is required")
	}
	return s.repo.ListAllWindows(ctx, ownerID)
}

func (s *Service) GetWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	if ownerID == "" {
		return nil, validationError("owner_id is required")
	}
	return s.repo.ListWindows(ctx, ownerID, day)
}

type OpeningsInput struct {
	BusinessID  string
	ServiceName string
	From        string
	To          string
	StepMinutes int
}

type Opening struct {
	Date  time.Time
	Start domain.Clock
	End   domain.Clock
}

// Openings lists start times between From and To (inclusive dates) at which
// the named service could be booked. Slots that already started are skipped.
func (s *Service) Openings(ctx context.Context, in OpeningsInput) ([]Opening, error) {
	if in.BusinessID == "" {
		return nil, validationError("business_id is required")
	}
	if strings.TrimSpace(in.ServiceName) == "" {
		return nil, validationError("service is required")
	}
	from, err := domain.ParseDate(in.From)
	if err != nil {
		return nil, validationError("from must be YYYY-MM-DD")
	}
	to := from
	if strings.TrimSpace(in.To) != "" {
		to, err = domain.ParseDate(in.To)
		if err != nil {
			return nil, validationError("to must be YYYY-MM-DD")
		}
	}
	step := in.StepMinutes
	if step == 0 {
		step = DefaultStepMinutes
	}
	if step < minStepMinutes || step > maxStepMinutes {
		return nil, validationError("step must be between 5 and 240 minutes")
	}

	services, err := s.repo.ListServices(ctx, in.BusinessID)
	if err != nil {
		return nil, err
	}
	svc, ok := domain.FindService(services, in.ServiceName)
	if !ok {
		return nil, validationError("service not offered by this business")
	}

	windows, err := s.repo.ListAllWindows(ctx, in.BusinessID)
	if err != nil {
		return nil, err
	}
	dated, err := domain.ExpandWeekly(windows, from, to)
	if err != nil {
		return nil, validationError(err.Error())
	}
	if len(dated) == 0 {
		return nil, nil
	}

	appts, err := s.repo.ListAppointmentsBetween(ctx, in.BusinessID, from, to)
	if err != nil {
		return nil, err
	}
	busy := make(map[string][]domain.Interval)
	for _, a := range appts {
		key := a.Date.Format(domain.DateLayout)
		busy[key] = append(busy[key], a.Interval())
	}

	now := s.now().UTC()
	var out []Opening
	for _, dw := range dated {
		for _, start := range domain.FreeStarts(dw.Interval, svc.DurationMinutes, step, busy[dw.Date.Format(domain.DateLayout)]) {
			if start.On(dw.Date).Before(now) {
				continue
			}
			out = append(out, Opening{Date: dw.Date, Start: start, End: start.Add(svc.DurationMinutes)})
		}
	}
	return out, nil
}
