package httpapi

import (
	"encoding/json"
	"strings"
	"time"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/conflicts"
)

type intervalJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func intervalsJSON(in []domain.Interval) []intervalJSON {
	out := make([]intervalJSON, 0, len(in))
	for _, iv := range in {
		out = append(out, intervalJSON{StartTime: iv.Start.String(), EndTime: iv.End.String()})
	}
	return out
}

type appointmentJSON struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	ServiceName     string    `json:"service_name"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	Cost            int64     `json:"cost"`
	Notes           string    `json:"notes,omitempty"`
	BookedBy        string    `json:"booked_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentJSON(a domain.Appointment) appointmentJSON {
	return appointmentJSON{
		ID:              a.ID.String(),
		BusinessID:      a.BusinessID,
		Date:            a.Date.Format(domain.DateLayout),
		StartTime:       a.StartTime.String(),
		EndTime:         a.StartTime.Add(a.DurationMinutes).String(),
		DurationMinutes: a.DurationMinutes,
		ServiceName:     a.ServiceName,
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		Cost:            a.Cost,
		Notes:           a.Notes,
		BookedBy:        a.BookedBy,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentsJSON(in []domain.Appointment) []appointmentJSON {
	out := make([]appointmentJSON, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointmentJSON(a))
	}
	return out
}

type serviceJSON struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

func toServicesJSON(in []domain.Service) []serviceJSON {
	out := make([]serviceJSON, 0, len(in))
	for _, s := range in {
		out = append(out, toServiceJSON(s))
	}
	return out
}

func toServiceJSON(s domain.Service) serviceJSON {
	return serviceJSON{ID: s.ID.String(), Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price}
}

type windowJSON struct {
	ID        string `json:"id"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toWindowJSON(w domain.AvailabilityWindow) windowJSON {
	return windowJSON{
		ID:        w.ID.String(),
		DayOfWeek: strings.ToLower(w.DayOfWeek.String()),
		StartTime: w.StartTime.String(),
		EndTime:   w.EndTime.String(),
	}
}

func toWindowsJSON(in []domain.AvailabilityWindow) []windowJSON {
	out := make([]windowJSON, 0, len(in))
	for _, w := range in {
		out = append(out, toWindowJSON(w))
	}
	return out
}

type openingJSON struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toOpeningsJSON(in []availability.Opening) []openingJSON {
	out := make([]openingJSON, 0, len(in))
	for _, o := range in {
		out = append(out, openingJSON{Date: o.Date.Format(domain.DateLayout), StartTime: o.Start.String(), EndTime: o.End.String()})
	}
	return out
}

type decisionJSON struct {
	Available     bool           `json:"available"`
	Reason        string         `json:"reason,omitempty"`
	ConflictingID string         `json:"conflicting_appointment_id,omitempty"`
	Weekday       string         `json:"weekday,omitempty"`
	Hours         []intervalJSON `json:"hours,omitempty"`
}

// toDecisionJSON reveals the conflicting appointment only to the business
// itself; other callers just learn that the slot is taken.
func toDecisionJSON(d conflicts.Decision, revealConflict bool) decisionJSON {
	out := decisionJSON{Available: d.Available, Reason: string(d.Reason)}
	if d.Available {
		return out
	}
	switch d.Reason {
	case conflicts.ReasonTimeConflict:
		if revealConflict {
			out.ConflictingID = d.ConflictingID.String()
		}
	default:
		out.Weekday = d.Weekday.String()
		out.Hours = intervalsJSON(d.Hours)
	}
	return out
}

type statsJSON struct {
	Date         string   `json:"date"`
	Count        int      `json:"count"`
	ServiceNames []string `json:"service_names"`
	TotalRevenue int64    `json:"total_revenue"`
}

func toStatsJSON(s booking.DailyStats) statsJSON {
	return statsJSON{
		Date:         s.Date.Format(domain.DateLayout),
		Count:        s.Count,
		ServiceNames: s.ServiceNames,
		TotalRevenue: s.TotalRevenue,
	}
}

type bookRequest struct {
	ServiceName   string `json:"service_name"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
}

type updateRequest struct {
	ServiceName   *string `json:"service_name"`
	Date          *string `json:"date"`
	StartTime     *string `json:"start_time"`
	CustomerName  *string `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	Notes         *string `json:"notes"`
}

type checkRequest struct {
	Date                 string `json:"date"`
	StartTime            string `json:"start_time"`
	DurationMinutes      int    `json:"duration_minutes"`
	ServiceName          string `json:"service_name"`
	ExcludeAppointmentID string `json:"exclude_appointment_id"`
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

type updateServiceRequest struct {
	Name            *string `json:"name"`
	DurationMinutes *int    `json:"duration_minutes"`
	Price           *int64  `json:"price"`
}

type createWindowRequest struct {
	DayOfWeek weekdayField `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// weekdayField accepts a weekday as a name ("monday") or a number (0-6).
type weekdayField string

func (f *weekdayField) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = weekdayField(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = weekdayField(s)
	return nil
}
