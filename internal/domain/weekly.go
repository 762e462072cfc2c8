package domain

import (
	"errors"
	"sort"
	"time"
)

// MaxExpansionDays bounds how many calendar days a single expansion may cover.
const MaxExpansionDays = 31

// DatedWindow is a weekly availability window materialized on a calendar date.
type DatedWindow struct {
	Date     time.Time
	WindowID string
	Interval Interval
}

// ExpandWeekly materializes the weekly windows onto every date in [from, to] (inclusive).
// The output is ordered by date then start time.
func ExpandWeekly(windows []AvailabilityWindow, from, to time.Time) ([]DatedWindow, error) {
	from = DateOf(from)
	to = DateOf(to)
	if to.Before(from) {
		return nil, errors.New("to must not be before from")
	}
	days := int(to.Sub(from)/(24*time.Hour)) + 1
	if days > MaxExpansionDays {
		return nil, errors.New("date range too large")
	}

	byWeekday := make(map[time.Weekday][]AvailabilityWindow, 7)
	for _, w := range windows {
		if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
			return nil, errors.New("invalid weekday")
		}
		byWeekday[w.DayOfWeek] = append(byWeekday[w.DayOfWeek], w)
	}
	for wd := range byWeekday {
		ws := byWeekday[wd]
		sort.Slice(ws, func(i, j int) bool { return ws[i].StartTime < ws[j].StartTime })
	}

	out := make([]DatedWindow, 0, days)
	for d := 0; d < days; d++ {
		date := from.AddDate(0, 0, d)
		for _, w := range byWeekday[date.Weekday()] {
			out = append(out, DatedWindow{
				Date:     date,
				WindowID: w.ID.String(),
				Interval: w.Interval(),
			})
		}
	}
	return out, nil
}

// FreeStarts lists start times inside window, advancing by step minutes, at which
// a span of duration minutes fits without overlapping any busy interval.
func FreeStarts(window Interval, duration, step int, busy []Interval) []Clock {
	if duration <= 0 || step <= 0 || window.Empty() {
		return nil
	}
	var out []Clock
	for start := window.Start; start.Add(duration) <= window.End; start = start.Add(step) {
		candidate := Interval{Start: start, End: start.Add(duration)}
		free := true
		for _, b := range busy {
			if candidate.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, start)
		}
	}
	return out
}
