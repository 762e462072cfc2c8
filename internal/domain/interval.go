package domain

// Interval is a half-open span [Start, End) of wall-clock minutes on a single day.
type Interval struct {
	Start Clock
	End   Clock
}

func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

func (i Interval) Empty() bool {
	return i.End <= i.Start
}

// Overlaps reports whether the half-open intervals share at least one minute.
// Back-to-back intervals (i.End == o.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Touches is the closed-interval test used when registering availability windows:
// windows that merely share a boundary are treated as colliding.
func (i Interval) Touches(o Interval) bool {
	return i.Start <= o.End && i.End >= o.Start
}
