package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for dates throughout the pipeline.
const DateLayout = "2006-01-02"

// TimeWindow is an inclusive range of calendar days in UTC.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow builds a window from two UTC midnights, rejecting an
// inverted range.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if end.Before(start) {
		return TimeWindow{}, fmt.Errorf("time window end %s before start %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// ParseTimeWindow builds a window from two ISO dates (YYYY-MM-DD).
func ParseTimeWindow(start, end string) (TimeWindow, error) {
	s, err := time.ParseInLocation(DateLayout, start, time.UTC)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse window start: %w", err)
	}
	e, err := time.ParseInLocation(DateLayout, end, time.UTC)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse window end: %w", err)
	}
	return NewTimeWindow(s, e)
}

// YearWindow covers every day of the inclusive year range.
func YearWindow(startYear, endYear int) (TimeWindow, error) {
	return NewTimeWindow(
		time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(endYear, 12, 31, 0, 0, 0, 0, time.UTC),
	)
}

// Contains reports whether the day of t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	d := midnightUTC(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Days returns the number of calendar days the window spans.
func (w TimeWindow) Days() int {
	return int(w.End.Sub(w.Start)/(24*time.Hour)) + 1
}

func (w TimeWindow) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
