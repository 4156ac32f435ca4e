package scheduler

import (
	"fmt"
	"time"
)

// DefaultTolerance is how far past the configured wake time a wake still
// counts as "today". Without it, waking a few seconds late (GC pause, clock
// step, slow tick) would push the pass a full day out.
const DefaultTolerance = 2 * time.Minute

// DailySchedule runs a job once a day at a fixed local wall-clock time.
type DailySchedule struct {
	Hour      int
	Minute    int
	Tolerance time.Duration
	Location  *time.Location
}

// NewDailySchedule creates a DailySchedule with the default tolerance.
func NewDailySchedule(hour, minute int, loc *time.Location) *DailySchedule {
	return &DailySchedule{
		Hour:      hour,
		Minute:    minute,
		Tolerance: DefaultTolerance,
		Location:  loc,
	}
}

// Next returns today's wake time while now is at or before wake+tolerance,
// otherwise tomorrow's. A wake time slightly in the past is deliberately
// returned as-is so the scheduler fires immediately instead of skipping the
// day.
func (s *DailySchedule) Next(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	target := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, loc)
	if !local.After(target.Add(s.tolerance())) {
		return target
	}
	return target.AddDate(0, 0, 1)
}

func (s *DailySchedule) tolerance() time.Duration {
	if s.Tolerance <= 0 {
		return DefaultTolerance
	}
	return s.Tolerance
}

// String returns the string representation of the schedule.
func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.Hour, s.Minute)
}
