package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DaysPerWeek is the length of a WeekTimePeriods value. Index 0 is Sunday, matching time.Weekday.
const DaysPerWeek = 7

var ErrInvalidWeek = errors.New("week must have exactly 7 days")

// TimePeriod is a wall-clock interval [Start, End) within one day, both "HH:MM".
// It encodes to JSON as a two-element array: ["08:00","12:00"].
type TimePeriod struct {
	Start string
	End   string
}

func (p TimePeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Start, p.End})
}

func (p *TimePeriod) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("time period: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("time period must have 2 elements, got %d", len(pair))
	}
	p.Start, p.End = pair[0], pair[1]
	return nil
}

// DayTimePeriods is the list of periods for one day. Order and overlap are not enforced.
type DayTimePeriods []TimePeriod

func (d DayTimePeriods) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]TimePeriod(d))
}

// Clone returns a copy that shares no backing array with d.
func (d DayTimePeriods) Clone() DayTimePeriods {
	if d == nil {
		return nil
	}
	out := make(DayTimePeriods, len(d))
	copy(out, d)
	return out
}

// WeekTimePeriods holds the open periods of a recurring week, Sunday first.
type WeekTimePeriods [DaysPerWeek]DayTimePeriods

func (w *WeekTimePeriods) UnmarshalJSON(data []byte) error {
	var days []DayTimePeriods
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("week time periods: %w", err)
	}
	if len(days) != DaysPerWeek {
		return fmt.Errorf("%w (got %d)", ErrInvalidWeek, len(days))
	}
	copy(w[:], days)
	return nil
}

// Day returns the periods for weekday.
func (w WeekTimePeriods) Day(weekday time.Weekday) DayTimePeriods {
	return w[weekday]
}
