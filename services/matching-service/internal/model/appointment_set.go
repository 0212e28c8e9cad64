package model

import "time"

// DayAppointmentSet carries the busy periods of one calendar date.
// Only the date components of Date are meaningful; its Location defines "local".
type DayAppointmentSet struct {
	Date        time.Time      `json:"date"`
	BusyPeriods DayTimePeriods `json:"busy_periods"`
}

// Clone returns a deep copy of s.
func (s DayAppointmentSet) Clone() DayAppointmentSet {
	return DayAppointmentSet{Date: s.Date, BusyPeriods: s.BusyPeriods.Clone()}
}
