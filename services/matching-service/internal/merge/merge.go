// Package merge joins per-party busy-day sequences into one sequence keyed by local date.
package merge

import (
	"time"

	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
)

// IsSameLocalDate reports whether a and b fall on the same calendar date, each in its own location.
func IsSameLocalDate(a, b time.Time) bool {
	return compareDates(a, b) == 0
}

func compareDates(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	switch {
	case ay != by:
		return cmpInt(ay, by)
	case am != bm:
		return cmpInt(int(am), int(bm))
	default:
		return cmpInt(ad, bd)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Days merges two sequences sorted ascending by date. Entries on the same date collapse into one whose busy
// periods are left's followed by right's. Inputs are never modified and the result shares no slices with them.
func Days(left, right []model.DayAppointmentSet) []model.DayAppointmentSet {
	out := make([]model.DayAppointmentSet, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		switch c := compareDates(left[i].Date, right[j].Date); {
		case c < 0:
			out = append(out, left[i].Clone())
			i++
		case c > 0:
			out = append(out, right[j].Clone())
			j++
		default:
			periods := make(model.DayTimePeriods, 0, len(left[i].BusyPeriods)+len(right[j].BusyPeriods))
			periods = append(periods, left[i].BusyPeriods...)
			periods = append(periods, right[j].BusyPeriods...)
			out = append(out, model.DayAppointmentSet{Date: left[i].Date, BusyPeriods: periods})
			i++
			j++
		}
	}
	for ; i < len(left); i++ {
		out = append(out, left[i].Clone())
	}
	for ; j < len(right); j++ {
		out = append(out, right[j].Clone())
	}
	return out
}

// Span returns one empty entry per calendar date from from through to inclusive, in from's location.
// It is merged with busy sequences so that days without any busy period are still matched.
func Span(from, to time.Time) []model.DayAppointmentSet {
	y, m, d := from.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, from.Location())
	var out []model.DayAppointmentSet
	for compareDates(day, to) <= 0 {
		out = append(out, model.DayAppointmentSet{Date: day, BusyPeriods: model.DayTimePeriods{}})
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Clip keeps the entries whose date lies in [from, to]. Entries are copied.
func Clip(days []model.DayAppointmentSet, from, to time.Time) []model.DayAppointmentSet {
	out := make([]model.DayAppointmentSet, 0, len(days))
	for _, d := range days {
		if compareDates(d.Date, from) < 0 || compareDates(d.Date, to) > 0 {
			continue
		}
		out = append(out, d.Clone())
	}
	return out
}
