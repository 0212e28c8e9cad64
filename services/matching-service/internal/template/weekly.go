// Package template turns a provider's recurring week of open periods into per-weekday open grids.
package template

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/slots"
)

// Weekly holds one open grid per weekday. It is immutable once built and safe for concurrent use.
type Weekly struct {
	grids [model.DaysPerWeek]slots.Grid
}

// New rasterizes week once. Any malformed period fails the whole build with slots.ErrInvalidTime.
func New(week model.WeekTimePeriods) (*Weekly, error) {
	w := &Weekly{}
	for day := range week {
		g, err := slots.OpenGrid(week[day])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", time.Weekday(day), err)
		}
		w.grids[day] = g
	}
	return w, nil
}

// Grid returns a copy of the open grid for weekday.
func (w *Weekly) Grid(weekday time.Weekday) slots.Grid {
	return w.grids[weekday].Clone()
}

// ForDate returns the open grid for date's weekday in date's location.
func (w *Weekly) ForDate(date time.Time) slots.Grid {
	return w.Grid(date.Weekday())
}

// Closed reports whether weekday has no open slot at all.
func (w *Weekly) Closed(weekday time.Weekday) bool {
	for _, open := range w.grids[weekday] {
		if open {
			return false
		}
	}
	return true
}
