package slots

import "github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"

// Grid is one day at slot resolution. Index i covers the five minutes starting at SlotToClock(i).
// What true means depends on the grid: open, free, or eligible.
type Grid []bool

// Fill returns a full-length grid with every cell set to value.
func Fill(value bool) Grid {
	g := make(Grid, SlotsPerDay)
	if value {
		for i := range g {
			g[i] = true
		}
	}
	return g
}

// PeriodsToGrid rasterizes periods onto a background of !mark, setting [start, end) of each period to mark.
// Periods are applied in order; later periods overwrite earlier ones.
//
// An open grid uses mark=true (only listed periods are open). A free grid uses mark=false (listed busy periods
// are the only non-free cells).
func PeriodsToGrid(periods model.DayTimePeriods, mark bool) (Grid, error) {
	g := Fill(!mark)
	for _, p := range periods {
		start, err := TimeToSlot(p.Start)
		if err != nil {
			return nil, err
		}
		end, err := TimeToSlot(p.End)
		if err != nil {
			return nil, err
		}
		for i := start; i < end; i++ {
			g[i] = mark
		}
	}
	return g, nil
}

// OpenGrid marks the given periods as open on a closed background.
func OpenGrid(open model.DayTimePeriods) (Grid, error) {
	return PeriodsToGrid(open, true)
}

// FreeGrid marks the given busy periods as not free on a free background.
func FreeGrid(busy model.DayTimePeriods) (Grid, error) {
	return PeriodsToGrid(busy, false)
}

// Clone returns an independent copy of g.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	copy(out, g)
	return out
}

// Indices lists the set cells in ascending order.
func (g Grid) Indices() []int {
	var out []int
	for i, v := range g {
		if v {
			out = append(out, i)
		}
	}
	return out
}
