// Package matcher finds the slots at which an appointment of a given length can start.
package matcher

import (
	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/slots"
)

// allowedStartModulos are the start granularities (in slots) that divide an hour evenly.
var allowedStartModulos = map[int]struct{}{1: {}, 2: {}, 3: {}, 4: {}, 6: {}, 12: {}}

// Constraint is the caller-facing form of a match request, in minutes.
type Constraint struct {
	StartBoundaryMinutes int `json:"start_boundary_minutes"`
	DurationMinutes      int `json:"duration_minutes"`
}

// Slots converts c to (start modulo, duration slot count).
func (c Constraint) Slots() (int, int, error) {
	if c.StartBoundaryMinutes <= 0 || c.StartBoundaryMinutes%slots.SlotMinutes != 0 {
		return 0, 0, slots.Invalid(slots.ErrInvalidStartBoundary, c.StartBoundaryMinutes)
	}
	modulo := c.StartBoundaryMinutes / slots.SlotMinutes
	if _, ok := allowedStartModulos[modulo]; !ok {
		return 0, 0, slots.Invalid(slots.ErrInvalidStartBoundary, c.StartBoundaryMinutes)
	}
	if c.DurationMinutes <= 0 || c.DurationMinutes%slots.SlotMinutes != 0 {
		return 0, 0, slots.Invalid(slots.ErrInvalidDuration, c.DurationMinutes)
	}
	return modulo, c.DurationMinutes / slots.SlotMinutes, nil
}

// Validate reports whether c can be used for matching.
func (c Constraint) Validate() error {
	_, _, err := c.Slots()
	return err
}

// Match returns the eligible-start grid for open and free under c.
// Grid sizes are checked before the constraint.
func Match(open, free slots.Grid, c Constraint) (slots.Grid, error) {
	if err := checkSizes(open, free); err != nil {
		return nil, err
	}
	modulo, count, err := c.Slots()
	if err != nil {
		return nil, err
	}
	return MatchSlots(open, free, modulo, count)
}

// MatchSlots marks slot i eligible when i is a multiple of startModulo and every slot in
// [i, i+durationSlots) is both open and free. The window may not run past the end of the day.
//
// Eligibility is independent per slot: a long free block yields every aligned start that fits, overlapping ones
// included.
func MatchSlots(open, free slots.Grid, startModulo, durationSlots int) (slots.Grid, error) {
	if err := checkSizes(open, free); err != nil {
		return nil, err
	}
	if _, ok := allowedStartModulos[startModulo]; !ok {
		return nil, slots.Invalid(slots.ErrInvalidStartBoundary, startModulo)
	}
	if durationSlots <= 0 {
		return nil, slots.Invalid(slots.ErrInvalidDuration, durationSlots)
	}

	// run[i] is the number of consecutive usable slots starting at i, so one backward pass answers every window.
	var run [slots.SlotsPerDay + 1]int
	for i := slots.SlotsPerDay - 1; i >= 0; i-- {
		if open[i] && free[i] {
			run[i] = run[i+1] + 1
		}
	}

	eligible := slots.Fill(false)
	for i := 0; i < slots.SlotsPerDay; i += startModulo {
		if run[i] >= durationSlots {
			eligible[i] = true
		}
	}
	return eligible, nil
}

func checkSizes(open, free slots.Grid) error {
	if len(open) != slots.SlotsPerDay {
		return slots.Invalid(slots.ErrInvalidArraySize, len(open))
	}
	if len(free) != slots.SlotsPerDay {
		return slots.Invalid(slots.ErrInvalidArraySize, len(free))
	}
	return nil
}
