package slots

import (
	"fmt"
	"time"
)

// SlotMinutes is the grid resolution.
const SlotMinutes = 5

const (
	SlotsPerHour = 60 / SlotMinutes
	SlotsPerDay  = 24 * SlotsPerHour
)

// TimeToSlot converts "HH:MM" (HH 00-23, MM a multiple of 5) to a slot index in [0, SlotsPerDay).
func TimeToSlot(hhmm string) (int, error) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, Invalid(ErrInvalidTime, hhmm)
	}
	h, ok := twoDigits(hhmm[0], hhmm[1])
	if !ok || h > 23 {
		return 0, Invalid(ErrInvalidTime, hhmm)
	}
	m, ok := twoDigits(hhmm[3], hhmm[4])
	if !ok || m > 59 || m%SlotMinutes != 0 {
		return 0, Invalid(ErrInvalidTime, hhmm)
	}
	return h*SlotsPerHour + m/SlotMinutes, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// SlotToTime returns the start of slot index on ref's calendar date, in ref's location.
// Indices outside [0, SlotsPerDay) fail with ErrInvalidSlot rather than rolling into another day. A slot inside a
// DST gap fails with ErrSkippedTime. An ambiguous slot in a fall-back hour resolves to its first occurrence.
func SlotToTime(index int, ref time.Time) (time.Time, error) {
	if index < 0 || index >= SlotsPerDay {
		return time.Time{}, Invalid(ErrInvalidSlot, index)
	}
	y, mo, d := ref.Date()
	h, m := index/SlotsPerHour, (index%SlotsPerHour)*SlotMinutes
	at := time.Date(y, mo, d, h, m, 0, 0, ref.Location())
	if at.Hour() != h || at.Minute() != m {
		return time.Time{}, Invalid(ErrSkippedTime, SlotToClock(index))
	}
	return at, nil
}

// SlotToClock formats index as "HH:MM". The caller guarantees index is in range.
func SlotToClock(index int) string {
	return fmt.Sprintf("%02d:%02d", index/SlotsPerHour, (index%SlotsPerHour)*SlotMinutes)
}
