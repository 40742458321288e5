package scheduler

import (
	"fmt"
	"strconv"
	"time"

	"contentops/autopilot/internal/models"
)

// resolveIterations bounds the occupied-time skip loop. With realistic slot
// configurations this is never approached.
const resolveIterations = 1000

// parseTimeOfDay splits a validated "HH:MM" string.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("malformed time of day %q", s)
	}
	hour, err = strconv.Atoi(s[:2])
	if err != nil {
		return 0, 0, err
	}
	minute, err = strconv.Atoi(s[3:])
	if err != nil {
		return 0, 0, err
	}
	return hour, minute, nil
}

// NextOccurrence computes the slot's first occurrence strictly after the
// given instant, evaluated in the slot's timezone. Daily slots fire every
// day; weekly slots only on their configured weekday. DST transitions are
// absorbed by constructing the wall-clock time in the slot's location.
func NextOccurrence(slot models.PostingSlot, after time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(slot.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(slot.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", slot.Timezone, err)
	}

	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if slot.DayOfWeek != nil {
		for int(candidate.Weekday()) != *slot.DayOfWeek {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}
	return candidate, nil
}

// ResolveNext picks the earliest occurrence after the given instant across
// the active slots, skipping instants the taken predicate reports as
// occupied. Ties between slots firing at the same instant go to the lower
// slot number; slots are expected pre-sorted by slot number ascending.
func ResolveNext(slots []models.PostingSlot, after time.Time, taken func(time.Time) bool) (time.Time, *models.PostingSlot, error) {
	active := make([]models.PostingSlot, 0, len(slots))
	for _, s := range slots {
		if s.IsActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return time.Time{}, nil, ErrNoActiveSlots
	}

	// Per-slot cursors advance independently as occupied occurrences are
	// skipped, so a fully booked daily slot does not shadow a free weekly
	// one.
	cursors := make([]time.Time, len(active))
	for i := range active {
		cursors[i] = after
	}

	for iter := 0; iter < resolveIterations; iter++ {
		best := -1
		var bestAt time.Time
		for i, slot := range active {
			at, err := NextOccurrence(slot, cursors[i])
			if err != nil {
				return time.Time{}, nil, err
			}
			if best == -1 || at.Before(bestAt) {
				best = i
				bestAt = at
			}
		}
		if taken == nil || !taken(bestAt) {
			slot := active[best]
			return bestAt, &slot, nil
		}
		cursors[best] = bestAt
	}
	return time.Time{}, nil, ErrConflict
}
