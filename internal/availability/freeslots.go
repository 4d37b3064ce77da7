// Package availability computes free time for one user and mutual free time
// for a pair of users.
package availability

import (
	"slices"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

// FindFreeSlots returns the gaps between busy intervals inside
// [windowStart, windowEnd] that last at least minMinutes. Busy intervals may
// overlap, arrive in any order or extend past the window; they are clipped to
// the window first. The busy slice is not modified. Empty gaps, such as
// between back-to-back meetings, are never returned, even when minMinutes is
// zero or negative.
func FindFreeSlots(busy []model.Interval, windowStart, windowEnd time.Time, minMinutes int) []model.Interval {
	if windowEnd.Before(windowStart) {
		return nil
	}
	minDuration := time.Duration(minMinutes) * time.Minute

	clipped := make([]model.Interval, 0, len(busy))
	for _, b := range busy {
		if c, ok := clip(b, windowStart, windowEnd); ok {
			clipped = append(clipped, c)
		}
	}
	slices.SortFunc(clipped, func(a, b model.Interval) int {
		return a.Start.Compare(b.Start)
	})

	var free []model.Interval
	cursor := windowStart
	for _, b := range clipped {
		if b.Start.Sub(cursor) >= minDuration && b.Start.After(cursor) {
			free = append(free, model.Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if windowEnd.Sub(cursor) >= minDuration && windowEnd.After(cursor) {
		free = append(free, model.Interval{Start: cursor, End: windowEnd})
	}
	return free
}

// FindMutualFreeSlots returns every pairwise intersection of a and b lasting at
// least minMinutes. Intersections are listed as found and are not merged, so
// overlapping inputs can yield overlapping results; see Merge. Touching
// slots do not intersect, whatever minMinutes is.
func FindMutualFreeSlots(a, b []model.Interval, minMinutes int) []model.Interval {
	minDuration := time.Duration(minMinutes) * time.Minute

	var mutual []model.Interval
	for _, x := range a {
		for _, y := range b {
			start := maxTime(x.Start, y.Start)
			end := minTime(x.End, y.End)
			if end.After(start) && end.Sub(start) >= minDuration {
				mutual = append(mutual, model.Interval{Start: start, End: end})
			}
		}
	}
	return mutual
}

// Merge returns intervals sorted by start with overlapping and adjacent
// intervals coalesced.
func Merge(intervals []model.Interval) []model.Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b model.Interval) int {
		return a.Start.Compare(b.Start)
	})

	merged := []model.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start.After(last.End) {
			merged = append(merged, iv)
			continue
		}
		last.End = maxTime(last.End, iv.End)
	}
	return merged
}

// Slots wraps intervals as availability slots.
func Slots(intervals []model.Interval) []model.AvailabilitySlot {
	slots := make([]model.AvailabilitySlot, len(intervals))
	for i, iv := range intervals {
		slots[i] = model.AvailabilitySlot{Interval: iv}
	}
	return slots
}

func clip(iv model.Interval, start, end time.Time) (model.Interval, bool) {
	s := maxTime(iv.Start, start)
	e := minTime(iv.End, end)
	if !e.After(s) {
		return model.Interval{}, false
	}
	return model.Interval{Start: s, End: e}, true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
