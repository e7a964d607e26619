package anim

import "slices"

// IntervalUnion is a set of non-overlapping intervals.
//
// Upstream nodes use it to describe which parts of the timeline were affected
// by a change; downstream caches keep everything outside of it.
type IntervalUnion struct {
	intervals []Interval
}

// NewIntervalUnion creates a union from the given intervals.
func NewIntervalUnion(ivs ...Interval) *IntervalUnion {
	u := &IntervalUnion{}
	for _, iv := range ivs {
		u.Add(iv)
	}
	return u
}

// Add inserts an interval, trimming the parts already covered by the union.
// Intervals fully covered by iv are replaced by it.
func (u *IntervalUnion) Add(iv Interval) {
	if iv.IsEmpty() {
		return
	}
	for _, cur := range u.intervals {
		if cur.ContainsInterval(iv) {
			return
		}
	}

	kept := u.intervals[:0]
	for _, cur := range u.intervals {
		if iv.Start <= cur.Start && iv.End >= cur.End {
			continue // swallowed by iv
		}
		if iv.Start >= cur.Start && iv.Start <= cur.End {
			iv.Start = cur.End + 1
		}
		if iv.End >= cur.Start && iv.End <= cur.End {
			iv.End = cur.Start - 1
		}
		kept = append(kept, cur)
	}
	u.intervals = kept

	if iv.Start > iv.End {
		return
	}
	u.intervals = append(u.intervals, iv)
	slices.SortFunc(u.intervals, func(a, b Interval) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
}

// Contains reports whether t lies in any interval of the union.
func (u *IntervalUnion) Contains(t TimePoint) bool {
	for _, iv := range u.intervals {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// Intervals returns the member intervals ordered by start time.
func (u *IntervalUnion) Intervals() []Interval {
	return slices.Clone(u.intervals)
}

// Len returns the number of member intervals.
func (u *IntervalUnion) Len() int {
	return len(u.intervals)
}

// IsEmpty reports whether the union covers no time at all.
func (u *IntervalUnion) IsEmpty() bool {
	return len(u.intervals) == 0
}

// Bounds returns the smallest interval covering the whole union.
func (u *IntervalUnion) Bounds() Interval {
	if len(u.intervals) == 0 {
		return Empty()
	}
	return Interval{Start: u.intervals[0].Start, End: u.intervals[len(u.intervals)-1].End}
}
