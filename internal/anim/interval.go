package anim

import (
	"fmt"
	"math"
)

// TimePoint is a point in animation time measured in ticks.
//
// Times are integers so that interval arithmetic never suffers from rounding.
// One second of animation is TicksPerSecond ticks.
type TimePoint int

// TicksPerSecond is the number of animation ticks per second of real time.
const TicksPerSecond = 4800

const (
	// NegativeInfinity marks an interval that is open towards the past.
	NegativeInfinity TimePoint = math.MinInt
	// PositiveInfinity marks an interval that is open towards the future.
	PositiveInfinity TimePoint = math.MaxInt
)

// TimeToSeconds converts ticks to seconds.
func TimeToSeconds(t TimePoint) float64 {
	return float64(t) / TicksPerSecond
}

// TimeFromSeconds converts seconds to the nearest tick.
func TimeFromSeconds(seconds float64) TimePoint {
	return TimePoint(math.Round(seconds * TicksPerSecond))
}

// Interval is a closed interval [Start, End] of animation time.
//
// The zero value is NOT the empty interval; use Empty() to obtain one.
// An interval is empty when End is NegativeInfinity or Start > End.
type Interval struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// Infinite returns the interval covering all of animation time.
func Infinite() Interval {
	return Interval{Start: NegativeInfinity, End: PositiveInfinity}
}

// Empty returns the canonical empty interval.
func Empty() Interval {
	return Interval{Start: NegativeInfinity, End: NegativeInfinity}
}

// Instant returns the interval containing exactly one time point.
func Instant(t TimePoint) Interval {
	return Interval{Start: t, End: t}
}

// Span returns the closed interval [start, end].
func Span(start, end TimePoint) Interval {
	return Interval{Start: start, End: end}
}

// IsEmpty reports whether the interval contains no time point.
func (iv Interval) IsEmpty() bool {
	return iv.End == NegativeInfinity || iv.Start > iv.End
}

// IsInfinite reports whether the interval is unbounded on both ends.
func (iv Interval) IsInfinite() bool {
	return iv.Start == NegativeInfinity && iv.End == PositiveInfinity
}

// Contains reports whether t lies inside the interval.
func (iv Interval) Contains(t TimePoint) bool {
	return !iv.IsEmpty() && iv.Start <= t && t <= iv.End
}

// ContainsInterval reports whether other lies completely inside iv.
// The empty interval is contained in every interval.
func (iv Interval) ContainsInterval(other Interval) bool {
	if other.IsEmpty() {
		return true
	}
	return !iv.IsEmpty() && iv.Start <= other.Start && other.End <= iv.End
}

// Intersect returns the intersection of the two intervals.
// Disjoint intervals intersect to Empty(); this is not an error.
func (iv Interval) Intersect(other Interval) Interval {
	if iv.IsEmpty() || other.IsEmpty() || iv.End < other.Start || iv.Start > other.End {
		return Empty()
	}
	return Interval{Start: max(iv.Start, other.Start), End: min(iv.End, other.End)}
}

// Overlaps reports whether the two intervals share at least one time point.
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.Intersect(other).IsEmpty()
}

// Duration returns End - Start for bounded, non-empty intervals and 0 otherwise.
func (iv Interval) Duration() TimePoint {
	if iv.IsEmpty() || iv.Start == NegativeInfinity || iv.End == PositiveInfinity {
		return 0
	}
	return iv.End - iv.Start
}

// String formats the interval as "[start, end]", using -inf/+inf for open ends.
func (iv Interval) String() string {
	if iv.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%s, %s]", formatTime(iv.Start), formatTime(iv.End))
}

func formatTime(t TimePoint) string {
	switch t {
	case NegativeInfinity:
		return "-inf"
	case PositiveInfinity:
		return "+inf"
	default:
		return fmt.Sprintf("%d", t)
	}
}

// Without returns the larger part of iv that does not overlap other.
// A closed interval cannot have a hole, so when other splits iv in two
// only one side survives.
func (iv Interval) Without(other Interval) Interval {
	if !iv.Overlaps(other) {
		return iv
	}
	if other.ContainsInterval(iv) {
		return Empty()
	}
	var before, after Interval = Empty(), Empty()
	if other.Start > iv.Start {
		before = Span(iv.Start, other.Start-1)
	}
	if other.End < iv.End {
		after = Span(other.End+1, iv.End)
	}
	switch {
	case before.IsEmpty():
		return after
	case after.IsEmpty():
		return before
	case after.Start == NegativeInfinity || after.End == PositiveInfinity:
		return after
	case before.Start == NegativeInfinity:
		return before
	case after.Duration() > before.Duration():
		return after
	default:
		return before
	}
}
