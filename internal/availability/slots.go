// Package availability computes bookable slot starts. Pure interval math:
// callers load the busy intervals and pass a single reference instant, so
// the result is deterministic and trivially testable.
package availability

import "time"

// Busy is a half-open [Start, End) interval a candidate slot must not
// overlap.
type Busy struct {
	Start time.Time
	End   time.Time
}

type Query struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Duration    time.Duration
	Step        time.Duration // grid spacing between candidate starts
	// EarliestStart drops slots beginning before it. Callers set it to
	// now plus the minimum-notice requirement.
	EarliestStart time.Time
}

// Slots returns the start times in [WindowStart, WindowEnd) where an
// appointment of the query's duration fits without overlapping any busy
// interval. All instants must share one location.
func Slots(q Query, busy []Busy) []time.Time {
	if q.Duration <= 0 || q.Step <= 0 {
		return nil
	}
	if !q.WindowEnd.After(q.WindowStart) || q.WindowStart.Add(q.Duration).After(q.WindowEnd) {
		return nil
	}

	var out []time.Time
	for t := q.WindowStart; !t.Add(q.Duration).After(q.WindowEnd); t = t.Add(q.Step) {
		if t.Before(q.EarliestStart) {
			continue
		}
		if overlapsAny(t, t.Add(q.Duration), busy) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Busy) bool {
	for _, b := range busy {
		// [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
