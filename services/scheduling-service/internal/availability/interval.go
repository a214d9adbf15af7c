package availability

import (
	"sort"
	"time"
)

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Overlaps: [a,b) and [c,d) overlap iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Merge returns the union of in as sorted, disjoint intervals. Touching
// intervals are joined and empty ones dropped. The input is not modified.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start.Equal(sorted[b].Start) {
			return sorted[a].End.Before(sorted[b].End)
		}
		return sorted[a].Start.Before(sorted[b].Start)
	})

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every cut interval from base and returns what is left,
// sorted and disjoint.
func Subtract(base, cut []Interval) []Interval {
	base = Merge(base)
	cut = Merge(cut)

	var out []Interval
	j := 0
	for _, b := range base {
		cur := b.Start
		for j < len(cut) && !cut[j].End.After(cur) {
			j++
		}
		for k := j; k < len(cut) && cut[k].Start.Before(b.End); k++ {
			if cut[k].Start.After(cur) {
				out = append(out, Interval{Start: cur, End: cut[k].Start})
			}
			if cut[k].End.After(cur) {
				cur = cut[k].End
			}
		}
		if cur.Before(b.End) {
			out = append(out, Interval{Start: cur, End: b.End})
		}
	}
	return out
}

// Clip intersects each interval with bounds, dropping the ones left empty.
func Clip(in []Interval, bounds Interval) []Interval {
	var out []Interval
	for _, iv := range in {
		if iv.Start.Before(bounds.Start) {
			iv.Start = bounds.Start
		}
		if iv.End.After(bounds.End) {
			iv.End = bounds.End
		}
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	return out
}
