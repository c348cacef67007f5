package uksm

// SubtractRanges computes previous minus current: for each range A in
// previous, subtract the union of overlapping ranges in current, emitting
// the remainder. Refresh uses this to find address space that vanished
// between two samples.
func SubtractRanges(previous, current []MapRange) []MapRange {
	var out []MapRange
	for _, a := range previous {
		remaining := []MapRange{a}
		for _, c := range current {
			remaining = subtractOne(remaining, c)
		}
		out = append(out, remaining...)
	}
	return out
}

// subtractOne subtracts c from every range in rs, returning the resulting
// (possibly split) set of ranges.
func subtractOne(rs []MapRange, c MapRange) []MapRange {
	var out []MapRange
	for _, r := range rs {
		if c.End <= r.Start || c.Start >= r.End {
			out = append(out, r)
			continue
		}
		if c.Start > r.Start {
			out = append(out, MapRange{Start: r.Start, End: c.Start})
		}
		if c.End < r.End {
			out = append(out, MapRange{Start: c.End, End: r.End})
		}
	}
	return out
}
