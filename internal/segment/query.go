package segment

import "trainpulse/internal/domain"

// ServiceTypeFilter reports whether trips of the given service type are
// running on the operating calendar in effect at the query instant
// (spec.md §4.3: Unknown is always excluded).
type ServiceTypeFilter func(tripIndex int) bool

// TrainsAt returns, for each trip with a segment active at effective
// second t, exactly one Segment — the unique one containing t (spec.md
// §4.3 query contract). allowed filters by operating calendar.
func (idx *Index) TrainsAt(t int, allowed ServiceTypeFilter) []domain.Segment {
	if len(idx.buckets) == 0 {
		return nil
	}

	b := (t - idx.bucketStart) / bucketWidth
	if b < 0 || b >= len(idx.buckets) {
		return nil
	}
	rng := idx.buckets[b]

	seen := make(map[int]struct{})
	var out []domain.Segment

	for i := rng.lo; i < rng.hi && i < len(idx.segments); i++ {
		s := idx.segments[i]
		if !covers(s, t) {
			continue
		}
		if _, dup := seen[s.TripIndex]; dup {
			continue
		}
		if allowed != nil && !allowed(s.TripIndex) {
			continue
		}
		seen[s.TripIndex] = struct{}{}
		out = append(out, s)
	}

	return out
}

// NeighborSegment re-searches a trip's own segments for the one covering
// shifted instant t, used when a delay offset moves a segment's interval
// so it no longer covers the original query instant (spec.md §4.5 step 4:
// "re-search neighbouring segments of the same trip so the trip still
// reports exactly one position"). Returns (segment, true) on a match.
func (idx *Index) NeighborSegment(tripIndex int, t int) (domain.Segment, bool) {
	segs := idx.byTrip[tripIndex]
	for _, s := range segs {
		if covers(s, t) {
			return s, true
		}
	}
	// No segment covers t even after re-search: fall back to the nearest
	// segment in time, clamped, so the trip still reports exactly one
	// position rather than vanishing for one query cycle.
	if len(segs) == 0 {
		return domain.Segment{}, false
	}
	best := segs[0]
	bestDist := distanceTo(best, t)
	for _, s := range segs[1:] {
		if d := distanceTo(s, t); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, true
}

func covers(s domain.Segment, t int) bool {
	return (t >= s.Start && t < s.End) || (s.Start == s.End && t == s.Start)
}

func distanceTo(s domain.Segment, t int) int {
	if t < s.Start {
		return s.Start - t
	}
	if t >= s.End {
		return t - s.End + 1
	}
	return 0
}

// TripSegments returns every segment belonging to tripIndex, in
// chronological order.
func (idx *Index) TripSegments(tripIndex int) []domain.Segment {
	return idx.byTrip[tripIndex]
}
