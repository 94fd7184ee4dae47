// Package segment is C3, the Segment Index: derives a flat, time-sorted,
// bucket-indexed array of motion/dwell segments from C2's trip arena
// (spec.md §4.3).
package segment

import (
	"sort"

	"trainpulse/internal/domain"
	"trainpulse/internal/timetable"
)

// bucketWidth is the coarse time-bucket size in seconds used to bound the
// linear scan in TrainsAt (spec.md §9: the source's unsorted linear-scan
// index is replaced with a bucketed one so query cost is bounded
// independently of network size).
const bucketWidth = 300

// Index is C3 for a single line: every segment generated from that
// line's trips, sorted by Start, plus the bucket lookup table.
type Index struct {
	lineID   string
	segments []domain.Segment

	bucketStart int // effective-seconds floor of bucket 0
	buckets     []bucketRange

	// byTrip holds each trip's own segments in chronological order
	// (unaffected by the global Start-sort), so C5 can re-search a
	// trip's neighboring segments after shifting by a delay offset
	// without re-scanning the whole line (spec.md §4.5 step 4).
	byTrip map[int][]domain.Segment
}

type bucketRange struct {
	lo, hi int // [lo, hi) into segments, sorted by Start
}

// Build derives the segment index for every trip on a line (spec.md
// §4.3: one dwell per stop but the last, one motion per adjacent pair;
// concatenated, sorted, and bucketed).
func Build(lineID string, store *timetable.Store) *Index {
	var segs []domain.Segment
	byTrip := make(map[int][]domain.Segment)

	for _, tripIdx := range store.TripsForLine(lineID) {
		trip := store.Trip(tripIdx)
		stops := trip.Stops
		for i := 0; i+1 < len(stops); i++ {
			dwell := domain.Segment{
				TripIndex: tripIdx,
				Start:     stops[i].Arrival,
				End:       stops[i].Departure,
				Kind:      domain.SegmentDwell,
				StationID: stops[i].StationID,
			}

			motion := domain.Segment{
				TripIndex:     tripIdx,
				Start:         stops[i].Departure,
				End:           stops[i+1].Arrival,
				Kind:          domain.SegmentMotion,
				FromStationID: stops[i].StationID,
				ToStationID:   stops[i+1].StationID,
			}
			if motion.End <= motion.Start {
				motion.Invalid = true
			}

			segs = append(segs, dwell, motion)
			byTrip[tripIdx] = append(byTrip[tripIdx], dwell, motion)
		}
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	idx := &Index{lineID: lineID, segments: segs, byTrip: byTrip}
	idx.buildBuckets()
	return idx
}

func (idx *Index) buildBuckets() {
	if len(idx.segments) == 0 {
		return
	}

	minStart := idx.segments[0].Start
	maxEnd := idx.segments[len(idx.segments)-1].Start
	maxDuration := 0
	for _, s := range idx.segments {
		if d := s.End - s.Start; d > maxDuration {
			maxDuration = d
		}
		if s.End > maxEnd {
			maxEnd = s.End
		}
	}

	idx.bucketStart = floorDiv(minStart, bucketWidth) * bucketWidth
	numBuckets := (maxEnd-idx.bucketStart)/bucketWidth + 1
	idx.buckets = make([]bucketRange, numBuckets)

	starts := make([]int, len(idx.segments))
	for i, s := range idx.segments {
		starts[i] = s.Start
	}

	for b := 0; b < numBuckets; b++ {
		bucketLo := idx.bucketStart + b*bucketWidth
		bucketHi := bucketLo + bucketWidth

		lo := sort.SearchInts(starts, bucketLo-maxDuration)
		hi := sort.SearchInts(starts, bucketHi)
		idx.buckets[b] = bucketRange{lo: lo, hi: hi}
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
