package domain

import "time"

// FusionStatus is the publisher's health as derived from consecutive
// upstream fetch failures (spec.md §4.4 step 1).
type FusionStatus string

const (
	FusionHealthy  FusionStatus = "healthy"
	FusionDegraded FusionStatus = "degraded"
)

// TripQuality tags a fused trip with the data-quality signal that
// propagates into Position.Quality (spec.md §4.4, §4.5 step 6).
type TripQuality string

const (
	QualityGood      TripQuality = "good"
	QualityUnmatched TripQuality = "unmatched"
	QualitySuspect   TripQuality = "suspect"
)

// FusedTrip pairs a timetable trip (by its arena index) with its current
// per-stop delay offsets. Offsets[i] applies to Stops[i].Arrival and
// Stops[i].Departure for the corresponding Trip.
type FusedTrip struct {
	TripIndex int
	Offsets   []int
	Quality   TripQuality
}

// FusedTripSet is the immutable snapshot C4 publishes via atomic swap.
// Consumers obtain one reference at the start of a query and never see a
// mix of two snapshots (spec.md §5).
type FusedTripSet struct {
	// ByTripIndex maps a timetable trip's arena index to its FusedTrip.
	// A trip absent from this map is implicitly unmatched with an all-zero
	// offset schedule.
	ByTripIndex map[int]*FusedTrip

	GeneratedAt time.Time
	Status      FusionStatus

	// Unmatched and Suspect are cycle metrics, not errors (spec.md §7).
	Unmatched int
	Suspect   int
}

// ZeroOffsets returns an all-zero offset array of length n, the implicit
// schedule for a timetable trip absent from ByTripIndex.
func ZeroOffsets(n int) []int {
	return make([]int, n)
}

// Lookup returns the FusedTrip for tripIndex, or a synthesized zero-offset
// entry if the trip was never matched.
func (s *FusedTripSet) Lookup(tripIndex, stopCount int) *FusedTrip {
	if s != nil {
		if ft, ok := s.ByTripIndex[tripIndex]; ok {
			return ft
		}
	}
	return &FusedTrip{TripIndex: tripIndex, Offsets: ZeroOffsets(stopCount), Quality: QualityUnmatched}
}

// Stale reports whether the snapshot is older than staleAfter, the
// quality-downgrade threshold from spec.md §4.5 step 6 (two refresh
// periods by convention).
func (s *FusedTripSet) Stale(now time.Time, staleAfter time.Duration) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.GeneratedAt) > staleAfter
}
