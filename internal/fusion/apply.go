package fusion

import (
	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"trainpulse/internal/domain"
	"trainpulse/internal/timetable"
)

// buildOffsets constructs a per-stop delay-offset array for a matched
// trip (spec.md §4.4 step 4): a StopTimeUpdate addressing a stop by
// sequence or by station ID writes its offset; unmentioned stops
// forward-fill from the previous mentioned stop; a later offset smaller
// than an earlier one is raised to the earlier value (delays do not
// recover across stops within one update); offsets outside
// [clampMin, clampMax] are clamped and the trip is tagged suspect.
func buildOffsets(trip *domain.Trip, u *gtfs.TripUpdate, clampMin, clampMax int) (*domain.FusedTrip, int) {
	n := len(trip.Stops)
	offsets := make([]int, n)
	mentioned := make([]bool, n)

	stationIndex := make(map[string]int, n)
	for i, st := range trip.Stops {
		stationIndex[st.StationID] = i
	}

	for _, stu := range u.GetStopTimeUpdate() {
		idx, ok := resolveStopIndex(stu, stationIndex, n)
		if !ok {
			continue
		}
		delay := stopDelay(stu)
		offsets[idx] = delay
		mentioned[idx] = true
	}

	// Forward fill.
	last := 0
	hasLast := false
	for i := 0; i < n; i++ {
		if mentioned[i] {
			last = offsets[i]
			hasLast = true
			continue
		}
		if hasLast {
			offsets[i] = last
		}
	}

	// Monotone non-decreasing clamp.
	running := offsets[0]
	for i := 1; i < n; i++ {
		if offsets[i] < running {
			offsets[i] = running
		}
		running = offsets[i]
	}

	quality := domain.QualityGood
	suspectCount := 0
	for i, off := range offsets {
		clamped := off
		if clamped < clampMin {
			clamped = clampMin
		}
		if clamped > clampMax {
			clamped = clampMax
		}
		if clamped != off {
			suspectCount++
			offsets[i] = clamped
		}
	}
	if suspectCount > 0 {
		quality = domain.QualitySuspect
	}

	return &domain.FusedTrip{Offsets: offsets, Quality: quality}, suspectCount
}

func resolveStopIndex(stu *gtfs.TripUpdate_StopTimeUpdate, stationIndex map[string]int, n int) (int, bool) {
	if seq := stu.GetStopSequence(); seq > 0 && int(seq)-1 < n {
		return int(seq) - 1, true
	}
	if id := stu.GetStopId(); id != "" {
		if idx, ok := stationIndex[id]; ok {
			return idx, true
		}
	}
	return 0, false
}

func stopDelay(stu *gtfs.TripUpdate_StopTimeUpdate) int {
	if dep := stu.GetDeparture(); dep != nil && dep.Delay != nil {
		return int(dep.GetDelay())
	}
	if arr := stu.GetArrival(); arr != nil && arr.Delay != nil {
		return int(arr.GetDelay())
	}
	return 0
}

// applyMatches turns a matching pass's results into the per-trip offset
// map for the next published FusedTripSet.
func applyMatches(res matchResult, store *timetable.Store, clampMin, clampMax int) map[int]*domain.FusedTrip {
	out := make(map[int]*domain.FusedTrip, len(res.matches))
	for _, m := range res.matches {
		trip := store.Trip(m.tripIndex)
		if trip == nil || len(trip.Stops) == 0 {
			continue
		}
		ft, _ := buildOffsets(trip, m.update, clampMin, clampMax)
		ft.TripIndex = m.tripIndex
		out[m.tripIndex] = ft
	}
	return out
}
