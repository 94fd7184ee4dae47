package position

import (
	"errors"
	"sort"
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
)

// ErrUnknownLine is returned when Positions is asked for a line ID absent
// from the static catalog (spec.md §7: LineUnknown).
var ErrUnknownLine = errors.New("position: unknown line")

// shiftedSegment is a trip's segment with its delay-adjusted interval
// (spec.md §4.5 step 4): Start/End are Offset-shifted, while Kind and the
// station references are copied unchanged from the timetable segment.
type shiftedSegment struct {
	domain.Segment
	Start, End int // shadow the embedded fields with their shifted values
}

// Positions computes the positions(line, at_time) operation (spec.md
// §4.5): every trip scheduled to be running on lineID at the instant
// `at`, adjusted by its fused delay offsets, projected onto the line's
// geometry.
func Positions(lineID string, at time.Time, stations *catalog.Store, store *timetable.Store, idx *segment.Index, fused *domain.FusedTripSet, staleAfter time.Duration) ([]domain.Position, error) {
	line, ok := stations.Line(lineID)
	if !ok {
		return nil, ErrUnknownLine
	}

	t := timetable.EffectiveSeconds(at)
	stale := fused.Stale(at, staleAfter)

	var out []domain.Position
	for _, tripIndex := range store.TripsForLine(lineID) {
		trip := store.Trip(tripIndex)
		if trip == nil || len(trip.Stops) == 0 {
			continue
		}
		if trip.FirstArrival() > t || trip.LastArrival() < t {
			// Outside the trip's scheduled window entirely (spec.md §4.5
			// step 2); a delay can shift a segment's boundary but never
			// extends a trip's reportable window past its last stop.
			continue
		}

		ft := fused.Lookup(tripIndex, len(trip.Stops))
		seg, ok := activeSegment(idx, tripIndex, trip, ft, t)
		if !ok {
			continue
		}

		pos := materialize(line, stations, trip, ft, seg, t, stale)
		out = append(out, pos)
	}

	// Stable order by normalized train number for client-side diffing
	// (spec.md §4.5 step 7).
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrainNumber < out[j].TrainNumber })

	return out, nil
}

// activeSegment finds the trip's segment whose delay-shifted interval
// covers t, falling back to the shifted segment nearest in time so a
// matched trip always reports exactly one position (spec.md §4.5 step 4:
// "re-search neighbouring segments of the same trip").
func activeSegment(idx *segment.Index, tripIndex int, trip *domain.Trip, ft *domain.FusedTrip, t int) (shiftedSegment, bool) {
	segs := idx.TripSegments(tripIndex)
	if len(segs) == 0 {
		return shiftedSegment{}, false
	}

	stationIndex := make(map[string]int, len(trip.Stops))
	for i, st := range trip.Stops {
		stationIndex[st.StationID] = i
	}
	offsetAt := func(stationID string) int {
		if i, ok := stationIndex[stationID]; ok && i < len(ft.Offsets) {
			return ft.Offsets[i]
		}
		return 0
	}

	var best shiftedSegment
	bestDist := -1
	found := false

	for _, s := range segs {
		var shifted shiftedSegment
		shifted.Segment = s
		switch s.Kind {
		case domain.SegmentDwell:
			off := offsetAt(s.StationID)
			shifted.Start = s.Start + off
			shifted.End = s.End + off
		case domain.SegmentMotion:
			shifted.Start = s.Start + offsetAt(s.FromStationID)
			shifted.End = s.End + offsetAt(s.ToStationID)
			if shifted.End < shifted.Start {
				shifted.End = shifted.Start
			}
		}

		if coversShifted(shifted, t) {
			return shifted, true
		}

		d := shiftedDistance(shifted, t)
		if !found || d < bestDist {
			best, bestDist, found = shifted, d, true
		}
	}

	return best, found
}

func coversShifted(s shiftedSegment, t int) bool {
	return (t >= s.Start && t < s.End) || (s.Start == s.End && t == s.Start)
}

func shiftedDistance(s shiftedSegment, t int) int {
	if t < s.Start {
		return s.Start - t
	}
	if t >= s.End {
		return t - s.End + 1
	}
	return 0
}

func materialize(line *domain.Line, stations *catalog.Store, trip *domain.Trip, ft *domain.FusedTrip, seg shiftedSegment, t int, stale bool) domain.Position {
	status := domain.StatusRunning
	var progress *float64
	var stationID, fromID, toID string

	if seg.Kind == domain.SegmentDwell {
		status = domain.StatusStopped
		stationID = seg.StationID
	} else {
		fromID = seg.FromStationID
		toID = seg.ToStationID
		p := segmentProgress(seg, t)
		progress = &p
	}

	delay := currentDelay(trip, ft, seg)

	quality := domain.PosQualityGood
	switch {
	case stale:
		quality = domain.PosQualityStale
	case ft.Quality == domain.QualityUnmatched:
		quality = domain.PosQualityRejected
	case ft.Quality == domain.QualitySuspect || seg.Invalid:
		quality = domain.PosQualitySuspect
	}

	if seg.Invalid {
		status = domain.StatusInvalid
		zero := 0.0
		progress = &zero
	}

	loc, ok := locate(line, stations, seg, progressOrZero(progress))
	if !ok {
		status = domain.StatusUnknown
	}

	return domain.Position{
		TrainNumber:   trip.NormalizedNumber,
		TripID:        trip.ID.Base,
		Line:          trip.LineID,
		Direction:     trip.ID.Direction,
		Status:        status,
		StationID:     stationID,
		FromStationID: fromID,
		ToStationID:   toID,
		Progress:      progress,
		Location:      loc,
		Delay:         delay,
		Quality:       quality,
	}
}

func progressOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func segmentProgress(seg shiftedSegment, t int) float64 {
	d := seg.End - seg.Start
	if d <= 0 {
		return 0
	}
	p := float64(t-seg.Start) / float64(d)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func currentDelay(trip *domain.Trip, ft *domain.FusedTrip, seg shiftedSegment) int {
	stationID := seg.StationID
	if stationID == "" {
		stationID = seg.ToStationID
	}
	for i, st := range trip.Stops {
		if st.StationID == stationID && i < len(ft.Offsets) {
			return ft.Offsets[i]
		}
	}
	return 0
}
