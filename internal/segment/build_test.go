package segment

import (
	"testing"

	"trainpulse/internal/domain"
	"trainpulse/internal/timetable"
)

func tripWithStops(stops ...domain.StopTime) *domain.Trip {
	return &domain.Trip{
		ID:    domain.TripID{Base: "101K", ServiceType: domain.ServiceWeekday},
		Stops: stops,
	}
}

func TestBuildCoversFirstToLastArrivalNoGaps(t *testing.T) {
	trip := tripWithStops(
		domain.StopTime{StationID: "S1", Arrival: 28800, Departure: 28860},
		domain.StopTime{StationID: "S2", Arrival: 28920, Departure: 28980},
		domain.StopTime{StationID: "S3", Arrival: 29100, Departure: 29100},
	)
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := Build("L1", store)

	segs := idx.TripSegments(0)
	if len(segs) != 4 { // dwell+motion for stop0->1, dwell+motion for stop1->2
		t.Fatalf("expected 4 segments, got %d", len(segs))
	}

	if segs[0].Start != trip.FirstArrival() {
		t.Fatalf("first segment should start at first arrival, got %d", segs[0].Start)
	}
	last := segs[len(segs)-1]
	if last.End != trip.LastArrival() {
		t.Fatalf("last segment should end at last arrival, got %d want %d", last.End, trip.LastArrival())
	}

	for i := 1; i < len(segs); i++ {
		if segs[i].Start != segs[i-1].End {
			t.Fatalf("gap or overlap between segment %d (end %d) and %d (start %d)", i-1, segs[i-1].End, i, segs[i].Start)
		}
	}
}

func TestTrainsAtReturnsExactlyOneSegmentPerTrip(t *testing.T) {
	trip := tripWithStops(
		domain.StopTime{StationID: "S1", Arrival: 28800, Departure: 28860},
		domain.StopTime{StationID: "S2", Arrival: 28920, Departure: 28980},
	)
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := Build("L1", store)

	segs := idx.TrainsAt(28830, nil)
	if len(segs) != 1 {
		t.Fatalf("expected exactly 1 active segment, got %d", len(segs))
	}
	if segs[0].Kind != domain.SegmentDwell || segs[0].StationID != "S1" {
		t.Fatalf("expected dwell at S1, got %+v", segs[0])
	}
}

func TestTrainsAtAtDepartureIsRunningNotStopped(t *testing.T) {
	trip := tripWithStops(
		domain.StopTime{StationID: "S1", Arrival: 28800, Departure: 28860},
		domain.StopTime{StationID: "S2", Arrival: 28920, Departure: 28980},
	)
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := Build("L1", store)

	segs := idx.TrainsAt(28860, nil)
	if len(segs) != 1 || segs[0].Kind != domain.SegmentMotion {
		t.Fatalf("expected exactly one motion segment at the departure instant, got %+v", segs)
	}
}

func TestZeroDurationMotionInvalid(t *testing.T) {
	trip := tripWithStops(
		domain.StopTime{StationID: "S1", Arrival: 28800, Departure: 28860},
		domain.StopTime{StationID: "S2", Arrival: 28860, Departure: 28860},
	)
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := Build("L1", store)

	segs := idx.TripSegments(0)
	var foundInvalid bool
	for _, s := range segs {
		if s.Kind == domain.SegmentMotion {
			if !s.Invalid {
				t.Fatalf("expected zero-duration motion to be tagged invalid: %+v", s)
			}
			foundInvalid = true
		}
	}
	if !foundInvalid {
		t.Fatal("expected a motion segment")
	}
}
