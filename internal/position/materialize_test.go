package position

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
)

func testCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	shape := catalog.StitchShape([][]domain.LatLon{
		{
			{Lon: 139.70, Lat: 35.69},
			{Lon: 139.71, Lat: 35.70},
			{Lon: 139.72, Lat: 35.71},
		},
	})
	line := &domain.Line{
		ID:         "L1",
		StationIDs: []string{"A", "B", "C"},
		Shape:      shape,
		Anchors:    []int{0, 1, 2},
	}
	stations := map[string]*domain.Station{
		"A": {ID: "A", Coord: domain.LatLon{Lon: 139.70, Lat: 35.69}},
		"B": {ID: "B", Coord: domain.LatLon{Lon: 139.71, Lat: 35.70}},
		"C": {ID: "C", Coord: domain.LatLon{Lon: 139.72, Lat: 35.71}},
	}
	return catalog.NewStoreForTest(map[string]*domain.Line{"L1": line}, stations)
}

// testTripStore's stop times are effective seconds for a trip starting
// around 08:16 (29800 = 8h16m40s), well clear of the <4h wrap band, so
// each value round-trips through a real wall-clock time.Time exactly as
// EffectiveSeconds computes it (same convention as parseEffectiveSeconds).
func testTripStore() (*timetable.Store, *segment.Index) {
	trip := &domain.Trip{
		ID:               domain.TripID{Base: "1234K", ServiceType: domain.ServiceWeekday, Direction: domain.DirectionOutbound},
		LineID:           "L1",
		NormalizedNumber: "234K",
		Stops: []domain.StopTime{
			{StationID: "A", Arrival: 29800, Departure: 29800},
			{StationID: "B", Arrival: 29900, Departure: 29910},
			{StationID: "C", Arrival: 30000, Departure: 30000},
		},
	}
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := segment.Build("L1", store)
	return store, idx
}

// serviceDayTime builds a genuine wall-clock time.Time for the given
// effective-seconds value, by construction rather than by inverting
// ServiceDayStart — exercising the same midnight-relative arithmetic a
// real "HH:MM" timetable entry would produce through EffectiveSeconds.
func serviceDayTime(effSec int) time.Time {
	base := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(effSec) * time.Second)
}

func TestPositionsDwellAtFirstStop(t *testing.T) {
	stations := testCatalog(t)
	store, idx := testTripStore()
	fused := &domain.FusedTripSet{ByTripIndex: map[int]*domain.FusedTrip{}, GeneratedAt: time.Now()}

	at := serviceDayTime(29800)
	positions, err := Positions("L1", at, stations, store, idx, fused, time.Hour)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.Status != domain.StatusStopped {
		t.Errorf("status = %v, want stopped", p.Status)
	}
	if p.StationID != "A" {
		t.Errorf("station_id = %q, want A", p.StationID)
	}
}

func TestPositionsRunningBetweenStops(t *testing.T) {
	stations := testCatalog(t)
	store, idx := testTripStore()
	fused := &domain.FusedTripSet{ByTripIndex: map[int]*domain.FusedTrip{}, GeneratedAt: time.Now()}

	at := serviceDayTime(29850)
	positions, err := Positions("L1", at, stations, store, idx, fused, time.Hour)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.Status != domain.StatusRunning {
		t.Errorf("status = %v, want running", p.Status)
	}
	if p.Progress == nil {
		t.Fatal("progress = nil, want set while running")
	}
	if *p.Progress <= 0 || *p.Progress >= 1 {
		t.Errorf("progress = %v, want in (0,1)", *p.Progress)
	}
}

func TestPositionsUnknownLine(t *testing.T) {
	stations := testCatalog(t)
	store, idx := testTripStore()
	fused := &domain.FusedTripSet{ByTripIndex: map[int]*domain.FusedTrip{}}

	_, err := Positions("NOPE", time.Now(), stations, store, idx, fused, time.Hour)
	if err != ErrUnknownLine {
		t.Fatalf("err = %v, want ErrUnknownLine", err)
	}
}

func TestPositionsCarriesDelayOffset(t *testing.T) {
	stations := testCatalog(t)
	store, idx := testTripStore()
	fused := &domain.FusedTripSet{
		ByTripIndex: map[int]*domain.FusedTrip{
			0: {TripIndex: 0, Offsets: []int{0, 60, 60}, Quality: domain.QualityGood},
		},
		GeneratedAt: time.Now(),
	}

	// B's dwell is nominally [29900, 29910); the 60s offset shifts both its
	// arrival and departure, so the train is dwelling there at 29965.
	at := serviceDayTime(29965)
	positions, err := Positions("L1", at, stations, store, idx, fused, time.Hour)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.Status != domain.StatusStopped || p.StationID != "B" {
		t.Errorf("got status=%v station=%q, want stopped at B (delay shifted dwell)", p.Status, p.StationID)
	}
	if p.Delay != 60 {
		t.Errorf("delay = %d, want 60", p.Delay)
	}
}

// tripTimetableFile mirrors timetable.LoadLine's on-disk schema: a plain
// JSON array of trips, each with a base ID, direction, terminal station
// IDs, and HH:MM(:SS) stop times. Duplicated here rather than exported
// from the timetable package, since only the wire shape is needed.
type tripTimetableFile struct {
	BaseID      string `json:"base_id"`
	Direction   string `json:"direction"`
	TerminalIDs []string `json:"terminal_station_ids"`
	Stops       []struct {
		StationID string `json:"station_id"`
		Arrival   string `json:"arrival"`
		Departure string `json:"departure"`
	} `json:"stops"`
}

// TestPositionsRealTimetableWallClock is the integration path the unit
// tests above don't exercise: real "HH:MM" strings parsed by
// timetable.LoadLine, and a genuine time.Time built with time.Date
// instead of a hand-rolled ServiceDayStart-based fixture. It guards
// against EffectiveSeconds and parseEffectiveSeconds ever drifting back
// onto different epochs.
func TestPositionsRealTimetableWallClock(t *testing.T) {
	dir := t.TempDir()
	file := []tripTimetableFile{
		{
			BaseID:      "5678K",
			Direction:   "Outbound",
			TerminalIDs: []string{"C"},
			Stops: []struct {
				StationID string `json:"station_id"`
				Arrival   string `json:"arrival"`
				Departure string `json:"departure"`
			}{
				{StationID: "A", Arrival: "08:00", Departure: "08:00"},
				{StationID: "B", Arrival: "08:10", Departure: "08:10:10"},
				{StationID: "C", Arrival: "08:20", Departure: "08:20"},
			},
		},
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "L1.json"), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	stationExists := func(id string) bool {
		switch id {
		case "A", "B", "C":
			return true
		}
		return false
	}
	lineOrder := func(lineID string) []string { return []string{"A", "B", "C"} }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	trips, err := timetable.LoadLine(dir, "L1", stationExists, lineOrder, logger)
	if err != nil {
		t.Fatalf("LoadLine: %v", err)
	}
	if len(trips) != 1 {
		t.Fatalf("len(trips) = %d, want 1", len(trips))
	}

	store := timetable.NewStore(map[string][]*domain.Trip{"L1": trips})
	idx := segment.Build("L1", store)
	stations := testCatalog(t)
	fused := &domain.FusedTripSet{ByTripIndex: map[int]*domain.FusedTrip{}, GeneratedAt: time.Now()}

	// A genuine wall-clock instant, 08:15, between B's arrival (08:10)
	// and its delayed-free departure (08:10:10) plus motion to C: the
	// trip should be found running from B to C.
	at := time.Date(2026, 7, 30, 8, 15, 0, 0, time.UTC)
	positions, err := Positions("L1", at, stations, store, idx, fused, time.Hour)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.Status != domain.StatusRunning {
		t.Fatalf("status = %v, want running", p.Status)
	}
	if p.FromStationID != "B" || p.ToStationID != "C" {
		t.Errorf("from=%q to=%q, want B->C", p.FromStationID, p.ToStationID)
	}
}
