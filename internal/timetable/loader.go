// Package timetable is C2, the Timetable Store: parses each per-line trip
// JSON corpus into validated domain.Trip records with effective-seconds
// stop times (spec.md §4.2).
package timetable

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trainpulse/internal/domain"
	"trainpulse/internal/trainid"
)

// serviceTypeSuffixes is the fixed suffix->ServiceType table (spec.md
// §4.2). A trip whose base ID ends in none of these keys is tagged
// Unknown and logged once (spec.md §9: Unknown is first-class, not an
// error).
var serviceTypeSuffixes = map[byte]domain.ServiceType{
	'K': domain.ServiceWeekday,
	'H': domain.ServiceSaturdayHoliday,
	'B': domain.ServiceSaturdayHoliday,
}

type stopTimeFile struct {
	StationID string `json:"station_id"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
}

type tripFile struct {
	BaseID      string         `json:"base_id"`
	Direction   string         `json:"direction"`
	TerminalIDs []string       `json:"terminal_station_ids"`
	Stops       []stopTimeFile `json:"stops"`
}

// StationExists answers whether a station ID is known to C1; injected by
// the caller rather than importing the catalog package directly, so C2
// depends only on the shape of the check, not on catalog's store type.
type StationExists func(id string) bool

// LineStationOrder returns the ordered station-ID sequence for a line, or
// nil if the line is unknown. Used to validate the no-teleportation
// invariant (spec.md §3).
type LineStationOrder func(lineID string) []string

// LoadLine parses a single line's timetable JSON file, validates every
// trip, and returns the trips that survive validation. Malformed trips
// are dropped with a single logged diagnostic each (TripMalformed,
// spec.md §7), never aborting the whole load.
func LoadLine(dir, lineID string, stationExists StationExists, lineOrder LineStationOrder, logger *slog.Logger) ([]*domain.Trip, error) {
	path := filepath.Join(dir, lineID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("DataLoadError: timetable %s: %w", lineID, err)
	}

	var tripFiles []tripFile
	if err := json.Unmarshal(data, &tripFiles); err != nil {
		return nil, fmt.Errorf("DataLoadError: timetable %s: %w", lineID, err)
	}

	order := lineOrder(lineID)
	orderIndex := make(map[string]int, len(order))
	for i, sid := range order {
		orderIndex[sid] = i
	}

	unknownSuffixLogged := false
	trips := make([]*domain.Trip, 0, len(tripFiles))

	for _, tf := range tripFiles {
		trip, err := buildTrip(tf, lineID, stationExists, orderIndex)
		if err != nil {
			logger.Warn("trip rejected", "line_id", lineID, "base_id", tf.BaseID, "error", err)
			continue
		}
		if trip.ID.ServiceType == domain.ServiceUnknown && !unknownSuffixLogged {
			logger.Warn("trip has unrecognized service-type suffix, tagged Unknown", "line_id", lineID, "base_id", tf.BaseID)
			unknownSuffixLogged = true
		}
		trips = append(trips, trip)
	}

	logger.Info("timetable line loaded", "line_id", lineID, "trips", len(trips), "rejected", len(tripFiles)-len(trips))
	return trips, nil
}

func buildTrip(tf tripFile, lineID string, stationExists StationExists, orderIndex map[string]int) (*domain.Trip, error) {
	if len(tf.Stops) < 2 {
		return nil, fmt.Errorf("fewer than 2 stops")
	}

	stops := make([]domain.StopTime, 0, len(tf.Stops))
	lastDeparture := -1
	lastOrder := -1

	for i, sf := range tf.Stops {
		if !stationExists(sf.StationID) {
			return nil, fmt.Errorf("unknown station %s", sf.StationID)
		}
		idx, ok := orderIndex[sf.StationID]
		if !ok {
			return nil, fmt.Errorf("station %s not on line %s", sf.StationID, lineID)
		}
		if i > 0 {
			if idx <= lastOrder {
				return nil, fmt.Errorf("non-monotonic station order at stop %d (%s)", i, sf.StationID)
			}
		}
		lastOrder = idx

		arr, err := parseEffectiveSeconds(sf.Arrival)
		if err != nil {
			return nil, fmt.Errorf("stop %d arrival: %w", i, err)
		}
		dep, err := parseEffectiveSeconds(sf.Departure)
		if err != nil {
			return nil, fmt.Errorf("stop %d departure: %w", i, err)
		}
		if dep < arr {
			return nil, fmt.Errorf("stop %d departure before arrival", i)
		}
		if arr < lastDeparture {
			return nil, fmt.Errorf("stop %d non-monotonic time", i)
		}
		lastDeparture = dep

		stops = append(stops, domain.StopTime{StationID: sf.StationID, Arrival: arr, Departure: dep})
	}

	serviceType := domain.ServiceUnknown
	if len(tf.BaseID) > 0 {
		if st, ok := serviceTypeSuffixes[tf.BaseID[len(tf.BaseID)-1]]; ok {
			serviceType = st
		}
	}

	direction := domain.Direction(tf.Direction)
	switch direction {
	case domain.DirectionOuterLoop, domain.DirectionInnerLoop, domain.DirectionInbound, domain.DirectionOutbound:
	default:
		direction = domain.DirectionUnknown
	}

	norm, _ := trainid.Normalize(tf.BaseID)

	terminals := tf.TerminalIDs
	if len(terminals) == 0 {
		terminals = []string{tf.Stops[len(tf.Stops)-1].StationID}
	}

	return &domain.Trip{
		ID: domain.TripID{
			Base:        tf.BaseID,
			ServiceType: serviceType,
			Direction:   direction,
		},
		LineID:           lineID,
		Stops:            stops,
		TerminalIDs:      terminals,
		NormalizedNumber: norm,
	}, nil
}

// parseEffectiveSeconds converts an "HH:MM" or "HH:MM:SS" timetable
// timestamp into effective seconds since midnight (spec.md §3, §4.2,
// §8 S1: "arrival 28800 (08:00)"). Hours written >=24 ("25:30") are
// already past midnight in the service day and pass straight through;
// hours parsed as <4 denote a wall-clock time after midnight that still
// belongs to the previous service day, and get +86400 to keep the
// sequence monotonic with the >=24 hours written earlier in the same
// trip.
func parseEffectiveSeconds(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, fmt.Errorf("malformed second in %q", s)
		}
	}

	total := hour*3600 + minute*60 + sec
	if hour < 4 {
		total += 86400
	}
	return total, nil
}

// ServiceDayStart returns the 04:00 local boundary of the service day
// covering t (spec.md glossary: "Service day"). Used to determine which
// calendar date a near-midnight instant's service day belongs to; it is
// not the epoch EffectiveSeconds counts from (that's literal midnight,
// matching parseEffectiveSeconds).
func ServiceDayStart(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), 4, 0, 0, 0, t.Location())
	if t.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// EffectiveSeconds converts a wall-clock instant to effective seconds
// using the same convention as parseEffectiveSeconds: literal seconds
// since midnight, with +86400 added when the wall-clock hour is <4 so an
// early-morning instant sorts after the previous evening's >=24:00
// timetable entries within the same service day.
func EffectiveSeconds(t time.Time) int {
	hour, minute, second := t.Clock()
	total := hour*3600 + minute*60 + second
	if hour < 4 {
		total += 86400
	}
	return total
}
