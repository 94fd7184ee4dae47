package domain

// ServiceType is the operating-calendar classification inferred from a
// trip ID suffix (or, in the Unknown case, from the absence of a match).
type ServiceType string

const (
	ServiceWeekday       ServiceType = "Weekday"
	ServiceSaturdayHoliday ServiceType = "SaturdayHoliday"
	ServiceUnknown       ServiceType = "Unknown"
)

// StopTime is one stop in a trip's stopping pattern: a station reference
// plus scheduled arrival/departure, both in effective seconds: seconds
// since midnight of the service day, with times before 04:00 counted past
// 24:00 (+86400).
type StopTime struct {
	StationID string
	Arrival   int
	Departure int
}

// TripID is a timetable trip's identity: a base ID as printed in the
// source JSON, its inferred service type, and its direction.
type TripID struct {
	Base        string
	ServiceType ServiceType
	Direction   Direction
}

// Trip is a fully parsed, validated timetable trip: an identity, the line
// it belongs to, and its ordered stop times. TerminalIDs preserves every
// listed terminal for a splitting trip; only TerminalIDs[0] is used for
// motion-segment generation (spec.md §4.2).
type Trip struct {
	ID          TripID
	LineID      string
	Stops       []StopTime
	TerminalIDs []string

	// NormalizedNumber is the normalized train number derived from ID.Base
	// by the same regex C4 applies to GTFS-RT trip_id values, computed once
	// at load so matching never re-derives it per fusion cycle.
	NormalizedNumber string
}

// FirstArrival and LastArrival bound the trip's scheduled service-day
// window, used by the segment-coverage invariant (spec.md §8, property 2).
func (t *Trip) FirstArrival() int {
	if len(t.Stops) == 0 {
		return 0
	}
	return t.Stops[0].Arrival
}

func (t *Trip) LastArrival() int {
	if len(t.Stops) == 0 {
		return 0
	}
	return t.Stops[len(t.Stops)-1].Arrival
}
