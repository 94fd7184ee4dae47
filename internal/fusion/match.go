// Package fusion is C4, the Real-time Fusion engine: a background
// refresher that consumes GTFS-RT TripUpdate feeds, matches them to
// timetable trips, applies delay offsets, and publishes an immutable
// FusedTripSet (spec.md §4.4).
package fusion

import (
	"log/slog"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"trainpulse/internal/domain"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
	"trainpulse/internal/trainid"
)

// ActiveStation resolves the station a trip is currently at or heading
// toward, used for the second tiebreak step (spec.md §4.4 step 3). It is
// supplied by the caller since C4 must not depend on a specific "now" —
// the match pass runs against whatever effective second the current
// fusion cycle started at.
type ActiveStation func(tripIndex int) (stationID string, ok bool)

// matched is one successfully resolved (tripIndex -> TripUpdate) pairing.
type matched struct {
	tripIndex int
	update    *gtfs.TripUpdate
}

// matchResult summarizes one fusion cycle's matching pass.
type matchResult struct {
	matches   []matched
	unmatched int // trip_id does not normalize, or no timetable trip on the active calendar has that number
	ambiguous int // normalized number resolved to >1 candidate trip, tiebreak failed
}

// matchUpdates resolves each TripUpdate's raw trip_id to a timetable
// trip index via the normalized train number, applying the three-step
// tiebreak from spec.md §4.4 step 3 when more than one timetable trip on
// the active calendar shares that number.
func matchUpdates(updates []*gtfs.TripUpdate, store *timetable.Store, allowed segment.ServiceTypeFilter, activeStation ActiveStation, logger *slog.Logger) matchResult {
	var res matchResult

	for _, u := range updates {
		rawID := u.GetTrip().GetTripId()
		number, ok := trainid.Normalize(rawID)
		if !ok {
			res.unmatched++
			continue
		}

		candidates := candidatesForCalendar(store, number, allowed)
		if len(candidates) == 0 {
			res.unmatched++
			continue
		}
		if len(candidates) == 1 {
			res.matches = append(res.matches, matched{tripIndex: candidates[0], update: u})
			continue
		}

		tripIdx, ok := tiebreak(candidates, store, u, activeStation)
		if !ok {
			res.ambiguous++
			logger.Debug("trip match ambiguous, dropped", "trip_id", rawID, "normalized", number, "candidates", len(candidates))
			continue
		}
		res.matches = append(res.matches, matched{tripIndex: tripIdx, update: u})
	}

	return res
}

func candidatesForCalendar(store *timetable.Store, number string, allowed segment.ServiceTypeFilter) []int {
	all := store.TripsByNormalizedNumber(number)
	if allowed == nil {
		return all
	}
	out := make([]int, 0, len(all))
	for _, idx := range all {
		if allowed(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// tiebreak implements spec.md §4.4 step 3's three-step disambiguation:
// prefer the candidate whose direction is determinable from the feed's
// direction_id, else the one whose currently-active segment's station
// matches the feed's first upcoming stop_id, else fail.
func tiebreak(candidates []int, store *timetable.Store, u *gtfs.TripUpdate, activeStation ActiveStation) (int, bool) {
	if dirID, ok := directionID(u); ok {
		var match int
		found := 0
		for _, idx := range candidates {
			trip := store.Trip(idx)
			if directionMatchesFeed(trip.ID.Direction, dirID) {
				match = idx
				found++
			}
		}
		if found == 1 {
			return match, true
		}
	}

	firstStop := firstUpcomingStopID(u)
	if firstStop != "" && activeStation != nil {
		var match int
		found := 0
		for _, idx := range candidates {
			if sid, ok := activeStation(idx); ok && sid == firstStop {
				match = idx
				found++
			}
		}
		if found == 1 {
			return match, true
		}
	}

	return 0, false
}

func directionID(u *gtfs.TripUpdate) (uint32, bool) {
	t := u.GetTrip()
	if t == nil || t.DirectionId == nil {
		return 0, false
	}
	return t.GetDirectionId(), true
}

// directionMatchesFeed maps the GTFS-RT binary direction_id (0/1) onto
// this network's direction enumeration: 0 is the "forward" sense
// (OuterLoop or Outbound), 1 is the "reverse" sense (InnerLoop or
// Inbound).
func directionMatchesFeed(d domain.Direction, directionID uint32) bool {
	switch directionID {
	case 0:
		return d == domain.DirectionOuterLoop || d == domain.DirectionOutbound
	case 1:
		return d == domain.DirectionInnerLoop || d == domain.DirectionInbound
	default:
		return false
	}
}

func firstUpcomingStopID(u *gtfs.TripUpdate) string {
	for _, stu := range u.GetStopTimeUpdate() {
		if id := stu.GetStopId(); id != "" {
			return id
		}
	}
	return ""
}
