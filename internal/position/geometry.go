// Package position is C5, Position Materialization: combines C1's static
// geometry, C2/C3's timetable and segment index, and C4's fused delay
// offsets into the externally visible positions(line, at_time) result
// (spec.md §4.5).
package position

import (
	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
)

// locate projects a (possibly shifted) segment onto the line's stitched
// geometry, returning the train's lat/lon and heading (spec.md §4.5 step
// 5). A dwell segment sits exactly at its station; a motion segment is
// placed by arc-length interpolation between the from/to station anchors,
// proportional to elapsed time.
func locate(line *domain.Line, stations *catalog.Store, seg shiftedSegment, progress float64) (domain.Location, bool) {
	switch seg.Kind {
	case domain.SegmentDwell:
		st, ok := stations.Station(seg.StationID)
		if !ok {
			return domain.Location{}, false
		}
		bearing := 0.0
		if line.Shape.Valid() {
			if anchor, ok := anchorFor(line, seg.StationID); ok {
				bearing = bearingNear(line, anchor)
			}
		}
		return domain.Location{Lat: st.Coord.Lat, Lon: st.Coord.Lon, Bearing: bearing}, true

	case domain.SegmentMotion:
		fromAnchor, fromOK := anchorFor(line, seg.FromStationID)
		toAnchor, toOK := anchorFor(line, seg.ToStationID)
		if !fromOK || !toOK || !line.Shape.Valid() {
			// No usable geometry: report the destination station's
			// coordinate rather than nothing (spec.md §4.5 step 5
			// degraded case).
			st, ok := stations.Station(seg.ToStationID)
			if !ok {
				return domain.Location{}, false
			}
			return domain.Location{Lat: st.Coord.Lat, Lon: st.Coord.Lon}, true
		}

		fromDist := line.Shape.CumDist[fromAnchor]
		toDist := line.Shape.CumDist[toAnchor]
		d := fromDist + progress*(toDist-fromDist)
		pt, bearing := catalog.InterpolateAlong(line.Shape, d)
		return domain.Location{Lat: pt.Lat, Lon: pt.Lon, Bearing: bearing}, true
	}
	return domain.Location{}, false
}

func anchorFor(line *domain.Line, stationID string) (int, bool) {
	for i, id := range line.StationIDs {
		if id == stationID && i < len(line.Anchors) {
			return line.Anchors[i], true
		}
	}
	return 0, false
}

func bearingNear(line *domain.Line, anchor int) float64 {
	if anchor+1 < len(line.Shape.Points) {
		return catalog.Bearing(line.Shape.Points[anchor], line.Shape.Points[anchor+1])
	}
	if anchor > 0 {
		return catalog.Bearing(line.Shape.Points[anchor-1], line.Shape.Points[anchor])
	}
	return 0
}
