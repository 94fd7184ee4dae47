package catalog

import (
	"math"

	"trainpulse/internal/domain"
)

// earthRadiusM is the Earth radius used by Haversine for arc-length
// calculations (grounded on
// FabianUB-minibarcelona3d/.../schedule/geometry.go's Haversine).
const earthRadiusM = 6371000.0

// StitchShape joins an ordered sequence of sub-line coordinate arrays into
// one continuous polyline (spec.md §4.1). A sub-line may be stored in
// either direction; stitching tracks the last endpoint seen and reverses
// the next sub-line if its last point is closer to that endpoint than its
// first point is. A junction point shared by two consecutive sub-lines is
// kept once.
func StitchShape(subLines [][]domain.LatLon) *domain.Polyline {
	var points []domain.LatLon

	for _, sub := range subLines {
		if len(sub) == 0 {
			continue
		}
		if len(points) == 0 {
			points = append(points, sub...)
			continue
		}

		last := points[len(points)-1]
		distToFirst := sqDist(last, sub[0])
		distToLast := sqDist(last, sub[len(sub)-1])

		if distToLast < distToFirst {
			for i := len(sub) - 1; i >= 0; i-- {
				if i == len(sub)-1 && sub[i] == last {
					continue
				}
				points = append(points, sub[i])
			}
		} else {
			if sub[0] == last {
				sub = sub[1:]
			}
			points = append(points, sub...)
		}
	}

	if len(points) == 0 {
		return &domain.Polyline{}
	}

	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + Haversine(points[i-1], points[i])
	}

	return &domain.Polyline{Points: points, CumDist: cum}
}

func sqDist(a, b domain.LatLon) float64 {
	dx := a.Lon - b.Lon
	dy := a.Lat - b.Lat
	return dx*dx + dy*dy
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b domain.LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// NearestVertex returns the index of the polyline vertex nearest to coord
// by squared Euclidean distance (spec.md §4.1 station-to-shape mapping;
// the anchor precompute uses plain squared distance, same as the
// stitching step, since vertices are close enough together that the
// lon/lat-degree approximation does not change the argmin).
func NearestVertex(p *domain.Polyline, coord domain.LatLon) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, v := range p.Points {
		d := sqDist(v, coord)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// InterpolateAlong walks the cumulative-distance array to find the
// bracketing vertex pair for distance d along the polyline, then
// linear-interpolates within that pair (spec.md §4.5 step 5: arc-length
// interpolation generalized from FabianUB-minibarcelona3d's two-point
// InterpolateAlongSegment to an arbitrary stitched polyline).
func InterpolateAlong(p *domain.Polyline, d float64) (domain.LatLon, float64) {
	n := len(p.Points)
	if n == 0 {
		return domain.LatLon{}, 0
	}
	if n == 1 {
		return p.Points[0], 0
	}

	if d <= 0 {
		return p.Points[0], bearingAt(p, 0)
	}
	total := p.CumDist[n-1]
	if d >= total {
		return p.Points[n-1], bearingAt(p, n-2)
	}

	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if p.CumDist[mid] < d {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is the first index with CumDist[lo] >= d; the bracketing segment
	// is [lo-1, lo].
	if lo == 0 {
		return p.Points[0], bearingAt(p, 0)
	}
	segStart := lo - 1
	segLen := p.CumDist[lo] - p.CumDist[segStart]
	var frac float64
	if segLen > 0 {
		frac = (d - p.CumDist[segStart]) / segLen
	}

	a := p.Points[segStart]
	b := p.Points[lo]
	pt := domain.LatLon{
		Lon: a.Lon + (b.Lon-a.Lon)*frac,
		Lat: a.Lat + (b.Lat-a.Lat)*frac,
	}
	return pt, bearingAt(p, segStart)
}

// bearingAt returns the initial compass bearing, in degrees, of the
// segment from Points[i] to Points[i+1].
func bearingAt(p *domain.Polyline, i int) float64 {
	if i < 0 || i+1 >= len(p.Points) {
		return 0
	}
	return Bearing(p.Points[i], p.Points[i+1])
}

// Bearing returns the initial compass bearing in degrees from a to b.
func Bearing(a, b domain.LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
