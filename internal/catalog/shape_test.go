package catalog

import (
	"math"
	"testing"

	"trainpulse/internal/domain"
)

func TestStitchShapeOrientationInvariant(t *testing.T) {
	// Three sub-lines describing a straight line from (0,0) to (0,3),
	// the middle one given in reverse orientation. The stitched polyline's
	// vertex set must be independent of input orientation (spec.md §8,
	// property 5).
	forward := [][]domain.LatLon{
		{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}},
		{{Lon: 0, Lat: 1}, {Lon: 0, Lat: 2}},
		{{Lon: 0, Lat: 2}, {Lon: 0, Lat: 3}},
	}
	reversedMiddle := [][]domain.LatLon{
		{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}},
		{{Lon: 0, Lat: 2}, {Lon: 0, Lat: 1}},
		{{Lon: 0, Lat: 2}, {Lon: 0, Lat: 3}},
	}

	a := StitchShape(forward)
	b := StitchShape(reversedMiddle)

	if len(a.Points) != len(b.Points) {
		t.Fatalf("point count mismatch: %d vs %d", len(a.Points), len(b.Points))
	}
	for i := range a.Points {
		if a.Points[i] != b.Points[i] {
			t.Fatalf("point %d mismatch: %+v vs %+v", i, a.Points[i], b.Points[i])
		}
	}
}

func TestStitchShapeMultiLeg(t *testing.T) {
	// S6: 4 sub-lines, two reversed, reconstructing a straight 1km-ish line.
	subs := [][]domain.LatLon{
		{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0.01}},
		{{Lon: 0, Lat: 0.02}, {Lon: 0, Lat: 0.01}}, // reversed
		{{Lon: 0, Lat: 0.02}, {Lon: 0, Lat: 0.03}},
		{{Lon: 0, Lat: 0.04}, {Lon: 0, Lat: 0.03}}, // reversed
	}
	p := StitchShape(subs)
	want := []float64{0, 0.01, 0.02, 0.03, 0.04}
	if len(p.Points) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(p.Points))
	}
	for i, lat := range want {
		if math.Abs(p.Points[i].Lat-lat) > 1e-9 {
			t.Fatalf("point %d: want lat %v, got %v", i, lat, p.Points[i].Lat)
		}
	}
}

func TestInterpolateAlongMidpoint(t *testing.T) {
	p := StitchShape([][]domain.LatLon{
		{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0.01}},
	})
	half := p.Length() / 2
	pt, _ := InterpolateAlong(p, half)
	if math.Abs(pt.Lat-0.005) > 1e-6 {
		t.Fatalf("expected midpoint lat ~0.005, got %v", pt.Lat)
	}
}

func TestNearestVertex(t *testing.T) {
	p := StitchShape([][]domain.LatLon{
		{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}, {Lon: 0, Lat: 2}},
	})
	idx := NearestVertex(p, domain.LatLon{Lon: 0, Lat: 1.9})
	if idx != 2 {
		t.Fatalf("expected nearest vertex 2, got %d", idx)
	}
}
