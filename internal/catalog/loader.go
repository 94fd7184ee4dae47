package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"trainpulse/internal/domain"
)

// BBox is the configured geographic bounding box used to validate station
// coordinates at load time (spec.md §3, default lon in [122,154], lat in
// [20,46]).
type BBox struct {
	MinLon, MaxLon float64
	MinLat, MaxLat float64
}

func (b BBox) Contains(c domain.LatLon) bool {
	return c.Lon >= b.MinLon && c.Lon <= b.MaxLon && c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

type lineFile struct {
	ID         string   `json:"id"`
	NameJA     string   `json:"name_ja"`
	NameEN     string   `json:"name_en"`
	Color      string   `json:"color"`
	StationIDs []string `json:"station_ids"`
	Closed     bool     `json:"closed"`
}

type stationFile struct {
	ID       string   `json:"id"`
	NameJA   string   `json:"name_ja"`
	NameEN   string   `json:"name_en"`
	Lon      float64  `json:"lon"`
	Lat      float64  `json:"lat"`
	LineIDs  []string `json:"line_ids"`
	Rank     string   `json:"rank"`
	DwellSec int      `json:"dwell_time"`
}

// subLineFile is one sub-line as it arrives in the shapes JSON: a list of
// [lon,lat] coordinate pairs, each a 2-element array rather than an
// object, matching the compact GeoJSON-coordinate convention.
type subLineFile [][2]float64

// Load reads lines.json, stations.json, and shapes.json from dir, stitches
// each line's shape, precomputes station anchors, and validates station
// coordinates against bbox. A DataLoadError (spec.md §7) aborts startup;
// callers should treat a non-nil error as fatal with exit code 1.
func Load(dir string, bbox BBox, logger *slog.Logger) (*Store, error) {
	start := time.Now()

	var lineFiles []lineFile
	if err := readJSON(filepath.Join(dir, "lines.json"), &lineFiles); err != nil {
		return nil, fmt.Errorf("DataLoadError: lines.json: %w", err)
	}

	var stationFiles []stationFile
	if err := readJSON(filepath.Join(dir, "stations.json"), &stationFiles); err != nil {
		return nil, fmt.Errorf("DataLoadError: stations.json: %w", err)
	}

	var shapeFiles map[string][]subLineFile
	if err := readJSON(filepath.Join(dir, "shapes.json"), &shapeFiles); err != nil {
		return nil, fmt.Errorf("DataLoadError: shapes.json: %w", err)
	}

	stations := make(map[string]*domain.Station, len(stationFiles))
	for _, sf := range stationFiles {
		coord := domain.LatLon{Lon: sf.Lon, Lat: sf.Lat}
		if !bbox.Contains(coord) {
			logger.Warn("station coordinate out of bounds, rejected", "station_id", sf.ID, "lon", sf.Lon, "lat", sf.Lat)
			continue
		}
		rank := domain.StationRank(sf.Rank)
		switch rank {
		case domain.RankS, domain.RankA, domain.RankB:
		default:
			rank = domain.RankB
		}
		stations[sf.ID] = &domain.Station{
			ID:       sf.ID,
			NameJA:   sf.NameJA,
			NameEN:   sf.NameEN,
			Coord:    coord,
			LineIDs:  sf.LineIDs,
			Rank:     rank,
			DwellSec: sf.DwellSec,
		}
	}

	lines := make(map[string]*domain.Line, len(lineFiles))
	shapeInvalidCount := 0
	for _, lf := range lineFiles {
		for _, sid := range lf.StationIDs {
			if _, ok := stations[sid]; !ok {
				return nil, fmt.Errorf("DataLoadError: line %s references unknown station %s", lf.ID, sid)
			}
		}

		var shape *domain.Polyline
		subs := shapeFiles[lf.ID]
		if len(subs) > 0 {
			converted := make([][]domain.LatLon, len(subs))
			for i, sub := range subs {
				pts := make([]domain.LatLon, len(sub))
				for j, pair := range sub {
					pts[j] = domain.LatLon{Lon: pair[0], Lat: pair[1]}
				}
				converted[i] = pts
			}
			shape = StitchShape(converted)
		}

		line := &domain.Line{
			ID:         lf.ID,
			NameJA:     lf.NameJA,
			NameEN:     lf.NameEN,
			Color:      lf.Color,
			StationIDs: lf.StationIDs,
			Closed:     lf.Closed,
			Shape:      shape,
		}

		if !shape.Valid() {
			// ShapeInvalid (spec.md §7): serve the line without geometry;
			// station-coordinate-only queries still work.
			shapeInvalidCount++
			logger.Warn("line shape invalid, serving station coordinates only", "line_id", lf.ID)
		} else {
			line.Anchors = make([]int, len(lf.StationIDs))
			for i, sid := range lf.StationIDs {
				line.Anchors[i] = NearestVertex(shape, stations[sid].Coord)
			}
		}

		lines[lf.ID] = line
	}

	logger.Info("catalog loaded",
		"lines", len(lines),
		"stations", len(stations),
		"shape_invalid", shapeInvalidCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return newStore(lines, stations), nil
}

func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
