package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
	"trainpulse/internal/position"
)

// LinesHandler serves the static catalog (C1) and the live positions
// query (C5): spec.md §6's lines/stations/positions/shape surface.
type LinesHandler struct {
	catalog *catalog.Store
	query   *QueryService
	logger  *slog.Logger
}

func NewLinesHandler(catalogStore *catalog.Store, query *QueryService, logger *slog.Logger) *LinesHandler {
	return &LinesHandler{catalog: catalogStore, query: query, logger: logger.With("handler", "lines")}
}

type LinesResponse struct {
	Lines      []*domain.Line `json:"lines"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"server_time"`
}

func (h *LinesHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	lines := h.catalog.Lines()
	respondJSON(w, http.StatusOK, LinesResponse{
		Lines:      lines,
		Count:      len(lines),
		ServerTime: time.Now(),
	})
}

func (h *LinesHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("line")
	line, ok := h.catalog.Line(id)
	if !ok {
		respondError(w, http.StatusNotFound, "line not found")
		return
	}
	respondJSON(w, http.StatusOK, line)
}

type StationsResponse struct {
	Stations   []*domain.Station `json:"stations"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"server_time"`
}

func (h *LinesHandler) GetLineStations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("line")
	if _, ok := h.catalog.Line(id); !ok {
		respondError(w, http.StatusNotFound, "line not found")
		return
	}
	stations := h.catalog.StationsForLine(id)
	respondJSON(w, http.StatusOK, StationsResponse{
		Stations:   stations,
		Count:      len(stations),
		ServerTime: time.Now(),
	})
}

func (h *LinesHandler) GetLineShape(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("line")
	line, ok := h.catalog.Line(id)
	if !ok {
		respondError(w, http.StatusNotFound, "line not found")
		return
	}
	if !line.Shape.Valid() {
		respondError(w, http.StatusNotFound, "line has no usable shape geometry")
		return
	}
	respondJSON(w, http.StatusOK, line.Shape)
}

type PositionsResponse struct {
	Line       string            `json:"line"`
	Positions  []domain.Position `json:"positions"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"server_time"`
}

// GetLinePositions answers positions(line, at_time) (spec.md §4.5): the
// optional ?at= query parameter overrides "now" with an RFC3339 instant,
// used for deterministic testing against recorded feeds.
func (h *LinesHandler) GetLinePositions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("line")

	at := time.Now()
	if atParam := r.URL.Query().Get("at"); atParam != "" {
		parsed, err := time.Parse(time.RFC3339, atParam)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid at parameter, expected RFC3339")
			return
		}
		at = parsed
	}

	positions, err := h.query.Positions(id, at)
	if err != nil {
		if err == position.ErrUnknownLine {
			respondError(w, http.StatusNotFound, "line not found")
			return
		}
		h.logger.Error("GetLinePositions failed", "line", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to compute positions")
		return
	}

	h.logger.Debug("GetLinePositions response",
		"line", id,
		"count", len(positions),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, PositionsResponse{
		Line:       id,
		Positions:  positions,
		Count:      len(positions),
		ServerTime: time.Now(),
	})
}

// patchStationRequest is the admin write-through payload (spec.md §4.1
// admin surface): update a station's operational rank and dwell time.
type patchStationRequest struct {
	Rank     domain.StationRank `json:"rank"`
	DwellSec int                `json:"dwell_sec"`
}

func (h *LinesHandler) PatchStation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing station id")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req patchStationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Rank {
	case domain.RankS, domain.RankA, domain.RankB:
	default:
		respondError(w, http.StatusBadRequest, "rank must be one of S, A, B")
		return
	}
	if req.DwellSec < 0 {
		respondError(w, http.StatusBadRequest, "dwell_sec must be non-negative")
		return
	}

	if !h.catalog.SetStationRank(id, req.Rank, req.DwellSec) {
		respondError(w, http.StatusNotFound, "station not found")
		return
	}

	h.logger.Info("station patched", "station_id", id, "rank", req.Rank, "dwell_sec", req.DwellSec)
	w.WriteHeader(http.StatusNoContent)
}
