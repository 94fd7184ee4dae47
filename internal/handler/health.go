package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
	"trainpulse/internal/fusion"
)

type HealthHandler struct {
	publisher *fusion.Publisher
	catalog   *catalog.Store
}

func NewHealthHandler(publisher *fusion.Publisher, catalogStore *catalog.Store) *HealthHandler {
	return &HealthHandler{publisher: publisher, catalog: catalogStore}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool                `json:"ready"`
	FusionStatus domain.FusionStatus `json:"fusion_status"`
	LinesLoaded  int                 `json:"lines_loaded"`
	ServerTime   time.Time           `json:"server_time"`
}

// Readyz reports ready once the static catalog is populated; the fusion
// status is surfaced but never blocks readiness since positions degrade
// gracefully to zero-offset schedules while the feed is down (spec.md
// §4.4 step 1, §7).
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	stats := h.catalog.Stats()
	ready := stats.Lines > 0

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	snap := h.publisher.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:        ready,
		FusionStatus: snap.Status,
		LinesLoaded:  stats.Lines,
		ServerTime:   time.Now(),
	})
}
