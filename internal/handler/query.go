package handler

import (
	"time"

	"trainpulse/internal/catalog"
	"trainpulse/internal/domain"
	"trainpulse/internal/fusion"
	"trainpulse/internal/position"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
)

// QueryService assembles C1-C5 into the single read path every handler
// uses to answer a positions request, so HTTP and WebSocket delivery
// share identical semantics (spec.md §4.5, §6).
type QueryService struct {
	Catalog    *catalog.Store
	Trips      *timetable.Store
	Segments   map[string]*segment.Index // by line ID
	Publisher  *fusion.Publisher
	StaleAfter time.Duration
	Loc        *time.Location // LOCAL_TZ (spec.md §6); every at converts into this before EffectiveSeconds
}

// Positions returns the current positions of every running trip on
// lineID at time at. at is converted into Loc first, so a caller passing
// time.Now() or an RFC3339 ?at= timestamp in an arbitrary zone still gets
// the service day computed against the configured local timezone.
func (q *QueryService) Positions(lineID string, at time.Time) ([]domain.Position, error) {
	idx, ok := q.Segments[lineID]
	if !ok {
		return nil, position.ErrUnknownLine
	}
	snap := q.Publisher.Snapshot()
	return position.Positions(lineID, at.In(q.Loc), q.Catalog, q.Trips, idx, snap, q.StaleAfter)
}

// AllLines returns the positions of every trip across every configured
// line, used by the websocket broadcast loop.
func (q *QueryService) AllLines(at time.Time) map[string][]domain.Position {
	out := make(map[string][]domain.Position, len(q.Segments))
	for lineID := range q.Segments {
		positions, err := q.Positions(lineID, at)
		if err != nil {
			continue
		}
		out[lineID] = positions
	}
	return out
}
