package fusion

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"trainpulse/internal/calendar"
	"trainpulse/internal/domain"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
	"trainpulse/pkg/gtfsrt"
)

// Fetcher retrieves and decodes one GTFS-RT feed cycle. pkg/gtfsrt.Client
// satisfies this; tests substitute a fake.
type Fetcher interface {
	Fetch(ctx context.Context) (*gtfs.FeedMessage, error)
}

// Publisher is C4: a single background task that fetches, matches,
// applies, and atomically publishes successive FusedTripSet snapshots
// (spec.md §4.4). Consecutive-failure counting is grounded on
// kasmar00-gtfs-polish-trains/backoff.Backoff: only the failure-counting
// half of that type is reused here, since the spec calls for a fixed
// refresh period rather than a widening retry sleep.
type Publisher struct {
	current atomic.Pointer[domain.FusedTripSet]

	fetcher Fetcher
	store   *timetable.Store
	indexes map[string]*segment.Index // per-line segment index, for the active-station tiebreak
	cal     *calendar.Calendar
	loc     *time.Location

	degradedAfterFails int
	clampMin, clampMax int

	consecutiveFailures int
	logger              *slog.Logger
}

// NewPublisher builds a Publisher. indexes must cover every line whose
// trips appear in store. loc is the configured LOCAL_TZ (spec.md §6):
// every wall-clock instant the cycle observes is converted into it before
// computing effective seconds or service type, so service-day boundaries
// never drift with the host process's own zone.
func NewPublisher(fetcher Fetcher, store *timetable.Store, indexes map[string]*segment.Index, cal *calendar.Calendar, loc *time.Location, degradedAfterFails, clampMin, clampMax int, logger *slog.Logger) *Publisher {
	p := &Publisher{
		fetcher:            fetcher,
		store:              store,
		indexes:            indexes,
		cal:                cal,
		loc:                loc,
		degradedAfterFails: degradedAfterFails,
		clampMin:           clampMin,
		clampMax:           clampMax,
		logger:             logger.With("component", "fusion"),
	}
	p.current.Store(&domain.FusedTripSet{
		ByTripIndex: map[int]*domain.FusedTrip{},
		GeneratedAt: time.Time{},
		Status:      domain.FusionHealthy,
	})
	return p
}

// Snapshot returns the latest published FusedTripSet. Callers take this
// once at the start of a request and use it for the whole call (spec.md
// §5: no partial visibility of a single fusion cycle).
func (p *Publisher) Snapshot() *domain.FusedTripSet {
	return p.current.Load()
}

// Run executes the refresh loop at the given period until ctx is done
// (spec.md §4.4 step 1), fetching once immediately and then every tick.
func (p *Publisher) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Publisher) cycle(ctx context.Context) {
	start := time.Now()

	msg, err := p.fetcher.Fetch(ctx)
	if err != nil {
		p.onFetchFailure(err)
		return
	}
	p.consecutiveFailures = 0

	now := time.Now().In(p.loc)
	serviceType := p.cal.ServiceType(now)
	effSec := timetable.EffectiveSeconds(now)

	allowed := func(tripIndex int) bool {
		trip := p.store.Trip(tripIndex)
		return trip != nil && trip.ID.ServiceType == serviceType
	}

	activeStation := func(tripIndex int) (string, bool) {
		trip := p.store.Trip(tripIndex)
		if trip == nil {
			return "", false
		}
		idx := p.indexes[trip.LineID]
		if idx == nil {
			return "", false
		}
		for _, s := range idx.TripSegments(tripIndex) {
			if !coversEff(s, effSec) {
				continue
			}
			if s.Kind == domain.SegmentDwell {
				return s.StationID, true
			}
			return s.ToStationID, true
		}
		return "", false
	}

	updates := gtfsrt.TripUpdates(msg)
	res := matchUpdates(updates, p.store, allowed, activeStation, p.logger)
	offsets := applyMatches(res, p.store, p.clampMin, p.clampMax)

	snap := &domain.FusedTripSet{
		ByTripIndex: offsets,
		GeneratedAt: now,
		Status:      domain.FusionHealthy,
		Unmatched:   res.unmatched,
		Suspect:     countSuspect(offsets),
	}
	p.current.Store(snap)

	p.logger.Info("fusion cycle complete",
		"matched", len(res.matches),
		"unmatched", res.unmatched,
		"ambiguous", res.ambiguous,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (p *Publisher) onFetchFailure(err error) {
	p.consecutiveFailures++
	p.logger.Warn("fusion fetch failed", "error", err, "consecutive_failures", p.consecutiveFailures)

	prev := p.current.Load()
	status := domain.FusionHealthy
	if p.consecutiveFailures >= p.degradedAfterFails {
		status = domain.FusionDegraded
	}
	// Retain the previous fused offsets; only the status advances, so
	// staleness (spec.md §4.5 step 6) is computed from the last
	// successful fetch's GeneratedAt, not this failed one.
	next := &domain.FusedTripSet{
		ByTripIndex: prev.ByTripIndex,
		GeneratedAt: prev.GeneratedAt,
		Status:      status,
		Unmatched:   prev.Unmatched,
		Suspect:     prev.Suspect,
	}
	p.current.Store(next)
}

func countSuspect(offsets map[int]*domain.FusedTrip) int {
	n := 0
	for _, ft := range offsets {
		if ft.Quality == domain.QualitySuspect {
			n++
		}
	}
	return n
}

func coversEff(s domain.Segment, t int) bool {
	return (t >= s.Start && t < s.End) || (s.Start == s.End && t == s.Start)
}
