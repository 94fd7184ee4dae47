package fusion

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"trainpulse/internal/calendar"
	"trainpulse/internal/domain"
	"trainpulse/internal/segment"
	"trainpulse/internal/timetable"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	msg *gtfs.FeedMessage
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	return f.msg, f.err
}

func directionTripUpdate(tripID string, directionID uint32, stopID string, delay int32) *gtfs.TripUpdate {
	return &gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:      proto.String(tripID),
			DirectionId: proto.Uint32(directionID),
		},
		StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
			{
				StopId: proto.String(stopID),
				Departure: &gtfs.TripUpdate_StopTimeEvent{
					Delay: proto.Int32(delay),
				},
			},
		},
	}
}

func feedWith(updates ...*gtfs.TripUpdate) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
	}
	for i, u := range updates {
		id := "e" + string(rune('0'+i))
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id:         proto.String(id),
			TripUpdate: u,
		})
	}
	return msg
}

func newTestStore() (*timetable.Store, *segment.Index) {
	trip := &domain.Trip{
		ID:               domain.TripID{Base: "1234K", ServiceType: domain.ServiceWeekday, Direction: domain.DirectionOutbound},
		LineID:           "L1",
		NormalizedNumber: "1234K",
		Stops: []domain.StopTime{
			{StationID: "A", Arrival: 1000, Departure: 1000},
			{StationID: "B", Arrival: 1100, Departure: 1110},
			{StationID: "C", Arrival: 1200, Departure: 1200},
		},
	}
	store := timetable.NewStore(map[string][]*domain.Trip{"L1": {trip}})
	idx := segment.Build("L1", store)
	return store, idx
}

func TestPublisherCycleMatchesAndPublishes(t *testing.T) {
	store, idx := newTestStore()
	cal, err := calendar.New("")
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	// cycle only matches trips on the current day's operating calendar.
	store.Trip(0).ID.ServiceType = cal.ServiceType(time.Now().In(time.UTC))

	update := directionTripUpdate("0:1234K", 0, "B", 45)
	fetcher := &fakeFetcher{msg: feedWith(update)}

	p := NewPublisher(fetcher, store, map[string]*segment.Index{"L1": idx}, cal, time.UTC, 5, -600, 3600, testLogger())
	p.cycle(context.Background())

	snap := p.Snapshot()
	if snap.Status != domain.FusionHealthy {
		t.Fatalf("status = %v, want healthy", snap.Status)
	}
	if len(snap.ByTripIndex) != 1 {
		t.Fatalf("ByTripIndex = %d entries, want 1", len(snap.ByTripIndex))
	}
	ft := snap.ByTripIndex[0]
	if ft == nil {
		t.Fatal("trip 0 not present in fused set")
	}
	if ft.Offsets[0] != 0 || ft.Offsets[1] != 45 || ft.Offsets[2] != 45 {
		t.Errorf("offsets = %v, want [0 45 45] (forward-filled)", ft.Offsets)
	}
}

func TestPublisherDegradesAfterConsecutiveFailures(t *testing.T) {
	store, idx := newTestStore()
	cal, _ := calendar.New("")
	fetcher := &fakeFetcher{err: context.DeadlineExceeded}

	p := NewPublisher(fetcher, store, map[string]*segment.Index{"L1": idx}, cal, time.UTC, 3, -600, 3600, testLogger())

	for i := 0; i < 2; i++ {
		p.cycle(context.Background())
		if got := p.Snapshot().Status; got != domain.FusionHealthy {
			t.Fatalf("after %d failures status = %v, want healthy", i+1, got)
		}
	}

	p.cycle(context.Background())
	if got := p.Snapshot().Status; got != domain.FusionDegraded {
		t.Fatalf("after 3rd failure status = %v, want degraded", got)
	}
}

func TestPublisherRecoversToHealthyAfterSuccess(t *testing.T) {
	store, idx := newTestStore()
	cal, _ := calendar.New("")
	fetcher := &fakeFetcher{err: context.DeadlineExceeded}

	p := NewPublisher(fetcher, store, map[string]*segment.Index{"L1": idx}, cal, time.UTC, 1, -600, 3600, testLogger())
	p.cycle(context.Background())
	if got := p.Snapshot().Status; got != domain.FusionDegraded {
		t.Fatalf("status = %v, want degraded", got)
	}

	fetcher.err = nil
	fetcher.msg = feedWith(directionTripUpdate("0:1234K", 0, "B", 10))
	p.cycle(context.Background())
	if got := p.Snapshot().Status; got != domain.FusionHealthy {
		t.Fatalf("status after recovery = %v, want healthy", got)
	}
}

func TestPublisherSnapshotStaleness(t *testing.T) {
	snap := &domain.FusedTripSet{GeneratedAt: time.Now().Add(-10 * time.Minute)}
	if !snap.Stale(time.Now(), 2*time.Minute) {
		t.Error("expected snapshot older than staleAfter to be stale")
	}
}
