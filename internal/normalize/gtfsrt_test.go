package normalize

import (
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"gtatransit/internal/domain"
)

func stopTimeUpdate(stopID string, arrival time.Time) *gtfs.TripUpdate_StopTimeUpdate {
	return &gtfs.TripUpdate_StopTimeUpdate{
		StopId:  proto.String(stopID),
		Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(arrival.Unix())},
	}
}

func TestGTFSRTTrackedVehicle(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	feed := &gtfs.FeedMessage{
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("tu1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip:           &gtfs.TripDescriptor{TripId: proto.String("trip-1"), RouteId: proto.String("60")},
					Vehicle:        &gtfs.VehicleDescriptor{Id: proto.String("9410")},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{stopTimeUpdate("4034", now.Add(6 * time.Minute))},
				},
			},
		},
	}

	got := GTFSRT(feed, "4034", now)
	if len(got) != 1 {
		t.Fatalf("got %d predictions, want 1", len(got))
	}
	p := got[0]
	if p.Line != "60" {
		t.Errorf("Line = %q, want %q", p.Line, "60")
	}
	if p.TimeMinutes != 6 {
		t.Errorf("TimeMinutes = %d, want 6", p.TimeMinutes)
	}
	if p.IsGhost {
		t.Error("IsGhost = true for an update with a vehicle descriptor")
	}
	if p.VehicleID != "9410" {
		t.Errorf("VehicleID = %q, want %q", p.VehicleID, "9410")
	}
}

func TestGTFSRTGhostWithoutVehicle(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	feed := &gtfs.FeedMessage{
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("tu1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip:           &gtfs.TripDescriptor{TripId: proto.String("trip-2"), RouteId: proto.String("3")},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{stopTimeUpdate("1121", now.Add(14 * time.Minute))},
				},
			},
		},
	}

	got := GTFSRT(feed, "1121", now)
	if len(got) != 1 {
		t.Fatalf("got %d predictions, want 1", len(got))
	}
	if !got[0].IsGhost {
		t.Error("IsGhost = false for an update with no vehicle descriptor")
	}
}

func TestGTFSRTCrowdingFromVehiclePositions(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	occupancy := gtfs.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY
	feed := &gtfs.FeedMessage{
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("vp1"),
				Vehicle: &gtfs.VehiclePosition{
					Trip:            &gtfs.TripDescriptor{TripId: proto.String("trip-3")},
					OccupancyStatus: &occupancy,
				},
			},
			{
				Id: proto.String("tu1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip:           &gtfs.TripDescriptor{TripId: proto.String("trip-3"), RouteId: proto.String("501")},
					Vehicle:        &gtfs.VehicleDescriptor{Id: proto.String("2210")},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{stopTimeUpdate("880", now.Add(2 * time.Minute))},
				},
			},
		},
	}

	got := GTFSRT(feed, "880", now)
	if len(got) != 1 {
		t.Fatalf("got %d predictions, want 1", len(got))
	}
	if got[0].Crowding != domain.CrowdingHigh {
		t.Errorf("Crowding = %q, want %q", got[0].Crowding, domain.CrowdingHigh)
	}
}

func TestGTFSRTIgnoresOtherStopsAndPastTimes(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	feed := &gtfs.FeedMessage{
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("tu1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip:    &gtfs.TripDescriptor{TripId: proto.String("trip-4"), RouteId: proto.String("19")},
					Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("77")},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
						stopTimeUpdate("other-stop", now.Add(4*time.Minute)),
						stopTimeUpdate("mine", now.Add(-3*time.Minute)),
					},
				},
			},
		},
	}

	got := GTFSRT(feed, "mine", now)
	if len(got) != 1 {
		t.Fatalf("got %d predictions, want 1", len(got))
	}
	if got[0].TimeMinutes != 0 {
		t.Errorf("TimeMinutes = %d, want 0 for a departure already in the past", got[0].TimeMinutes)
	}

	if got := GTFSRT(nil, "mine", now); len(got) != 0 {
		t.Errorf("nil feed: got %d predictions, want 0", len(got))
	}
}
