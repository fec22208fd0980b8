package normalize

import (
	"math"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"gtatransit/internal/domain"
)

// GTFSRT normalizes a GTFS-Realtime feed into predictions for one stop.
// Trip updates carry the times; vehicle position entities contribute
// occupancy for the crowding field. An update with no vehicle descriptor
// has nothing tracking it, so it is flagged as a ghost.
func GTFSRT(feed *gtfs.FeedMessage, stopID string, now time.Time) []domain.ArrivalPrediction {
	if feed == nil {
		return nil
	}

	occupancy := occupancyByTrip(feed)

	var predictions []domain.ArrivalPrediction
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		tripID := tu.GetTrip().GetTripId()
		line := tu.GetTrip().GetRouteId()
		vehicleID := tu.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = tu.GetVehicle().GetLabel()
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() != stopID {
				continue
			}

			ts := stu.GetArrival().GetTime()
			if ts == 0 {
				ts = stu.GetDeparture().GetTime()
			}
			if ts == 0 {
				continue
			}

			minutes := int(math.Round(time.Unix(ts, 0).Sub(now).Minutes()))
			if minutes < 0 {
				minutes = 0
			}

			predictions = append(predictions, domain.ArrivalPrediction{
				Line:        line,
				TimeMinutes: minutes,
				IsGhost:     tu.GetVehicle() == nil,
				VehicleID:   vehicleID,
				Crowding:    occupancy[tripID],
			})
		}
	}

	return predictions
}

func occupancyByTrip(feed *gtfs.FeedMessage) map[string]domain.Crowding {
	out := make(map[string]domain.Crowding)
	for _, entity := range feed.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil || vp.OccupancyStatus == nil {
			continue
		}
		tripID := vp.GetTrip().GetTripId()
		if tripID == "" {
			continue
		}
		out[tripID] = crowdingFromOccupancy(vp.GetOccupancyStatus())
	}
	return out
}

func crowdingFromOccupancy(status gtfs.VehiclePosition_OccupancyStatus) domain.Crowding {
	switch status {
	case gtfs.VehiclePosition_EMPTY, gtfs.VehiclePosition_MANY_SEATS_AVAILABLE:
		return domain.CrowdingLow
	case gtfs.VehiclePosition_FEW_SEATS_AVAILABLE, gtfs.VehiclePosition_STANDING_ROOM_ONLY:
		return domain.CrowdingMedium
	default:
		return domain.CrowdingHigh
	}
}
