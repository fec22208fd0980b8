// Package normalize maps raw agency API payloads onto the unified
// arrival model. Each normalizer is a pure function over its payload:
// best-effort extraction, no shared state, missing substructures yield
// an empty result rather than an error.
package normalize

import (
	"encoding/json"
	"math"
	"time"

	"gtatransit/internal/domain"
)

const goTimeLayout = "2006-01-02 15:04:05"

// GO departure timestamps are local wall-clock times.
var torontoLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/Toronto")
	if err != nil {
		return time.Local
	}
	return loc
}()

type goEnvelope struct {
	NextService struct {
		Lines []goLineService `json:"Lines"`
	} `json:"NextService"`
}

type goLineService struct {
	LineCode               string `json:"LineCode"`
	LineName               string `json:"LineName"`
	DirectionName          string `json:"DirectionName"`
	ScheduledDepartureTime string `json:"ScheduledDepartureTime"`
	ComputedDepartureTime  string `json:"ComputedDepartureTime"`
	Computed               int    `json:"Computed"`
	ScheduledPlatform      string `json:"ScheduledPlatform"`
	ActualPlatform         string `json:"ActualPlatform"`
	TrainNumber            string `json:"TrainNumber"`
	BusNumber              string `json:"BusNumber"`
}

// GO normalizes a GO-family next-service envelope. Computed==1 means the
// departure is backed by live tracking and the computed time wins;
// Computed==0 means the time is schedule-only and the prediction is a
// ghost. Departures already in the past clamp to zero minutes.
func GO(payload []byte, now time.Time) []domain.ArrivalPrediction {
	var env goEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}

	predictions := make([]domain.ArrivalPrediction, 0, len(env.NextService.Lines))
	for _, line := range env.NextService.Lines {
		selected := line.ScheduledDepartureTime
		if line.Computed == 1 {
			selected = line.ComputedDepartureTime
		}

		minutes := 0
		if t, err := time.ParseInLocation(goTimeLayout, selected, torontoLoc); err == nil {
			minutes = int(math.Round(t.Sub(now).Minutes()))
			if minutes < 0 {
				minutes = 0
			}
		}

		vehicleID := line.TrainNumber
		if vehicleID == "" {
			vehicleID = line.BusNumber
		}

		platform := line.ActualPlatform
		if platform == "" {
			platform = line.ScheduledPlatform
		}

		predictions = append(predictions, domain.ArrivalPrediction{
			Line:        line.LineName,
			Destination: line.DirectionName,
			TimeMinutes: minutes,
			IsGhost:     line.Computed == 0,
			VehicleID:   vehicleID,
			Platform:    platform,
		})
	}

	return predictions
}
