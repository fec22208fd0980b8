package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"

	"gtatransit/internal/domain"
)

var (
	lineTokenRe = regexp.MustCompile(`^(\d+[A-Za-z]?)`)
	towardsRe   = regexp.MustCompile(`(?i)towards\s+(.+)`)
)

type nextbusEnvelope struct {
	Predictions oneOrMany[nextbusPredictions] `json:"predictions"`
}

type nextbusPredictions struct {
	RouteTag  string                      `json:"routeTag"`
	Direction oneOrMany[nextbusDirection] `json:"direction"`
}

type nextbusDirection struct {
	Title      string                       `json:"title"`
	Prediction oneOrMany[nextbusPrediction] `json:"prediction"`
}

type nextbusPrediction struct {
	Minutes string `json:"minutes"`
	Vehicle string `json:"vehicle"`
}

// NextBus normalizes a line-and-direction prediction tree. Singular
// predictions, directions, and etas arrive as bare objects instead of
// single-element lists; oneOrMany coerces all three levels. Entries with
// no direction or no prediction are skipped silently. These feeds have
// no schedule-only mode, so IsGhost is always false.
func NextBus(payload []byte) []domain.ArrivalPrediction {
	var env nextbusEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}

	var predictions []domain.ArrivalPrediction
	for _, p := range env.Predictions.Items {
		for _, dir := range p.Direction.Items {
			line := extractLine(dir.Title, p.RouteTag)
			destination := extractDestination(dir.Title)

			for _, eta := range dir.Prediction.Items {
				minutes, err := strconv.Atoi(eta.Minutes)
				if err != nil {
					minutes = 0
				}
				predictions = append(predictions, domain.ArrivalPrediction{
					Line:        line,
					Destination: destination,
					TimeMinutes: minutes,
					IsGhost:     false,
					VehicleID:   eta.Vehicle,
				})
			}
		}
	}

	return predictions
}

// extractLine pulls the leading route token (digits plus an optional
// branch letter) from the direction title, falling back to the same
// pattern on the route tag.
func extractLine(title, routeTag string) string {
	if m := lineTokenRe.FindString(title); m != "" {
		return m
	}
	if m := lineTokenRe.FindString(routeTag); m != "" {
		return m
	}
	return ""
}

// extractDestination pulls the text after "towards" from the direction
// title, falling back to the raw title.
func extractDestination(title string) string {
	if m := towardsRe.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return title
}
