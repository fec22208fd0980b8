package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"gtatransit/internal/domain"
)

// subwayGenericLine labels predictions from stations that do not report
// a line number.
const subwayGenericLine = "Subway"

type subwayStation struct {
	NextTrains    string      `json:"nextTrains"`
	DirectionText string      `json:"directionText"`
	Line          json.Number `json:"line"`
}

// Subway normalizes a fixed-route next-trains payload. The nextTrains
// field is a comma-separated minutes string; tokens that do not parse as
// integers are dropped outright, never emitted as zero placeholders.
func Subway(payload []byte) []domain.ArrivalPrediction {
	var stations []subwayStation
	if err := json.Unmarshal(payload, &stations); err != nil {
		return nil
	}

	var predictions []domain.ArrivalPrediction
	for _, st := range stations {
		line := st.Line.String()
		if line == "" {
			line = subwayGenericLine
		}

		for _, token := range strings.Split(st.NextTrains, ",") {
			minutes, err := strconv.Atoi(strings.TrimSpace(token))
			if err != nil {
				continue
			}
			predictions = append(predictions, domain.ArrivalPrediction{
				Line:        line,
				Destination: st.DirectionText,
				TimeMinutes: minutes,
				IsGhost:     false,
			})
		}
	}

	return predictions
}
