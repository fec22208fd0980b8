package domain

// Crowding is the coarse vehicle load level reported by some feeds.
type Crowding string

const (
	CrowdingLow    Crowding = "low"
	CrowdingMedium Crowding = "medium"
	CrowdingHigh   Crowding = "high"
)

// ArrivalPrediction is the unified arrival vocabulary produced by the
// normalizers. Constructed fresh per query response, never persisted,
// never mutated after construction.
//
// IsGhost marks a schedule-derived time with no live vehicle tracking
// behind it. Riders must be able to tell a scheduled guess from a
// tracked vehicle, so this flag must never be dropped downstream.
type ArrivalPrediction struct {
	Line        string   `json:"line"`
	Destination string   `json:"destination"`
	TimeMinutes int      `json:"timeMinutes"`
	IsGhost     bool     `json:"isGhost"`
	VehicleID   string   `json:"vehicleId,omitempty"`
	Crowding    Crowding `json:"crowding,omitempty"`
	Platform    string   `json:"platform,omitempty"`
}

// StopArrivals pairs a stop with its current predictions, used for hub
// fanout and API responses.
type StopArrivals struct {
	StopID      string              `json:"stopId"`
	Predictions []ArrivalPrediction `json:"predictions"`
}
