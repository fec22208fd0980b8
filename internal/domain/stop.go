package domain

// TransitStop is one persisted stop record. ID is globally unique and
// agency-prefixed (e.g. "GO_UN"); Code is the rider-facing stop number,
// unique only within one agency, and must always be paired with Agency
// for lookup.
type TransitStop struct {
	ID     string  `json:"id"`
	Code   string  `json:"code"`
	Agency Agency  `json:"agency"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`

	// Legacy display fields carried for older clients. Type is "stop"
	// for surface stops and "station" for rail/subway stations; station
	// stops dispatch to next-trains feeds where the agency has one.
	Title      string `json:"title,omitempty"`
	Lines      string `json:"lines,omitempty"`
	Directions string `json:"directions,omitempty"`
	Type       string `json:"type,omitempty"`
}

// StopWithDistance is a query result: a stop plus its distance from the
// query point. Distance is planar (degrees, comparable only within one
// query); RealDistance is great-circle meters. Both are zero outside
// spatial queries.
type StopWithDistance struct {
	TransitStop
	Distance     float64 `json:"distance"`
	RealDistance float64 `json:"realDistance"`
}

// WithDefaults fills the legacy display fields from the base record when
// absent.
func (s TransitStop) WithDefaults() TransitStop {
	if s.Title == "" {
		s.Title = s.Name
	}
	if s.Type == "" {
		s.Type = "stop"
	}
	return s
}
