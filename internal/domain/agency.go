package domain

// Agency identifies one transit operator in the region.
type Agency string

const (
	AgencyTTC      Agency = "ttc"
	AgencyGO       Agency = "go"
	AgencyYRT      Agency = "yrt"
	AgencyMiWay    Agency = "miway"
	AgencyBrampton Agency = "brampton"
)

// Agencies returns every supported agency. The slice is freshly allocated
// on each call so callers may reorder it.
func Agencies() []Agency {
	return []Agency{AgencyTTC, AgencyGO, AgencyYRT, AgencyMiWay, AgencyBrampton}
}

// ParseAgency maps a raw string onto the closed agency set.
func ParseAgency(s string) (Agency, bool) {
	switch Agency(s) {
	case AgencyTTC, AgencyGO, AgencyYRT, AgencyMiWay, AgencyBrampton:
		return Agency(s), true
	}
	return "", false
}

// AgencyStyle carries the rider-facing presentation of an agency.
type AgencyStyle struct {
	Label      string `json:"label"`
	Foreground string `json:"foreground"`
	Background string `json:"background"`
}

// agencyStyles must have one entry per agency; TestAgencyStylesTotal
// guards the invariant.
var agencyStyles = map[Agency]AgencyStyle{
	AgencyTTC:      {Label: "TTC", Foreground: "#ffffff", Background: "#da251d"},
	AgencyGO:       {Label: "GO", Foreground: "#ffffff", Background: "#00853f"},
	AgencyYRT:      {Label: "YRT", Foreground: "#ffffff", Background: "#0079c2"},
	AgencyMiWay:    {Label: "MiWay", Foreground: "#000000", Background: "#f7941e"},
	AgencyBrampton: {Label: "Brampton", Foreground: "#ffffff", Background: "#cb2c30"},
}

// StyleFor returns the display style for an agency.
func StyleFor(a Agency) AgencyStyle {
	return agencyStyles[a]
}

// Styles returns the full agency display mapping.
func Styles() map[Agency]AgencyStyle {
	out := make(map[Agency]AgencyStyle, len(agencyStyles))
	for a, s := range agencyStyles {
		out[a] = s
	}
	return out
}
