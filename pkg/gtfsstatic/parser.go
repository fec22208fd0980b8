package gtfsstatic

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gtatransit/internal/domain"
)

// ParseStops extracts stops.txt from a GTFS archive as stop records for
// one agency. Ids are agency-prefixed so they stay globally unique; the
// rider-facing code falls back to the feed's stop_id when stop_code is
// absent.
func ParseStops(reader *zip.Reader, agency domain.Agency) ([]domain.TransitStop, error) {
	var stopsFile *zip.File
	for _, file := range reader.File {
		if file.Name == "stops.txt" {
			stopsFile = file
			break
		}
	}
	if stopsFile == nil {
		return nil, fmt.Errorf("archive has no stops.txt")
	}

	rc, err := stopsFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open stops.txt: %w", err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read stops.txt header: %w", err)
	}
	idx := makeIndex(header)

	prefix := strings.ToUpper(string(agency)) + "_"

	var stops []domain.TransitStop
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stops.txt record: %w", err)
		}

		stopID := getField(record, idx, "stop_id")
		if stopID == "" {
			continue
		}

		lat, err := strconv.ParseFloat(getField(record, idx, "stop_lat"), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(getField(record, idx, "stop_lon"), 64)
		if err != nil {
			continue
		}

		code := getField(record, idx, "stop_code")
		if code == "" {
			code = stopID
		}

		// GTFS location_type 1 marks a station; stations route to the
		// next-trains feed for agencies that have one.
		stopType := ""
		if getField(record, idx, "location_type") == "1" {
			stopType = "station"
		}

		stops = append(stops, domain.TransitStop{
			ID:     prefix + stopID,
			Code:   code,
			Agency: agency,
			Name:   getField(record, idx, "stop_name"),
			Lat:    lat,
			Lon:    lon,
			Type:   stopType,
		})
	}

	return stops, nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
