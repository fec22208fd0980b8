package store

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"gtatransit/internal/domain"
	"gtatransit/internal/geo"
)

func newTestStore(t *testing.T) *StopStore {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStopStore(mr.Addr(), "", 0, logger)
	t.Cleanup(func() { s.Close() })
	return s
}

func testStops() []domain.TransitStop {
	return []domain.TransitStop{
		{ID: "GO_UN", Code: "UN", Agency: domain.AgencyGO, Name: "Union Station", Lat: 43.645, Lon: -79.380},
		{ID: "GO_EX", Code: "EX", Agency: domain.AgencyGO, Name: "Exhibition", Lat: 43.636, Lon: -79.419},
		{ID: "TTC_14339", Code: "14339", Agency: domain.AgencyTTC, Name: "King St At Yonge St", Lat: 43.649, Lon: -79.378},
		{ID: "YRT_1020", Code: "1020", Agency: domain.AgencyYRT, Name: "Yonge / Major Mackenzie", Lat: 43.877, Lon: -79.437},
	}
}

func TestSaveStopsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stops := testStops()
	if err := s.SaveStops(ctx, stops); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	for _, want := range stops {
		got, ok, err := s.GetStop(ctx, want.ID)
		if err != nil {
			t.Fatalf("GetStop(%s): %v", want.ID, err)
		}
		if !ok {
			t.Fatalf("GetStop(%s): not found", want.ID)
		}
		if got.Code != want.Code || got.Agency != want.Agency || got.Name != want.Name {
			t.Errorf("GetStop(%s) = %+v, want fields of %+v", want.ID, got.TransitStop, want)
		}
		if got.Lat != want.Lat || got.Lon != want.Lon {
			t.Errorf("GetStop(%s) coords = (%f, %f), want (%f, %f)", want.ID, got.Lat, got.Lon, want.Lat, want.Lon)
		}
		if got.Distance != 0 || got.RealDistance != 0 {
			t.Errorf("GetStop(%s) has non-zero distances outside a spatial query", want.ID)
		}
		if got.Title != want.Name {
			t.Errorf("GetStop(%s) Title = %q, want name fallback %q", want.ID, got.Title, want.Name)
		}
	}
}

func TestGetStopMiss(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetStop(context.Background(), "GO_NOPE")
	if err != nil {
		t.Fatalf("GetStop: %v", err)
	}
	if ok {
		t.Error("GetStop on absent id reported found")
	}
}

func TestGetStopsWithinRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveStops(ctx, testStops()); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	// Union Station neighborhood; YRT stop is far outside.
	results, err := s.GetStopsWithinRange(ctx, 43.645, -79.380, 0.05, "")
	if err != nil {
		t.Fatalf("GetStopsWithinRange: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d stops, want 3", len(results))
	}
	if results[0].ID != "GO_UN" {
		t.Errorf("closest stop = %s, want GO_UN", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].RealDistance < results[i-1].RealDistance {
			t.Errorf("results not sorted by real distance at %d", i)
		}
	}
	for _, r := range results {
		if r.Distance > 0.05 {
			t.Errorf("stop %s planar distance %f exceeds range", r.ID, r.Distance)
		}
	}
}

func TestGetStopsWithinRangeSelfMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stop := domain.TransitStop{ID: "GO_UN", Code: "UN", Agency: domain.AgencyGO, Name: "Union Station", Lat: 43.645, Lon: -79.380}
	if err := s.SaveStops(ctx, []domain.TransitStop{stop}); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	results, err := s.GetStopsWithinRange(ctx, 43.645, -79.380, 0.01, "")
	if err != nil {
		t.Fatalf("GetStopsWithinRange: %v", err)
	}
	if len(results) != 1 || results[0].ID != "GO_UN" {
		t.Fatalf("self query returned %v, want GO_UN", results)
	}
	if results[0].RealDistance > 0.001 {
		t.Errorf("RealDistance = %f, want ~0", results[0].RealDistance)
	}
}

// The bounding-box prefilter is a superset of the disc; stops in the box
// corners must still be rejected.
func TestGetStopsWithinRangeRejectsBoxCorners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	corner := domain.TransitStop{ID: "TTC_C", Code: "C", Agency: domain.AgencyTTC, Name: "Corner", Lat: 43.654, Lon: -79.371}
	if err := s.SaveStops(ctx, []domain.TransitStop{corner}); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	// dLat = dLon = 0.009: inside the 0.01 box, outside the 0.01 disc.
	results, err := s.GetStopsWithinRange(ctx, 43.645, -79.380, 0.01, "")
	if err != nil {
		t.Fatalf("GetStopsWithinRange: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("corner stop leaked through the disc filter: %v", results)
	}
}

func TestGetStopsWithinRangeAgencyFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveStops(ctx, testStops()); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	results, err := s.GetStopsWithinRange(ctx, 43.645, -79.380, 0.05, domain.AgencyGO)
	if err != nil {
		t.Fatalf("GetStopsWithinRange: %v", err)
	}
	for _, r := range results {
		if r.Agency != domain.AgencyGO {
			t.Errorf("agency filter leaked %s (%s)", r.ID, r.Agency)
		}
	}
	if len(results) != 2 {
		t.Errorf("got %d GO stops, want 2", len(results))
	}
}

func TestGetStopsWithinRangeRandomized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	stops := make([]domain.TransitStop, 0, 200)
	for i := 0; i < 200; i++ {
		stops = append(stops, domain.TransitStop{
			ID:     "TTC_R" + string(rune('A'+i/26)) + string(rune('A'+i%26)),
			Code:   "r",
			Agency: domain.AgencyTTC,
			Name:   "Random",
			Lat:    43.6 + rng.Float64()*0.2,
			Lon:    -79.5 + rng.Float64()*0.2,
		})
	}
	if err := s.SaveStops(ctx, stops); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	for trial := 0; trial < 10; trial++ {
		qLat := 43.6 + rng.Float64()*0.2
		qLon := -79.5 + rng.Float64()*0.2
		radius := rng.Float64() * 0.1

		results, err := s.GetStopsWithinRange(ctx, qLat, qLon, radius, "")
		if err != nil {
			t.Fatalf("GetStopsWithinRange: %v", err)
		}
		for i, r := range results {
			planar := geo.Planar(qLat, qLon, r.Lat, r.Lon)
			if planar > radius+1e-9 {
				t.Errorf("trial %d: stop %s at planar %f exceeds radius %f", trial, r.ID, planar, radius)
			}
			if math.Abs(planar-r.Distance) > 1e-9 {
				t.Errorf("trial %d: reported planar distance %f, recomputed %f", trial, r.Distance, planar)
			}
			if i > 0 && results[i].RealDistance < results[i-1].RealDistance {
				t.Errorf("trial %d: results not sorted at %d", trial, i)
			}
		}
	}
}

func TestClearAgency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveStops(ctx, testStops()); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	before, err := s.AgencyCount(ctx, domain.AgencyGO)
	if err != nil {
		t.Fatalf("AgencyCount: %v", err)
	}
	if before != 2 {
		t.Fatalf("GO count = %d, want 2", before)
	}

	if err := s.ClearAgency(ctx, domain.AgencyGO); err != nil {
		t.Fatalf("ClearAgency: %v", err)
	}

	after, _ := s.AgencyCount(ctx, domain.AgencyGO)
	if after != 0 {
		t.Errorf("GO count after clear = %d, want 0", after)
	}
	ttcCount, _ := s.AgencyCount(ctx, domain.AgencyTTC)
	if ttcCount != 1 {
		t.Errorf("TTC count after GO clear = %d, want 1", ttcCount)
	}

	if _, ok, _ := s.GetStop(ctx, "GO_UN"); ok {
		t.Error("GO_UN still present after ClearAgency")
	}
	if _, ok, _ := s.GetStop(ctx, "TTC_14339"); !ok {
		t.Error("TTC stop lost by ClearAgency(go)")
	}
	if _, ok, _ := s.GetStopByCode(ctx, "UN", domain.AgencyGO); ok {
		t.Error("code index still resolves a cleared stop")
	}

	size, _ := s.Size(ctx)
	if size != 2 {
		t.Errorf("Size after clear = %d, want 2", size)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveStops(ctx, testStops()); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	size, err := s.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 0 {
		t.Errorf("Size after Clear = %d, want 0", size)
	}
}

func TestGetStopByCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same rider-facing code in two agencies.
	stops := []domain.TransitStop{
		{ID: "YRT_500", Code: "500", Agency: domain.AgencyYRT, Name: "Yonge St Stop", Lat: 43.88, Lon: -79.44},
		{ID: "MIWAY_500", Code: "500", Agency: domain.AgencyMiWay, Name: "Hurontario Stop", Lat: 43.59, Lon: -79.64},
	}
	if err := s.SaveStops(ctx, stops); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	got, ok, err := s.GetStopByCode(ctx, "500", domain.AgencyMiWay)
	if err != nil {
		t.Fatalf("GetStopByCode: %v", err)
	}
	if !ok || got.ID != "MIWAY_500" {
		t.Errorf("GetStopByCode(500, miway) = (%+v, %v), want MIWAY_500", got, ok)
	}

	if _, ok, _ := s.GetStopByCode(ctx, "500", domain.AgencyBrampton); ok {
		t.Error("GetStopByCode matched an agency with no such code")
	}
	if _, ok, _ := s.GetStopByCode(ctx, "501", domain.AgencyYRT); ok {
		t.Error("GetStopByCode matched an absent code")
	}
}

func TestSaveStopsUpsertMovesIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := domain.TransitStop{ID: "GO_UN", Code: "UN", Agency: domain.AgencyGO, Name: "Union Station", Lat: 43.645, Lon: -79.380}
	if err := s.SaveStops(ctx, []domain.TransitStop{original}); err != nil {
		t.Fatalf("SaveStops: %v", err)
	}

	replacement := original
	replacement.Code = "UNST"
	replacement.Agency = domain.AgencyTTC
	replacement.Lat = 43.646
	if err := s.SaveStops(ctx, []domain.TransitStop{replacement}); err != nil {
		t.Fatalf("SaveStops upsert: %v", err)
	}

	size, _ := s.Size(ctx)
	if size != 1 {
		t.Errorf("Size after upsert = %d, want 1", size)
	}
	goCount, _ := s.AgencyCount(ctx, domain.AgencyGO)
	if goCount != 0 {
		t.Errorf("old agency index kept the replaced stop (count %d)", goCount)
	}
	ttcCount, _ := s.AgencyCount(ctx, domain.AgencyTTC)
	if ttcCount != 1 {
		t.Errorf("new agency index missing the stop (count %d)", ttcCount)
	}
	if _, ok, _ := s.GetStopByCode(ctx, "UN", domain.AgencyGO); ok {
		t.Error("old code index kept the replaced stop")
	}
	if got, ok, _ := s.GetStopByCode(ctx, "UNST", domain.AgencyTTC); !ok || got.Lat != 43.646 {
		t.Errorf("new code lookup = (%+v, %v)", got, ok)
	}
}

func TestConnectionFailurePropagates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStopStore("127.0.0.1:1", "", 0, logger)
	defer s.Close()

	if err := s.SaveStops(context.Background(), testStops()); err == nil {
		t.Fatal("SaveStops succeeded against an unreachable address")
	}
	// The failed dial is memoized; later calls fail the same way without
	// re-dialing.
	if _, err := s.Size(context.Background()); err == nil {
		t.Fatal("Size succeeded after failed initialization")
	}
	// The abandoned client was already released, so Close has nothing
	// left to tear down.
	if err := s.Close(); err != nil {
		t.Fatalf("Close after failed dial: %v", err)
	}
}
