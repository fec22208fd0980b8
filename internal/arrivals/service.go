// Package arrivals turns a stop into its current arrival predictions by
// fetching the owning agency's feed and running the matching normalizer.
package arrivals

import (
	"context"
	"log/slog"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"gtatransit/internal/cache"
	"gtatransit/internal/domain"
	"gtatransit/internal/normalize"
)

// Fetcher is the upstream API surface the service needs; satisfied by
// transitapi.Client.
type Fetcher interface {
	GONextService(ctx context.Context, stopCode string) ([]byte, error)
	Predictions(ctx context.Context, agencyTag, stopCode string) ([]byte, error)
	SubwayTimes(ctx context.Context, stationID string) ([]byte, error)
	GTFSRealtime(ctx context.Context, feedURL string) (*gtfs.FeedMessage, error)
}

// nextbusTags maps agencies on the NextBus prediction family to their
// upstream agency tags.
var nextbusTags = map[domain.Agency]string{
	domain.AgencyTTC:      "ttc",
	domain.AgencyYRT:      "yrt",
	domain.AgencyMiWay:    "miway",
	domain.AgencyBrampton: "brampton",
}

type Service struct {
	fetcher Fetcher
	rtFeeds map[domain.Agency]string
	cache   *cache.Cache[[]domain.ArrivalPrediction]
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an arrival service. rtFeeds optionally maps agencies to
// GTFS-Realtime feed URLs; an agency with an entry is served from
// GTFS-RT instead of its JSON API.
func New(fetcher Fetcher, rtFeeds map[domain.Agency]string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		rtFeeds: rtFeeds,
		cache:   cache.New[[]domain.ArrivalPrediction](ttl),
		logger:  logger.With("component", "arrivals"),
		now:     time.Now,
	}
}

// ForStop fetches and normalizes the arrivals for one stop. Responses
// are cached briefly per stop id; fetch errors propagate so callers can
// surface a data-unavailable state.
func (s *Service) ForStop(ctx context.Context, stop domain.TransitStop) ([]domain.ArrivalPrediction, error) {
	if cached, ok := s.cache.Get(stop.ID); ok {
		return cached, nil
	}

	start := time.Now()
	predictions, err := s.fetch(ctx, stop)
	if err != nil {
		s.logger.Error("arrival fetch failed", "stop_id", stop.ID, "agency", stop.Agency, "error", err)
		return nil, err
	}

	s.logger.Debug("fetched arrivals",
		"stop_id", stop.ID,
		"agency", stop.Agency,
		"count", len(predictions),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.cache.Set(stop.ID, predictions)
	return predictions, nil
}

func (s *Service) fetch(ctx context.Context, stop domain.TransitStop) ([]domain.ArrivalPrediction, error) {
	if feedURL, ok := s.rtFeeds[stop.Agency]; ok {
		feed, err := s.fetcher.GTFSRealtime(ctx, feedURL)
		if err != nil {
			return nil, err
		}
		return normalize.GTFSRT(feed, stop.Code, s.now()), nil
	}

	switch stop.Agency {
	case domain.AgencyGO:
		payload, err := s.fetcher.GONextService(ctx, stop.Code)
		if err != nil {
			return nil, err
		}
		return normalize.GO(payload, s.now()), nil

	case domain.AgencyTTC:
		if stop.Type == "station" {
			payload, err := s.fetcher.SubwayTimes(ctx, stop.Code)
			if err != nil {
				return nil, err
			}
			return normalize.Subway(payload), nil
		}
		fallthrough

	default:
		payload, err := s.fetcher.Predictions(ctx, nextbusTags[stop.Agency], stop.Code)
		if err != nil {
			return nil, err
		}
		return normalize.NextBus(payload), nil
	}
}
