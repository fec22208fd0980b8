// Package store persists transit stops in Redis and answers spatial and
// code lookups against them.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gtatransit/internal/domain"
	"gtatransit/internal/geo"
)

// Key layout, all under one prefix:
//
//	stop:<id>          hash of the stop record
//	idx:lat            zset, member=id score=lat
//	idx:lon            zset, member=id score=lon
//	idx:agency:<a>     set of ids
//	idx:code:<code>    set of ids (not agency-unique)
const defaultPrefix = "gta:"

// StopStore is the process-wide handle to the stop database. The Redis
// connection is established lazily on first use and memoized; concurrent
// first-time callers wait on the same initialization instead of dialing
// twice. Failures propagate to the caller, no retries.
type StopStore struct {
	addr     string
	password string
	db       int
	prefix   string
	logger   *slog.Logger

	mu      sync.Mutex
	client  *redis.Client
	dialErr error
	dialed  bool
}

func NewStopStore(addr, password string, db int, logger *slog.Logger) *StopStore {
	return &StopStore{
		addr:     addr,
		password: password,
		db:       db,
		prefix:   defaultPrefix,
		logger:   logger.With("component", "stop_store"),
	}
}

func (s *StopStore) conn(ctx context.Context) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dialed {
		return s.client, s.dialErr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.addr,
		Password: s.password,
		DB:       s.db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		// The client is never handed out, so release its pool here.
		client.Close()
		s.dialed = true
		s.dialErr = fmt.Errorf("redis connection failed: %w", err)
		return nil, s.dialErr
	}

	s.dialed = true
	s.client = client
	s.logger.Info("connected to redis", "addr", s.addr, "db", s.db)
	return s.client, nil
}

// Close releases the connection if one was established.
func (s *StopStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *StopStore) stopKey(id string) string {
	return s.prefix + "stop:" + id
}

func (s *StopStore) latIndexKey() string {
	return s.prefix + "idx:lat"
}

func (s *StopStore) lonIndexKey() string {
	return s.prefix + "idx:lon"
}

func (s *StopStore) agencyIndexKey(a domain.Agency) string {
	return s.prefix + "idx:agency:" + string(a)
}

func (s *StopStore) codeIndexKey(code string) string {
	return s.prefix + "idx:code:" + code
}

// SaveStops upserts a batch of stops by id and maintains all four
// secondary indexes. The batch is written as one transaction; existing
// records of other batches are untouched, so repeated calls populate the
// store incrementally, one batch per agency feed.
func (s *StopStore) SaveStops(ctx context.Context, stops []domain.TransitStop) error {
	if len(stops) == 0 {
		return nil
	}

	client, err := s.conn(ctx)
	if err != nil {
		return err
	}

	start := time.Now()

	// Read the previous agency/code of each id so replaced records can be
	// dropped from the sets they no longer belong to.
	readPipe := client.Pipeline()
	prior := make([]*redis.SliceCmd, len(stops))
	for i, stop := range stops {
		prior[i] = readPipe.HMGet(ctx, s.stopKey(stop.ID), "agency", "code")
	}
	if _, err := readPipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("reading existing stops: %w", err)
	}

	pipe := client.TxPipeline()
	for i, stop := range stops {
		if vals, err := prior[i].Result(); err == nil && len(vals) == 2 {
			oldAgency, _ := vals[0].(string)
			oldCode, _ := vals[1].(string)
			if oldAgency != "" && oldAgency != string(stop.Agency) {
				pipe.SRem(ctx, s.agencyIndexKey(domain.Agency(oldAgency)), stop.ID)
			}
			if oldCode != "" && oldCode != stop.Code {
				pipe.SRem(ctx, s.codeIndexKey(oldCode), stop.ID)
			}
		}

		// Insert-or-replace: drop the old hash so stale optional fields
		// do not survive the upsert.
		pipe.Del(ctx, s.stopKey(stop.ID))
		pipe.HSet(ctx, s.stopKey(stop.ID), stopFields(stop))
		pipe.ZAdd(ctx, s.latIndexKey(), redis.Z{Score: stop.Lat, Member: stop.ID})
		pipe.ZAdd(ctx, s.lonIndexKey(), redis.Z{Score: stop.Lon, Member: stop.ID})
		pipe.SAdd(ctx, s.agencyIndexKey(stop.Agency), stop.ID)
		pipe.SAdd(ctx, s.codeIndexKey(stop.Code), stop.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving stops: %w", err)
	}

	s.logger.Debug("saved stop batch",
		"count", len(stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// ClearAgency deletes every stop of one agency via the agency index.
// Other agencies' records are untouched.
func (s *StopStore) ClearAgency(ctx context.Context, agency domain.Agency) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}

	ids, err := client.SMembers(ctx, s.agencyIndexKey(agency)).Result()
	if err != nil {
		return fmt.Errorf("reading agency index: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	// Codes are needed to unlink the code index before the hashes go away.
	readPipe := client.Pipeline()
	codeCmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		codeCmds[i] = readPipe.HGet(ctx, s.stopKey(id), "code")
	}
	if _, err := readPipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("reading stop codes: %w", err)
	}

	pipe := client.TxPipeline()
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
		pipe.Del(ctx, s.stopKey(id))
		if code, err := codeCmds[i].Result(); err == nil && code != "" {
			pipe.SRem(ctx, s.codeIndexKey(code), id)
		}
	}
	pipe.ZRem(ctx, s.latIndexKey(), members...)
	pipe.ZRem(ctx, s.lonIndexKey(), members...)
	pipe.Del(ctx, s.agencyIndexKey(agency))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clearing agency %s: %w", agency, err)
	}

	s.logger.Info("cleared agency", "agency", agency, "count", len(ids))
	return nil
}

// Clear deletes all records and indexes regardless of agency.
func (s *StopStore) Clear(ctx context.Context) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}

	iter := client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}

	s.logger.Info("cleared all stops")
	return nil
}

// GetStopsWithinRange returns stops within `rng` degrees of the query
// point, closest first by great-circle distance. Phase 1 restricts
// candidates with a range scan of the latitude index; phase 2 filters
// each candidate by longitude window, optional agency, and the true
// Euclidean disc before computing the real distance. agencyFilter == ""
// means no agency filtering.
func (s *StopStore) GetStopsWithinRange(ctx context.Context, lat, lon, rng float64, agencyFilter domain.Agency) ([]domain.StopWithDistance, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	ids, err := client.ZRangeByScore(ctx, s.latIndexKey(), &redis.ZRangeBy{
		Min: formatFloat(lat - rng),
		Max: formatFloat(lat + rng),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("latitude range scan: %w", err)
	}
	if len(ids) == 0 {
		return []domain.StopWithDistance{}, nil
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.stopKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	results := make([]domain.StopWithDistance, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		stop := stopFromFields(fields)

		if stop.Lon < lon-rng || stop.Lon > lon+rng {
			continue
		}
		if agencyFilter != "" && stop.Agency != agencyFilter {
			continue
		}

		// The bounding box is a superset of the disc; re-check against it.
		planar := geo.Planar(lat, lon, stop.Lat, stop.Lon)
		if planar > rng {
			continue
		}

		results = append(results, domain.StopWithDistance{
			TransitStop:  stop,
			Distance:     planar,
			RealDistance: geo.Haversine(lat, lon, stop.Lat, stop.Lon),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RealDistance < results[j].RealDistance
	})

	s.logger.Debug("range query",
		"candidates", len(ids),
		"matches", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// GetStop looks a stop up by primary key. Distance fields are zero; they
// are only meaningful inside a spatial query.
func (s *StopStore) GetStop(ctx context.Context, id string) (domain.StopWithDistance, bool, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return domain.StopWithDistance{}, false, err
	}

	fields, err := client.HGetAll(ctx, s.stopKey(id)).Result()
	if err != nil {
		return domain.StopWithDistance{}, false, fmt.Errorf("loading stop %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.StopWithDistance{}, false, nil
	}

	return domain.StopWithDistance{TransitStop: stopFromFields(fields)}, true, nil
}

// GetStopByCode scans the code index and filters by agency in
// application logic; the code index alone is not agency-unique. When the
// data holds duplicate (code, agency) pairs an unspecified one wins.
func (s *StopStore) GetStopByCode(ctx context.Context, code string, agency domain.Agency) (domain.StopWithDistance, bool, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return domain.StopWithDistance{}, false, err
	}

	ids, err := client.SMembers(ctx, s.codeIndexKey(code)).Result()
	if err != nil {
		return domain.StopWithDistance{}, false, fmt.Errorf("reading code index: %w", err)
	}

	for _, id := range ids {
		fields, err := client.HGetAll(ctx, s.stopKey(id)).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		stop := stopFromFields(fields)
		if stop.Agency == agency {
			return domain.StopWithDistance{TransitStop: stop}, true, nil
		}
	}

	return domain.StopWithDistance{}, false, nil
}

// Size returns the total number of stored stops.
func (s *StopStore) Size(ctx context.Context) (int64, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.ZCard(ctx, s.latIndexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("counting stops: %w", err)
	}
	return n, nil
}

// AgencyCount returns the number of stored stops for one agency.
func (s *StopStore) AgencyCount(ctx context.Context, agency domain.Agency) (int64, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.SCard(ctx, s.agencyIndexKey(agency)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting agency %s: %w", agency, err)
	}
	return n, nil
}

func stopFields(stop domain.TransitStop) map[string]interface{} {
	fields := map[string]interface{}{
		"id":     stop.ID,
		"code":   stop.Code,
		"agency": string(stop.Agency),
		"name":   stop.Name,
		"lat":    formatFloat(stop.Lat),
		"lon":    formatFloat(stop.Lon),
	}
	if stop.Title != "" {
		fields["title"] = stop.Title
	}
	if stop.Lines != "" {
		fields["lines"] = stop.Lines
	}
	if stop.Directions != "" {
		fields["directions"] = stop.Directions
	}
	if stop.Type != "" {
		fields["type"] = stop.Type
	}
	return fields
}

func stopFromFields(fields map[string]string) domain.TransitStop {
	lat, _ := strconv.ParseFloat(fields["lat"], 64)
	lon, _ := strconv.ParseFloat(fields["lon"], 64)
	stop := domain.TransitStop{
		ID:         fields["id"],
		Code:       fields["code"],
		Agency:     domain.Agency(fields["agency"]),
		Name:       fields["name"],
		Lat:        lat,
		Lon:        lon,
		Title:      fields["title"],
		Lines:      fields["lines"],
		Directions: fields["directions"],
		Type:       fields["type"],
	}
	return stop.WithDefaults()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
