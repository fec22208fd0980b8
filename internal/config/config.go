package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gtatransit/internal/domain"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GOAPIBaseURL   string
	GOAPIKey       string
	NextBusBaseURL string
	SubwayBaseURL  string

	// StopFeeds maps each agency to its static GTFS zip. GTFSRTFeeds
	// is an opt-in override: agencies listed here get predictions from
	// a GTFS-Realtime trip-update feed instead of their REST API.
	StopFeeds   map[domain.Agency]string
	GTFSRTFeeds map[domain.Agency]string

	StopRefreshInterval  time.Duration
	ArrivalsPollInterval time.Duration
	ArrivalsCacheTTL     time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitExempt    []string
}

func Load() (*Config, error) {
	apiKey := os.Getenv("GO_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GO_API_KEY environment variable is required")
	}

	stopFeeds, err := getFeedsEnv("STOP_FEEDS", defaultStopFeeds())
	if err != nil {
		return nil, fmt.Errorf("invalid STOP_FEEDS: %w", err)
	}
	rtFeeds, err := getFeedsEnv("GTFSRT_FEEDS", nil)
	if err != nil {
		return nil, fmt.Errorf("invalid GTFSRT_FEEDS: %w", err)
	}

	return &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		GOAPIBaseURL:   getEnv("GO_API_URL", "https://api.openmetrolinx.com/OpenDataAPI"),
		GOAPIKey:       apiKey,
		NextBusBaseURL: getEnv("NEXTBUS_API_URL", "https://retro.umoiq.com/service/publicJSONFeed"),
		SubwayBaseURL:  getEnv("SUBWAY_API_URL", "https://www.ttc.ca/ttcapi"),

		StopFeeds:   stopFeeds,
		GTFSRTFeeds: rtFeeds,

		StopRefreshInterval:  getDurationEnv("STOP_REFRESH_INTERVAL", 24*time.Hour),
		ArrivalsPollInterval: getDurationEnv("ARRIVALS_POLL_INTERVAL", 30*time.Second),
		ArrivalsCacheTTL:     getDurationEnv("ARRIVALS_CACHE_TTL", 20*time.Second),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitExempt:    getCSVEnv("RATE_LIMIT_EXEMPT"),
	}, nil
}

func defaultStopFeeds() map[domain.Agency]string {
	return map[domain.Agency]string{
		domain.AgencyTTC:      "https://ckan0.cf.opendata.inter.prod-toronto.ca/dataset/ttc-routes-and-schedules/resource/gtfs/download/TTC_GTFS.zip",
		domain.AgencyGO:       "https://assets.metrolinx.com/raw/upload/Documents/Metrolinx/Open%20Data/GO-GTFS.zip",
		domain.AgencyYRT:      "https://www.yrt.ca/google/google_transit.zip",
		domain.AgencyMiWay:    "https://www.miapp.ca/GTFS/google_transit.zip",
		domain.AgencyBrampton: "https://brampton.maps.arcgis.com/sharing/rest/content/items/gtfs/data/Google_Transit.zip",
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}

// getFeedsEnv parses "agency=url,agency=url" pairs. An empty value
// removes the agency from the defaults, which lets deployments turn a
// single feed off without restating the rest.
func getFeedsEnv(key string, defaults map[domain.Agency]string) (map[domain.Agency]string, error) {
	feeds := make(map[domain.Agency]string, len(defaults))
	for agency, url := range defaults {
		feeds[agency] = url
	}

	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return feeds, nil
	}

	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("expected agency=url, got %q", pair)
		}
		agency, ok := domain.ParseAgency(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown agency %q", name)
		}
		url = strings.TrimSpace(url)
		if url == "" {
			delete(feeds, agency)
			continue
		}
		feeds[agency] = url
	}

	return feeds, nil
}
