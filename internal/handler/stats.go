package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"gtatransit/internal/domain"
	"gtatransit/internal/hub"
	"gtatransit/internal/store"
)

type StatsHandler struct {
	store     *store.StopStore
	hub       *hub.Hub
	startTime time.Time
}

func NewStatsHandler(s *store.StopStore, h *hub.Hub) *StatsHandler {
	return &StatsHandler{
		store:     s,
		hub:       h,
		startTime: time.Now(),
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Stops     StopStatsResponse      `json:"stops"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	Version       string    `json:"version"`
}

type StopStatsResponse struct {
	Total    int64                   `json:"total"`
	ByAgency map[domain.Agency]int64 `json:"by_agency"`
}

type WebSocketStatsResponse struct {
	Connections     int `json:"connections"`
	SubscribedStops int `json:"subscribed_stops"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	total, _ := h.store.Size(r.Context())
	byAgency := make(map[domain.Agency]int64, len(domain.Agencies()))
	for _, agency := range domain.Agencies() {
		count, err := h.store.AgencyCount(r.Context(), agency)
		if err != nil {
			continue
		}
		byAgency[agency] = count
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.startTime,
			Version:       "1.0.0",
		},
		Stops: StopStatsResponse{
			Total:    total,
			ByAgency: byAgency,
		},
		WebSocket: WebSocketStatsResponse{
			Connections:     h.hub.ClientCount(),
			SubscribedStops: len(h.hub.SubscribedStops()),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
