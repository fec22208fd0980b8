package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"gtatransit/internal/ingestor"
	"gtatransit/internal/store"
)

type HealthHandler struct {
	ingestor *ingestor.StopIngestor
	store    *store.StopStore
}

func NewHealthHandler(ing *ingestor.StopIngestor, s *store.StopStore) *HealthHandler {
	return &HealthHandler{
		ingestor: ing,
		store:    s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	StopCount  int64     `json:"stopCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ingestor.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	count, err := h.store.Size(r.Context())
	if err != nil {
		count = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		StopCount:  count,
		ServerTime: time.Now(),
	})
}
