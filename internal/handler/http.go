package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gtatransit/internal/domain"
	"gtatransit/internal/store"
)

type StopHandler struct {
	store  *store.StopStore
	logger *slog.Logger
}

func NewStopHandler(s *store.StopStore, logger *slog.Logger) *StopHandler {
	return &StopHandler{
		store:  s,
		logger: logger.With("handler", "stops"),
	}
}

type NearbyStopsResponse struct {
	Stops      []domain.StopWithDistance `json:"stops"`
	Count      int                       `json:"count"`
	ServerTime time.Time                 `json:"serverTime"`
}

// defaultRange is the search radius in degrees when the client sends
// none; roughly a one-kilometer box at Toronto's latitude.
const defaultRange = 0.01

func (h *StopHandler) NearbyStops(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid or missing lat parameter")
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid or missing lon parameter")
		return
	}

	rng := defaultRange
	if rangeStr := r.URL.Query().Get("range"); rangeStr != "" {
		rng, err = strconv.ParseFloat(rangeStr, 64)
		if err != nil || rng <= 0 {
			respondError(w, http.StatusBadRequest, "invalid range parameter")
			return
		}
	}

	var agencyFilter domain.Agency
	if agencyStr := r.URL.Query().Get("agency"); agencyStr != "" {
		agency, ok := domain.ParseAgency(agencyStr)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown agency: "+agencyStr)
			return
		}
		agencyFilter = agency
	}

	stops, err := h.store.GetStopsWithinRange(r.Context(), lat, lon, rng, agencyFilter)
	if err != nil {
		h.logger.Error("range query failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "stop data unavailable")
		return
	}

	h.logger.Debug("NearbyStops response",
		"lat", lat,
		"lon", lon,
		"range", rng,
		"count", len(stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, NearbyStopsResponse{
		Stops:      stops,
		Count:      len(stops),
		ServerTime: time.Now(),
	})
}

func (h *StopHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing stop id")
		return
	}

	stop, ok, err := h.store.GetStop(r.Context(), id)
	if err != nil {
		h.logger.Error("stop lookup failed", "stop_id", id, "error", err)
		respondError(w, http.StatusServiceUnavailable, "stop data unavailable")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}

	respondJSON(w, http.StatusOK, stop)
}

func (h *StopHandler) GetStopByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing stop code")
		return
	}

	// A code is only meaningful alongside its agency.
	agency, ok := domain.ParseAgency(r.URL.Query().Get("agency"))
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or unknown agency parameter")
		return
	}

	stop, found, err := h.store.GetStopByCode(r.Context(), code, agency)
	if err != nil {
		h.logger.Error("code lookup failed", "code", code, "agency", agency, "error", err)
		respondError(w, http.StatusServiceUnavailable, "stop data unavailable")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}

	respondJSON(w, http.StatusOK, stop)
}

type AgenciesResponse struct {
	Agencies map[domain.Agency]domain.AgencyStyle `json:"agencies"`
}

func (h *StopHandler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, AgenciesResponse{Agencies: domain.Styles()})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
