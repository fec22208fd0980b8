package handler

import (
	"log/slog"
	"net/http"
	"time"

	"gtatransit/internal/arrivals"
	"gtatransit/internal/domain"
	"gtatransit/internal/store"
)

type ArrivalsHandler struct {
	store   *store.StopStore
	service *arrivals.Service
	logger  *slog.Logger
}

func NewArrivalsHandler(s *store.StopStore, svc *arrivals.Service, logger *slog.Logger) *ArrivalsHandler {
	return &ArrivalsHandler{
		store:   s,
		service: svc,
		logger:  logger.With("handler", "arrivals"),
	}
}

type ArrivalsResponse struct {
	StopID      string                     `json:"stopId"`
	Predictions []domain.ArrivalPrediction `json:"predictions"`
	ServerTime  time.Time                  `json:"serverTime"`
}

func (h *ArrivalsHandler) StopArrivals(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

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

	predictions, err := h.service.ForStop(r.Context(), stop.TransitStop)
	if err != nil {
		h.logger.Error("arrivals fetch failed", "stop_id", id, "agency", stop.Agency, "error", err)
		respondError(w, http.StatusBadGateway, "upstream agency unavailable")
		return
	}

	h.logger.Debug("StopArrivals response",
		"stop_id", id,
		"agency", stop.Agency,
		"predictions", len(predictions),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, ArrivalsResponse{
		StopID:      stop.ID,
		Predictions: predictions,
		ServerTime:  time.Now(),
	})
}
