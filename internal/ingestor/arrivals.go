package ingestor

import (
	"context"
	"log/slog"
	"time"

	"gtatransit/internal/arrivals"
	"gtatransit/internal/domain"
	"gtatransit/internal/hub"
	"gtatransit/internal/store"
)

// ArrivalsPoller pushes fresh predictions to the hub for every stop
// with at least one subscriber.
type ArrivalsPoller struct {
	service  *arrivals.Service
	store    *store.StopStore
	hub      *hub.Hub
	interval time.Duration
	logger   *slog.Logger
}

func NewArrivalsPoller(service *arrivals.Service, s *store.StopStore, h *hub.Hub, interval time.Duration, logger *slog.Logger) *ArrivalsPoller {
	return &ArrivalsPoller{
		service:  service,
		store:    s,
		hub:      h,
		interval: interval,
		logger:   logger.With("component", "arrivals_poller"),
	}
}

func (p *ArrivalsPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *ArrivalsPoller) poll(ctx context.Context) {
	stopIDs := p.hub.SubscribedStops()
	if len(stopIDs) == 0 {
		return
	}

	start := time.Now()
	updates := make([]domain.StopArrivals, 0, len(stopIDs))

	for _, id := range stopIDs {
		stop, ok, err := p.store.GetStop(ctx, id)
		if err != nil || !ok {
			continue
		}

		predictions, err := p.service.ForStop(ctx, stop.TransitStop)
		if err != nil {
			continue
		}

		updates = append(updates, domain.StopArrivals{
			StopID:      id,
			Predictions: predictions,
		})
	}

	p.hub.Broadcast(updates)

	p.logger.Debug("arrivals poll completed",
		"subscribed_stops", len(stopIDs),
		"updates", len(updates),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
