// Package ingestor keeps the stop store and the live hub fed: one loop
// refreshes the stop index from agency GTFS feeds, the other polls
// arrivals for stops clients are watching.
package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gtatransit/internal/domain"
	"gtatransit/internal/store"
	"gtatransit/pkg/gtfsstatic"
)

// StopFeed names one agency's static GTFS archive.
type StopFeed struct {
	Agency domain.Agency
	URL    string
}

type StopIngestor struct {
	downloader *gtfsstatic.Downloader
	store      *store.StopStore
	feeds      []StopFeed
	interval   time.Duration
	logger     *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

func NewStopIngestor(downloader *gtfsstatic.Downloader, s *store.StopStore, feeds []StopFeed, interval time.Duration, logger *slog.Logger) *StopIngestor {
	return &StopIngestor{
		downloader: downloader,
		store:      s,
		feeds:      feeds,
		interval:   interval,
		logger:     logger.With("component", "stop_ingestor"),
	}
}

func (i *StopIngestor) Run(ctx context.Context) {
	i.refreshAll(ctx)

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.refreshAll(ctx)
		}
	}
}

// refreshAll re-imports every configured feed, one save batch per
// agency. A failing feed leaves that agency's previous records in place
// and does not block the others.
func (i *StopIngestor) refreshAll(ctx context.Context) {
	anyOK := false
	for _, feed := range i.feeds {
		if err := i.refresh(ctx, feed); err != nil {
			i.logger.Error("stop feed refresh failed", "agency", feed.Agency, "error", err)
			continue
		}
		anyOK = true
	}

	if anyOK && !i.IsReady() {
		i.setReady(true)
		total, _ := i.store.Size(ctx)
		i.logger.Info("stop ingestor ready", "total_stops", total)
	}
}

func (i *StopIngestor) refresh(ctx context.Context, feed StopFeed) error {
	start := time.Now()

	reader, err := i.downloader.Download(ctx, feed.URL)
	if err != nil {
		return err
	}

	stops, err := gtfsstatic.ParseStops(reader, feed.Agency)
	if err != nil {
		return err
	}

	// Sweep-and-reload per agency: the clear and the save are each
	// atomic, the pair is not, so a concurrent range query may briefly
	// see the agency partially populated.
	if err := i.store.ClearAgency(ctx, feed.Agency); err != nil {
		return err
	}
	if err := i.store.SaveStops(ctx, stops); err != nil {
		return err
	}

	i.logger.Info("refreshed stop feed",
		"agency", feed.Agency,
		"stops", len(stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (i *StopIngestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *StopIngestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
