// Package gtfsstatic downloads agency GTFS static archives and extracts
// stop records from them.
package gtfsstatic

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "gtfs_downloader"),
	}
}

// Download fetches a GTFS zip and opens it for reading.
func (d *Downloader) Download(ctx context.Context, feedURL string) (*zip.Reader, error) {
	start := time.Now()
	d.logger.Info("downloading GTFS feed", "url", feedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "gtatransit/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download gtfs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gtfs body: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs zip: %w", err)
	}

	d.logger.Info("downloaded GTFS feed",
		"url", feedURL,
		"size_bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reader, nil
}
