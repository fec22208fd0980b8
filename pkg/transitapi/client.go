// Package transitapi fetches raw arrival payloads from the regional
// agency APIs. It returns bodies as delivered; normalization happens in
// internal/normalize. Timeout policy lives here, above the normalizers.
package transitapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type Client struct {
	goBaseURL      string
	goAPIKey       string
	nextbusBaseURL string
	subwayBaseURL  string
	httpClient     *http.Client
}

func New(goBaseURL, goAPIKey, nextbusBaseURL, subwayBaseURL string, timeout time.Duration) *Client {
	return &Client{
		goBaseURL:      goBaseURL,
		goAPIKey:       goAPIKey,
		nextbusBaseURL: nextbusBaseURL,
		subwayBaseURL:  subwayBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GONextService fetches the next-service envelope for a GO stop code.
func (c *Client) GONextService(ctx context.Context, stopCode string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/api/V1/Stop/NextService/%s?key=%s",
		c.goBaseURL, url.PathEscape(stopCode), url.QueryEscape(c.goAPIKey))
	return c.get(ctx, reqURL)
}

// Predictions fetches a NextBus-style prediction tree for one stop of
// one agency.
func (c *Client) Predictions(ctx context.Context, agencyTag, stopCode string) ([]byte, error) {
	params := url.Values{}
	params.Set("command", "predictions")
	params.Set("a", agencyTag)
	params.Set("stopId", stopCode)

	reqURL := fmt.Sprintf("%s?%s", c.nextbusBaseURL, params.Encode())
	return c.get(ctx, reqURL)
}

// SubwayTimes fetches the next-trains payload for a subway station.
func (c *Client) SubwayTimes(ctx context.Context, stationID string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/ntas/%s", c.subwayBaseURL, url.PathEscape(stationID))
	return c.get(ctx, reqURL)
}

// GTFSRealtime fetches and decodes a GTFS-Realtime protobuf feed.
func (c *Client) GTFSRealtime(ctx context.Context, feedURL string) (*gtfs.FeedMessage, error) {
	body, err := c.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("decoding gtfs-rt feed: %w", err)
	}
	return feed, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
