// Package gtfsrt fetches and decodes a GTFS-Realtime feed over HTTPS.
// Grounded on FabianUB-minibarcelona3d's internal/realtime/rodalies
// client (the same fetch-then-proto.Unmarshal shape) and
// kasmar00-gtfs-polish-trains, both of which consume
// github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs the same
// way.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Client fetches a GTFS-RT feed with a bounded connect/read timeout
// (spec.md §4.4 step 1, §5).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New builds a Client with the given fetch timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Fetch retrieves and decodes one feed snapshot. A non-2xx response, a
// transport error, or a protobuf decode failure are both mapped to the
// same FeedTransport/FeedParse class in spec.md §7: the caller treats
// either as a single fetch failure.
func (c *Client) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	return &msg, nil
}

// TripUpdates extracts the TripUpdate entities from a feed, ignoring
// VehiclePosition and Alert entities — the core consumes only
// TripUpdate (spec.md §6).
func TripUpdates(msg *gtfs.FeedMessage) []*gtfs.TripUpdate {
	var updates []*gtfs.TripUpdate
	for _, e := range msg.GetEntity() {
		if tu := e.GetTripUpdate(); tu != nil {
			updates = append(updates, tu)
		}
	}
	return updates
}
