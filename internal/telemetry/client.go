// Package telemetry fetches the upstream node list and turns it into
// geolocated cluster.Node values.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Record is one raw node entry as returned upstream.
type Record map[string]any

// Client fetches node records from the telemetry endpoint.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for url. A zero timeout defaults to 30s.
func NewClient(url, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the current node records.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching nodes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("telemetry API error (%d): %s", resp.StatusCode, string(body))
	}

	records, err := DecodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return records, nil
}

// DecodeRecords accepts either a bare JSON array of records or an object
// wrapping them under "nodes" or "data".
func DecodeRecords(r io.Reader) ([]Record, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("expected a JSON array or object: %w", err)
	}
	for _, key := range []string{"nodes", "data"} {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &records); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return records, nil
	}
	return nil, fmt.Errorf("no node list found (want an array or a \"nodes\" field)")
}
