// Package steam resolves application names and install directories.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StoreClient looks up display names through the store appdetails endpoint.
type StoreClient struct {
	endpoint  string
	userAgent string
	client    HTTPDoer

	mu    sync.Mutex
	names map[int64]string
}

func NewStoreClient(endpoint, userAgent string, client HTTPDoer) *StoreClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &StoreClient{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    client,
		names:     make(map[int64]string),
	}
}

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Name string `json:"name"`
	} `json:"data"`
}

func (c *StoreClient) ResolveName(ctx context.Context, appID int64) (string, error) {
	c.mu.Lock()
	name, ok := c.names[appID]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse store endpoint: %w", err)
	}
	id := strconv.FormatInt(appID, 10)
	q := u.Query()
	q.Set("appids", id)
	q.Set("filters", "basic")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("store api request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]appDetails
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode store api response: %w", err)
	}
	details, ok := payload[id]
	if !ok || !details.Success || strings.TrimSpace(details.Data.Name) == "" {
		return "", fmt.Errorf("store api has no name for app %d", appID)
	}

	name = strings.TrimSpace(details.Data.Name)
	c.mu.Lock()
	c.names[appID] = name
	c.mu.Unlock()
	return name, nil
}
