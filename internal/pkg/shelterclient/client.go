// Package shelterclient talks to the shelter directory service, which owns
// shelters and their pets.
package shelterclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ShelterExists(ctx context.Context, shelterID int64) (bool, error) {
	return c.exists(ctx, fmt.Sprintf("/api/v1/shelters/%d", shelterID))
}

func (c *Client) PetExists(ctx context.Context, shelterID, petID int64) (bool, error) {
	return c.exists(ctx, fmt.Sprintf("/api/v1/shelters/%d/pets/%d", shelterID, petID))
}

func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("shelter service base URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("shelter service returned status %d", resp.StatusCode)
	}
	return true, nil
}

// AllowAll accepts every shelter and pet. Local development only.
type AllowAll struct{}

func (AllowAll) ShelterExists(context.Context, int64) (bool, error)     { return true, nil }
func (AllowAll) PetExists(context.Context, int64, int64) (bool, error) { return true, nil }
