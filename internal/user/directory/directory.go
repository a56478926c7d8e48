// Package directory reads user aggregates from the central user database.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"idproof/internal/user/models"
	"idproof/pkg/platform/sentinel"
)

// Directory serves the current durable user aggregate.
type Directory interface {
	GetByEppn(ctx context.Context, eppn string) (*models.User, error)
}

// HTTPClient reads aggregates over the directory's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a directory client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) GetByEppn(ctx context.Context, eppn string) (*models.User, error) {
	endpoint := c.baseURL + "/users/" + url.PathEscape(eppn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user models.User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("decode directory response: %w", err)
		}
		return &user, nil
	case http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	default:
		return nil, fmt.Errorf("directory returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}
