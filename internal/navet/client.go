// Package navet looks up official postal addresses in the national
// population register.
package navet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"idproof/internal/proofing/models"
	"idproof/pkg/platform/sentinel"
)

// AddressLookup resolves a NIN to the official postal address on record.
// Returns sentinel.ErrNotFound when the register has no address for the
// number, sentinel.ErrUnavailable (wrapped) on transport failure.
type AddressLookup interface {
	Lookup(ctx context.Context, nin string) (models.Address, error)
}

// HTTPClient talks to the address lookup service over HTTP JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds an address lookup client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type lookupRequest struct {
	Nin string `json:"nin"`
}

func (c *HTTPClient) Lookup(ctx context.Context, nin string) (models.Address, error) {
	body, err := json.Marshal(lookupRequest{Nin: nin})
	if err != nil {
		return models.Address{}, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/address-lookup", bytes.NewReader(body))
	if err != nil {
		return models.Address{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Address{}, fmt.Errorf("address lookup: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var address models.Address
		if err := json.NewDecoder(resp.Body).Decode(&address); err != nil {
			return models.Address{}, fmt.Errorf("decode lookup response: %w", err)
		}
		if address.IsZero() {
			return models.Address{}, sentinel.ErrNotFound
		}
		return address, nil
	case http.StatusNotFound:
		return models.Address{}, sentinel.ErrNotFound
	default:
		return models.Address{}, fmt.Errorf("address lookup returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}
