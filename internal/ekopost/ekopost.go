// Package ekopost renders verification letters and dispatches them through
// the external mail carrier service.
package ekopost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"idproof/internal/proofing/models"
	"idproof/pkg/platform/sentinel"
)

// ErrAddressFormat marks an address the renderer cannot lay out. The engine
// reports it as a bad-address failure and leaves the state retryable.
var ErrAddressFormat = errors.New("address format")

// Renderer produces the letter document carrying the verification code.
type Renderer interface {
	Render(address models.Address, code string, createdAt time.Time, contactEmail string) ([]byte, error)
}

// Sender dispatches a rendered letter and returns the carrier transaction id.
// Transport failures wrap sentinel.ErrUnavailable.
type Sender interface {
	Dispatch(ctx context.Context, eppn string, document []byte) (string, error)
}

// TextRenderer lays the letter out as plain text. The production PDF layout
// runs in the letter service itself; this document is the payload it renders
// around.
type TextRenderer struct{}

func (TextRenderer) Render(address models.Address, code string, createdAt time.Time, contactEmail string) ([]byte, error) {
	if !address.Complete() {
		return nil, fmt.Errorf("incomplete postal address: %w", ErrAddressFormat)
	}
	var buf bytes.Buffer
	if address.CareOf != "" {
		fmt.Fprintf(&buf, "c/o %s\n", address.CareOf)
	}
	fmt.Fprintf(&buf, "%s\n%s %s\n", address.Street, address.PostalCode, address.City)
	if address.Country != "" {
		fmt.Fprintf(&buf, "%s\n", address.Country)
	}
	fmt.Fprintf(&buf, "\nVerification code: %s\n", code)
	fmt.Fprintf(&buf, "Requested: %s\n", createdAt.Format("2006-01-02"))
	if contactEmail != "" {
		fmt.Fprintf(&buf, "Questions: %s\n", contactEmail)
	}
	return buf.Bytes(), nil
}

// DebugTransactionID is recorded when debug letter mode skips dispatch.
const DebugTransactionID = "debug mode transaction id"

// DebugSender renders but never mails. For development environments.
type DebugSender struct{}

func (DebugSender) Dispatch(_ context.Context, _ string, _ []byte) (string, error) {
	return DebugTransactionID, nil
}

// HTTPClient dispatches letters through the carrier's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a letter dispatch client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type dispatchRequest struct {
	Recipient string `json:"recipient"`
	Document  []byte `json:"document"`
}

type dispatchResponse struct {
	TransactionID string `json:"transaction_id"`
}

func (c *HTTPClient) Dispatch(ctx context.Context, eppn string, document []byte) (string, error) {
	body, err := json.Marshal(dispatchRequest{Recipient: eppn, Document: document})
	if err != nil {
		return "", fmt.Errorf("marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispatch", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("letter dispatch: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("letter dispatch returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var out dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode dispatch response: %w", err)
	}
	return out.TransactionID, nil
}
