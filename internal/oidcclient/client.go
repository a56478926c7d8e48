// Package oidcclient drives the authorization-code flow against the identity
// provider that asserts NIN ownership.
package oidcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"idproof/internal/platform/config"
	"idproof/pkg/platform/sentinel"
)

// Client is the provider-facing surface the OIDC proofing engine consumes.
type Client interface {
	// SendAuthorizationRequest POSTs the authorization request carrying the
	// correlation state, nonce and requested identity claim. A non-success
	// provider response is an error; nothing is persisted for the attempt.
	SendAuthorizationRequest(ctx context.Context, state, nonce string) error
	// Exchange trades the authorization code for tokens and verifies the ID
	// token signature.
	Exchange(ctx context.Context, code string) (*TokenResult, error)
	// Userinfo fetches the claims asserted for the authenticated subject.
	Userinfo(ctx context.Context, accessToken string) (*UserinfoResult, error)
}

// TokenResult carries the verified ID token claims the engine needs plus the
// raw response for the audit proof record.
type TokenResult struct {
	AccessToken string
	Nonce       string
	Subject     string
	Raw         json.RawMessage
}

// UserinfoResult carries the provider-asserted identity claims plus the raw
// response for the audit proof record.
type UserinfoResult struct {
	Subject  string
	Identity string
	Raw      json.RawMessage
}

// HTTPClient implements Client against the configured provider endpoints,
// authenticating with client_secret_basic and expecting HS256-signed ID
// tokens keyed on the client secret.
type HTTPClient struct {
	cfg    config.OIDCConfig
	client *http.Client
}

// New builds a provider client from configuration.
func New(cfg config.OIDCConfig) *HTTPClient {
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) SendAuthorizationRequest(ctx context.Context, state, nonce string) error {
	claims, err := json.Marshal(map[string]any{
		"userinfo": map[string]any{"identity": nil},
	})
	if err != nil {
		return fmt.Errorf("marshal claims request: %w", err)
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {c.cfg.RedirectURL},
		"state":         {state},
		"nonce":         {nonce},
		"claims":        {string(claims)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthorizationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("authorization request: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authorization endpoint returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
}

func (c *HTTPClient) Exchange(ctx context.Context, code string) (*TokenResult, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("token response missing id_token")
	}

	nonce, subject, err := c.parseIDToken(tr.IDToken)
	if err != nil {
		return nil, err
	}

	return &TokenResult{
		AccessToken: tr.AccessToken,
		Nonce:       nonce,
		Subject:     subject,
		Raw:         raw,
	}, nil
}

func (c *HTTPClient) parseIDToken(idToken string) (nonce, subject string, err error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	_, err = parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		return []byte(c.cfg.ClientSecret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("parse id token: %w", err)
	}
	nonce, _ = claims["nonce"].(string)
	subject, _ = claims["sub"].(string)
	return nonce, subject, nil
}

type userinfoResponse struct {
	Subject  string `json:"sub"`
	Identity string `json:"identity"`
}

func (c *HTTPClient) Userinfo(ctx context.Context, accessToken string) (*UserinfoResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var ui userinfoResponse
	if err := json.Unmarshal(raw, &ui); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}

	return &UserinfoResult{
		Subject:  ui.Subject,
		Identity: ui.Identity,
		Raw:      raw,
	}, nil
}
