package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/slogutil"
	"github.com/deepworx/go-auth0/pkg/tracing"
)

// TokenPath is the token endpoint relative to the tenant domain.
const TokenPath = "/oauth/token"

const maxBodySize = 1 << 20

// GrantType is the OAuth grant used for token requests.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
)

// ParseGrantType converts a configuration value into a GrantType.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(strings.ToLower(strings.TrimSpace(s))) {
	case GrantClientCredentials, "":
		return GrantClientCredentials, nil
	case GrantPassword:
		return GrantPassword, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGrantType, s)
	}
}

func (g GrantType) String() string {
	return string(g)
}

// AccessTokenResponse is the successful token endpoint response.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Client requests tokens for one application of a tenant.
// The most recent client credentials or user token is kept and returned by AccessToken.
// A Client is safe for concurrent use.
type Client struct {
	clientID     string
	clientSecret string
	audience     string
	grantType    GrantType
	tokenURL     string
	httpClient   *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Option configures a Client.
type Option func(*Client)

// WithGrantType sets the grant used by Authenticate. Defaults to client_credentials.
func WithGrantType(g GrantType) Option {
	return func(c *Client) {
		if g != "" {
			c.grantType = g
		}
	}
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Client for the tenant at domain (e.g., "https://tenant.auth0.com").
func NewClient(clientID, clientSecret, domain, audience string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		audience:     audience,
		grantType:    GrantClientCredentials,
		tokenURL:     jwks.NormalizeURL(domain + TokenPath),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenURL returns the normalized token endpoint URL.
func (c *Client) TokenURL() string {
	return c.tokenURL
}

// AccessToken returns the last token obtained by Authenticate or AuthenticateUser.
func (c *Client) AccessToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.accessToken != ""
}

// Authenticate requests a token with the configured grant and stores it.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	resp, err := c.AuthenticateWithBody(ctx, c.TokenRequest("", ""))
	if err != nil {
		return "", err
	}
	c.store(resp.AccessToken)
	return resp.AccessToken, nil
}

// AuthenticateUser requests a token on behalf of a user and stores it.
// The password grant is used unless the client was configured with
// a grant other than client_credentials.
func (c *Client) AuthenticateUser(ctx context.Context, username, password string) error {
	resp, err := c.AuthenticateWithBody(ctx, c.TokenRequest(username, password))
	if err != nil {
		return err
	}
	c.store(resp.AccessToken)
	return nil
}

// AuthenticateWithBody posts body as JSON to the token endpoint and decodes the response.
// The returned token is not stored.
func (c *Client) AuthenticateWithBody(ctx context.Context, body map[string]string) (AccessTokenResponse, error) {
	grant := body["grant_type"]
	return tracing.WithSpanResult(ctx, "oauth.token", func(ctx context.Context) (AccessTokenResponse, error) {
		return c.post(ctx, body)
	}, attribute.String("oauth.grant_type", grant), attribute.String("oauth.token_url", c.tokenURL))
}

func (c *Client) post(ctx context.Context, body map[string]string) (AccessTokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("encode token request: %w", err)
	}

	slog.DebugContext(ctx, "requesting access token",
		slog.String("url", c.tokenURL),
		slog.String("grant_type", body["grant_type"]),
		slog.String("client_id", body["client_id"]),
		slogutil.Secret("client_secret", body["client_secret"]),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("create token request: %w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("post %s: %w: %w", c.tokenURL, ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return AccessTokenResponse{}, fmt.Errorf("read token response: %w: %w", ErrTransport, err)
	}

	slog.DebugContext(ctx, "token endpoint responded",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
	)

	if resp.StatusCode != http.StatusOK {
		return AccessTokenResponse{}, responseError(resp.StatusCode, raw)
	}

	var out AccessTokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return AccessTokenResponse{}, fmt.Errorf("decode token response: %w: %w", ErrMalformedResponse, err)
	}
	if out.AccessToken == "" {
		return AccessTokenResponse{}, fmt.Errorf("decode token response: %w: missing access_token", ErrMalformedResponse)
	}
	return out, nil
}

func responseError(status int, raw []byte) error {
	var oe ResponseError
	if err := json.Unmarshal(raw, &oe); err == nil && oe.Code != "" {
		oe.StatusCode = status
		return fmt.Errorf("request token: %w", &oe)
	}
	return fmt.Errorf("request token: %w: status %d", ErrTransport, status)
}

// TokenRequest builds the body Authenticate or AuthenticateUser would send.
// An empty username selects the configured grant. Otherwise the user's
// credentials are added and client_credentials is upgraded to password.
func (c *Client) TokenRequest(username, password string) map[string]string {
	grant := c.grantType
	if username != "" && grant == GrantClientCredentials {
		grant = GrantPassword
	}

	body := map[string]string{
		"grant_type":    grant.String(),
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"audience":      c.audience,
	}
	if username != "" {
		body["username"] = username
		body["password"] = password
	}
	return body
}

func (c *Client) store(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}
