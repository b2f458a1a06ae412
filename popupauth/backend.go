package popupauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kelo-finance/kelo-auth/auth"
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/kelo-finance/kelo-auth/wallet"
)

// Backend is the controller's view of the authentication HTTP surface.
type Backend interface {
	// AuthorizationEndpoint returns the provider authorization URL the
	// popup should navigate to.
	AuthorizationEndpoint(ctx context.Context) (string, error)

	// VerifySession checks a persisted token. ErrNoSession means the
	// token must be discarded.
	VerifySession(ctx context.Context, token string) (*identity.ExternalIdentity, *wallet.Wallet, error)

	// SignOut performs best-effort remote invalidation.
	SignOut(ctx context.Context, token string) error

	// WalletForUser re-fetches the linked wallet handle.
	WalletForUser(ctx context.Context, userID string) (*wallet.Wallet, error)
}

// HTTPBackend talks to the kelo-auth server routes.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// HTTPBackendOption modifies an HTTPBackend.
type HTTPBackendOption func(*HTTPBackend)

// WithClient sets the HTTP client. Redirect following is disabled on it.
func WithClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) { b.client = client }
}

// NewHTTPBackend creates a backend client rooted at baseURL.
func NewHTTPBackend(baseURL string, options ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(b)
	}
	// The authorization endpoint answers with a redirect to the provider;
	// the popup, not this client, must follow it.
	b.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return b
}

func (b *HTTPBackend) AuthorizationEndpoint(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/auth/google", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusSeeOther {
		location := resp.Header.Get("Location")
		if location == "" {
			return "", fmt.Errorf("authentication request returned a redirect without a target")
		}
		return location, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	text := string(body)
	if strings.Contains(text, "Configuration Error") || strings.Contains(text, "OAuth configuration error") {
		return "", &auth.ConfigurationError{
			Problem:     "Google OAuth is not properly configured",
			Remediation: "check the server's environment variables",
		}
	}
	return "", fmt.Errorf("authentication request failed: %d", resp.StatusCode)
}

func (b *HTTPBackend) VerifySession(ctx context.Context, token string) (*identity.ExternalIdentity, *wallet.Wallet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/auth/verify", nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, ErrNoSession
	}

	var payload struct {
		User   *identity.ExternalIdentity `json:"user"`
		Wallet *wallet.Wallet             `json:"wallet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("malformed verify response: %w", err)
	}
	if payload.User == nil {
		return nil, nil, ErrNoSession
	}
	return payload.User, payload.Wallet, nil
}

func (b *HTTPBackend) SignOut(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sign-out failed: %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) WalletForUser(ctx context.Context, userID string) (*wallet.Wallet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/wallet/"+userID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, wallet.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("wallet fetch failed: %d", resp.StatusCode)
	}

	var w wallet.Wallet
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("malformed wallet response: %w", err)
	}
	return &w, nil
}

var _ Backend = (*HTTPBackend)(nil)
