// Package auth implements the identity exchange service: it builds the
// provider authorization request, exchanges an authorization code for a
// verified external identity, and mints/verifies session credentials.
// Stateless across calls except for configuration loaded at construction.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/kelo-finance/kelo-auth/internal/config"
	"github.com/kelo-finance/kelo-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultIssuerURL   = "https://accounts.google.com"

	stateTokenLength = 32
)

// Service performs all interaction with the identity provider and owns the
// session-credential cryptography.
type Service struct {
	cfg         config.Config
	oauth       *oauth2.Config
	sessions    *session.Issuer
	httpClient  *http.Client
	log         zerolog.Logger
	userInfoURL string
	issuerURL   string

	oidcOnce sync.Once
	verifier *oidc.IDTokenVerifier
	oidcErr  error
}

// ServiceOption modifies a Service during construction.
type ServiceOption func(*Service)

// WithHTTPClient sets the client used for provider round trips.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) { s.httpClient = client }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithProviderEndpoints overrides the provider's authorization, token and
// user-info endpoints (primarily for testing against a fake provider).
func WithProviderEndpoints(authURL, tokenURL, userInfoURL string) ServiceOption {
	return func(s *Service) {
		s.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
		s.userInfoURL = userInfoURL
	}
}

// WithIssuerURL sets the OIDC discovery issuer. An empty value disables
// ID-token verification.
func WithIssuerURL(issuerURL string) ServiceOption {
	return func(s *Service) { s.issuerURL = issuerURL }
}

// NewService validates the configuration and constructs the service.
// Missing credentials or an inadequate signing secret fail here, never
// lazily on first request.
func NewService(cfg config.Config, options ...ServiceOption) (*Service, error) {
	if cfg.GoogleClientID == "" {
		return nil, &ConfigurationError{Problem: "GOOGLE_CLIENT_ID is required"}
	}
	if cfg.GoogleClientSecret == "" {
		return nil, &ConfigurationError{Problem: "GOOGLE_CLIENT_SECRET is required"}
	}
	if cfg.GoogleRedirectURI == "" {
		return nil, &ConfigurationError{Problem: "GOOGLE_REDIRECT_URI is required"}
	}
	if len(cfg.SessionSecret) < session.MinSecretBytes {
		return nil, &ConfigurationError{
			Problem:     "JWT_SECRET must be at least 32 bytes long",
			Remediation: "generate a longer random secret",
		}
	}

	sessions, err := session.NewIssuer([]byte(cfg.SessionSecret))
	if err != nil {
		return nil, errors.Wrap(err, "[NewService] session issuer")
	}

	svc := &Service{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		sessions:    sessions,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         zerolog.Nop(),
		userInfoURL: defaultUserInfoURL,
		issuerURL:   defaultIssuerURL,
	}
	for _, opt := range options {
		opt(svc)
	}
	return svc, nil
}

// BuildAuthorizationURL returns a fully-formed provider authorization URL
// embedding a fresh anti-replay state token. The state is returned to the
// caller so the HTTP layer can store it for single-use consumption.
func (s *Service) BuildAuthorizationURL() (authURL, state string, err error) {
	if s.cfg.GoogleClientID == config.PlaceholderClientID {
		return "", "", &ConfigurationError{
			Problem:     "Google client ID is not properly configured",
			Remediation: "replace the placeholder GOOGLE_CLIENT_ID with a real value",
		}
	}

	state, err = newStateToken()
	if err != nil {
		return "", "", errors.Wrap(err, "[BuildAuthorizationURL] state token")
	}

	authURL = s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	s.log.Debug().Str("client_id", truncated(s.cfg.GoogleClientID)).Msg("built authorization URL")
	return authURL, state, nil
}

// ExchangeCodeForIdentity exchanges a one-time authorization code for the
// provider's verified user record.
func (s *Service) ExchangeCodeForIdentity(ctx context.Context, code string) (*identity.ExternalIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ExchangeError{Description: "authorization code is empty"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" && s.issuerURL != "" {
		if err := s.verifyIDToken(ctx, rawIDToken); err != nil {
			return nil, err
		}
	}

	s.log.Debug().Str("client_id", truncated(s.cfg.GoogleClientID)).Msg("token exchange successful, fetching user info")
	return s.fetchUserInfo(ctx, token.AccessToken)
}

// IssueSessionCredential mints a signed session credential for user with
// optional wallet linkage. Expiry is always createdAt + session.TTL.
func (s *Service) IssueSessionCredential(user identity.ExternalIdentity, walletAddress, walletID string) (string, error) {
	return s.sessions.Issue(user, walletAddress, walletID)
}

// VerifySessionCredential decodes and checks a credential. Nil means "no
// session"; expired or forged tokens are a normal case, not an error.
func (s *Service) VerifySessionCredential(rawToken string) *session.Credential {
	return s.sessions.Verify(rawToken)
}

// ValidateConfiguration lists configuration problems for operator
// diagnostics. It is not part of the authentication path.
func (s *Service) ValidateConfiguration() []string {
	return s.cfg.Problems()
}

func (s *Service) verifyIDToken(ctx context.Context, rawIDToken string) error {
	s.oidcOnce.Do(func() {
		provider, err := oidc.NewProvider(ctx, s.issuerURL)
		if err != nil {
			s.oidcErr = err
			return
		}
		s.verifier = provider.Verifier(&oidc.Config{ClientID: s.oauth.ClientID})
	})
	if s.oidcErr != nil {
		return &ExchangeError{Description: "provider discovery failed", Err: s.oidcErr}
	}
	if _, err := s.verifier.Verify(ctx, rawIDToken); err != nil {
		return &ExchangeError{Description: "ID token verification failed", Err: err}
	}
	return nil
}

func (s *Service) fetchUserInfo(ctx context.Context, accessToken string) (*identity.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[fetchUserInfo] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Description: "failed to fetch user info", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{Description: "user info fetch failed with status " + resp.Status}
	}

	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ExchangeError{Description: "malformed user info payload", Err: err}
	}
	if payload.ID == "" {
		return nil, &ExchangeError{Description: "user info payload missing subject id"}
	}

	return &identity.ExternalIdentity{
		ID:            payload.ID,
		Email:         payload.Email,
		Name:          payload.Name,
		Picture:       payload.Picture,
		VerifiedEmail: payload.VerifiedEmail,
	}, nil
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_client":
			return &ConfigurationError{
				Problem:     "invalid Google client ID or client secret",
				Remediation: "check the GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET values",
			}
		case "invalid_request":
			return &ConfigurationError{
				Problem:     "invalid OAuth request",
				Remediation: "check the GOOGLE_REDIRECT_URI value",
			}
		}
		description := retrieveErr.ErrorDescription
		if description == "" && retrieveErr.Response != nil {
			description = "token exchange failed with status " + retrieveErr.Response.Status
		}
		return &ExchangeError{Code: retrieveErr.ErrorCode, Description: description, Err: err}
	}
	return &ExchangeError{Description: "token exchange failed", Err: err}
}

func newStateToken() (string, error) {
	buf := make([]byte, stateTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// truncated shortens identifiers for diagnostics so secrets never appear
// whole in logs.
func truncated(v string) string {
	if len(v) <= 10 {
		return v
	}
	return v[:10] + "..."
}
