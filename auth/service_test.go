package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kelo-finance/kelo-auth/auth"
	"github.com/kelo-finance/kelo-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		AppOrigin:          "http://localhost:3000",
		GoogleClientID:     "1234567890.apps.googleusercontent.com",
		GoogleClientSecret: "GOCSPX-test-secret",
		GoogleRedirectURI:  "http://localhost:3000/api/auth/callback",
		SessionSecret:      strings.Repeat("k", 32),
	}
}

// fakeProvider stands in for Google's token and user-info endpoints.
type fakeProvider struct {
	server *httptest.Server

	tokenStatus  int
	tokenBody    map[string]any
	userStatus   int
	userBody     map[string]any
	tokenCalls   int
	lastCode     string
	lastClientID string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "ya29.test", "token_type": "Bearer"},
		userStatus:  http.StatusOK,
		userBody: map[string]any{
			"id":             "108234567890",
			"email":          "jane.doe@example.com",
			"name":           "Jane Doe",
			"picture":        "https://lh3.googleusercontent.com/a/photo",
			"verified_email": true,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fp.tokenCalls++
		_ = r.ParseForm()
		fp.lastCode = r.FormValue("code")
		fp.lastClientID = r.FormValue("client_id")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fp.tokenStatus)
		_ = json.NewEncoder(w).Encode(fp.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fp.userStatus)
		_ = json.NewEncoder(w).Encode(fp.userBody)
	})

	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func newTestService(t *testing.T, fp *fakeProvider) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(testConfig(),
		auth.WithProviderEndpoints(fp.server.URL+"/authorize", fp.server.URL+"/token", fp.server.URL+"/userinfo"),
		auth.WithIssuerURL(""), // no discovery in tests
	)
	require.NoError(t, err)
	return svc
}

func TestNewServiceConfigurationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing client id", func(c *config.Config) { c.GoogleClientID = "" }},
		{"missing client secret", func(c *config.Config) { c.GoogleClientSecret = "" }},
		{"missing redirect", func(c *config.Config) { c.GoogleRedirectURI = "" }},
		{"short signing secret", func(c *config.Config) { c.SessionSecret = "short" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := auth.NewService(cfg)
			require.Error(t, err)
			require.True(t, auth.IsConfigurationError(err))
		})
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	svc := newTestService(t, newFakeProvider(t))

	authURL, state, err := svc.BuildAuthorizationURL()
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, testConfig().GoogleClientID, query.Get("client_id"))
	require.Equal(t, testConfig().GoogleRedirectURI, query.Get("redirect_uri"))
	require.Equal(t, state, query.Get("state"))
	require.Equal(t, "code", query.Get("response_type"))
	require.Contains(t, query.Get("scope"), "email")
}

func TestBuildAuthorizationURLFreshState(t *testing.T) {
	svc := newTestService(t, newFakeProvider(t))

	_, first, err := svc.BuildAuthorizationURL()
	require.NoError(t, err)
	_, second, err := svc.BuildAuthorizationURL()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestBuildAuthorizationURLPlaceholderClientID(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleClientID = config.PlaceholderClientID
	svc, err := auth.NewService(cfg)
	require.NoError(t, err)

	_, _, err = svc.BuildAuthorizationURL()
	require.Error(t, err)
	require.True(t, auth.IsConfigurationError(err))
}

func TestExchangeCodeForIdentity(t *testing.T) {
	fp := newFakeProvider(t)
	svc := newTestService(t, fp)

	user, err := svc.ExchangeCodeForIdentity(context.Background(), "one-time-code")
	require.NoError(t, err)
	require.Equal(t, "one-time-code", fp.lastCode)
	require.Equal(t, "108234567890", user.ID)
	require.Equal(t, "jane.doe@example.com", user.Email)
	require.Equal(t, "Jane Doe", user.Name)
	require.True(t, user.VerifiedEmail)
}

func TestExchangeCodeEmptyCode(t *testing.T) {
	svc := newTestService(t, newFakeProvider(t))

	_, err := svc.ExchangeCodeForIdentity(context.Background(), "  ")
	require.Error(t, err)
	var exchangeErr *auth.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
}

func TestExchangeCodeInvalidClient(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenStatus = http.StatusUnauthorized
	fp.tokenBody = map[string]any{"error": "invalid_client", "error_description": "Unauthorized"}
	svc := newTestService(t, fp)

	_, err := svc.ExchangeCodeForIdentity(context.Background(), "bad-code")
	require.Error(t, err)
	require.True(t, auth.IsConfigurationError(err), "invalid_client must map to a configuration error, got %v", err)
}

func TestExchangeCodeInvalidRequest(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenStatus = http.StatusBadRequest
	fp.tokenBody = map[string]any{"error": "invalid_request", "error_description": "redirect_uri mismatch"}
	svc := newTestService(t, fp)

	_, err := svc.ExchangeCodeForIdentity(context.Background(), "bad-code")
	require.Error(t, err)
	require.True(t, auth.IsConfigurationError(err))
}

func TestExchangeCodeProviderError(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenStatus = http.StatusBadRequest
	fp.tokenBody = map[string]any{"error": "invalid_grant", "error_description": "Code was already redeemed"}
	svc := newTestService(t, fp)

	_, err := svc.ExchangeCodeForIdentity(context.Background(), "replayed-code")
	require.Error(t, err)
	require.False(t, auth.IsConfigurationError(err))
	var exchangeErr *auth.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, "invalid_grant", exchangeErr.Code)
	require.Contains(t, exchangeErr.Description, "redeemed")
}

func TestExchangeCodeUserInfoFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.userStatus = http.StatusInternalServerError
	svc := newTestService(t, fp)

	_, err := svc.ExchangeCodeForIdentity(context.Background(), "one-time-code")
	require.Error(t, err)
	var exchangeErr *auth.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
}

func TestSessionCredentialRoundTrip(t *testing.T) {
	fp := newFakeProvider(t)
	svc := newTestService(t, fp)

	user, err := svc.ExchangeCodeForIdentity(context.Background(), "one-time-code")
	require.NoError(t, err)

	token, err := svc.IssueSessionCredential(*user, "kelo1addr", "wallet-1")
	require.NoError(t, err)

	cred := svc.VerifySessionCredential(token)
	require.NotNil(t, cred)
	require.Equal(t, user.ID, cred.UserID)
	require.Equal(t, user.Email, cred.Email)
	require.Equal(t, user.Name, cred.Name)

	require.Nil(t, svc.VerifySessionCredential(token+"x"))
}

func TestValidateConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleClientID = "not-a-google-client-id"
	svc, err := auth.NewService(cfg)
	require.NoError(t, err)

	problems := svc.ValidateConfiguration()
	require.Len(t, problems, 1)
	require.Contains(t, problems[0], "googleusercontent.com")
}
