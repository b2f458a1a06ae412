package popupauth_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kelo-finance/kelo-auth/authmsg"
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/kelo-finance/kelo-auth/popupauth"
	"github.com/kelo-finance/kelo-auth/popupauth/surfacefake"
	"github.com/kelo-finance/kelo-auth/wallet"
	"github.com/stretchr/testify/require"
)

const appOrigin = "http://localhost:3000"

var testUser = identity.ExternalIdentity{
	ID:            "108234567890",
	Email:         "jane.doe@example.com",
	Name:          "Jane Doe",
	VerifiedEmail: true,
}

var testWallet = wallet.Wallet{
	ID:       "wallet-1",
	UserID:   testUser.ID,
	Address:  "kelo1testaddress",
	IsActive: true,
}

// fakeBackend implements popupauth.Backend with injectable behavior.
type fakeBackend struct {
	mu sync.Mutex

	authURL     string
	authErr     error
	verifyUser  *identity.ExternalIdentity
	verifyWall  *wallet.Wallet
	verifyErr   error
	signOutErr  error
	signOutHang bool
	walletResp  *wallet.Wallet
	walletErr   error

	signOutCalls int
}

func (b *fakeBackend) AuthorizationEndpoint(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.authErr != nil {
		return "", b.authErr
	}
	if b.authURL == "" {
		return "https://accounts.google.com/o/oauth2/v2/auth?state=abc", nil
	}
	return b.authURL, nil
}

func (b *fakeBackend) VerifySession(context.Context, string) (*identity.ExternalIdentity, *wallet.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.verifyErr != nil {
		return nil, nil, b.verifyErr
	}
	return b.verifyUser, b.verifyWall, nil
}

func (b *fakeBackend) SignOut(ctx context.Context, _ string) error {
	b.mu.Lock()
	b.signOutCalls++
	hang := b.signOutHang
	err := b.signOutErr
	b.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (b *fakeBackend) WalletForUser(context.Context, string) (*wallet.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.walletErr != nil {
		return nil, b.walletErr
	}
	return b.walletResp, nil
}

type fixture struct {
	controller *popupauth.Controller
	surface    *surfacefake.FakeSurface
	backend    *fakeBackend
	tokens     *popupauth.MemoryTokenStore
}

func newFixture(t *testing.T, options ...popupauth.Option) *fixture {
	t.Helper()
	surface := surfacefake.New(appOrigin)
	backend := &fakeBackend{}
	tokens := popupauth.NewMemoryTokenStore()

	opts := append([]popupauth.Option{
		popupauth.WithPollInterval(5 * time.Millisecond),
		popupauth.WithTimeout(time.Minute),
	}, options...)

	controller, err := popupauth.NewController(backend, surface, tokens, opts...)
	require.NoError(t, err)

	return &fixture{controller: controller, surface: surface, backend: backend, tokens: tokens}
}

func successMessage(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(authmsg.Success("opaque-session-token", &testUser, &testWallet))
	require.NoError(t, err)
	return data
}

func TestSignInSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SignIn(ctx))
	require.Equal(t, popupauth.StateAuthenticating, f.controller.State())
	require.Len(t, f.surface.OpenedWindows(), 1)

	f.surface.PostMessage(appOrigin, successMessage(t))

	require.Equal(t, popupauth.StateAuthenticated, f.controller.State())
	require.Equal(t, &testUser, f.controller.User())
	require.Equal(t, &testWallet, f.controller.Wallet())

	token, ok := f.tokens.Get()
	require.True(t, ok)
	require.Equal(t, "opaque-session-token", token)

	require.True(t, f.surface.OpenedWindows()[0].Closed())
	require.Zero(t, f.surface.ListenerCount(), "listener must be deregistered")
}

func TestSignInErrorMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))

	data, err := json.Marshal(authmsg.Failure("access denied"))
	require.NoError(t, err)
	f.surface.PostMessage(appOrigin, data)

	require.Equal(t, popupauth.StateErrored, f.controller.State())
	require.Equal(t, "access denied", f.controller.Err())

	_, ok := f.tokens.Get()
	require.False(t, ok, "nothing may be persisted on failure")
	require.True(t, f.surface.OpenedWindows()[0].Closed())
}

func TestForeignOriginMessageIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))

	f.surface.PostMessage("https://evil.example.com", successMessage(t))

	require.Equal(t, popupauth.StateAuthenticating, f.controller.State(),
		"forged success payload from a foreign origin must not be acted upon")
	_, ok := f.tokens.Get()
	require.False(t, ok)

	// The legitimate message still resolves the attempt afterwards.
	f.surface.PostMessage(appOrigin, successMessage(t))
	require.Equal(t, popupauth.StateAuthenticated, f.controller.State())
}

func TestMalformedSameOriginMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))

	f.surface.PostMessage(appOrigin, []byte(`{"type": "GOOGLE_AUTH_SUCCESS", "token": ""}`))

	require.Equal(t, popupauth.StateErrored, f.controller.State())
	require.Contains(t, f.controller.Err(), "authentication failed")
}

func TestUnrelatedSameOriginMessageIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))

	f.surface.PostMessage(appOrigin, []byte(`{"type": "SOMETHING_ELSE"}`))
	require.Equal(t, popupauth.StateAuthenticating, f.controller.State())
}

func TestPopupClosedByUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))

	f.surface.OpenedWindows()[0].Close()

	require.Eventually(t, func() bool {
		return f.controller.State() == popupauth.StateErrored
	}, time.Second, time.Millisecond, "closure must be detected within a polling interval")
	require.Contains(t, f.controller.Err(), "cancelled")
	require.Zero(t, f.surface.ListenerCount())
}

func TestTimeoutClosesWindowOnce(t *testing.T) {
	f := newFixture(t, popupauth.WithTimeout(30*time.Millisecond))
	require.NoError(t, f.controller.SignIn(context.Background()))

	require.Eventually(t, func() bool {
		return f.controller.State() == popupauth.StateErrored
	}, time.Second, time.Millisecond)
	require.Contains(t, f.controller.Err(), "timed out")
	require.True(t, f.surface.OpenedWindows()[0].Closed())
	require.Zero(t, f.surface.ListenerCount())

	// A late message is a no-op: the listener is gone and the state final.
	f.surface.PostMessage(appOrigin, successMessage(t))
	require.Equal(t, popupauth.StateErrored, f.controller.State())
}

func TestSignInReentrancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SignIn(ctx))
	require.NoError(t, f.controller.SignIn(ctx))
	require.NoError(t, f.controller.SignIn(ctx))

	require.Len(t, f.surface.OpenedWindows(), 1, "only one detached window may ever exist")
}

func TestSignInPopupBlocked(t *testing.T) {
	f := newFixture(t)
	f.surface.BlockPopups()

	err := f.controller.SignIn(context.Background())
	require.ErrorIs(t, err, popupauth.ErrPopupBlocked)
	require.Equal(t, popupauth.StateErrored, f.controller.State())
	require.Contains(t, f.controller.Err(), "popup")
}

func TestSignInAuthorizationEndpointFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.authErr = popupauth.ErrNoSession // any backend error

	err := f.controller.SignIn(context.Background())
	require.Error(t, err)
	require.Equal(t, popupauth.StateErrored, f.controller.State())
	require.Empty(t, f.surface.OpenedWindows(), "no window may open when the endpoint call fails")
}

func TestSignInRetryAfterError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SignIn(ctx))
	data, _ := json.Marshal(authmsg.Failure("nope"))
	f.surface.PostMessage(appOrigin, data)
	require.Equal(t, popupauth.StateErrored, f.controller.State())

	require.NoError(t, f.controller.SignIn(ctx))
	require.Equal(t, popupauth.StateAuthenticating, f.controller.State())
	require.Len(t, f.surface.OpenedWindows(), 2)
}

func TestSignOutAlwaysClearsLocally(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeBackend)
	}{
		{"remote succeeds", func(*fakeBackend) {}},
		{"remote fails", func(b *fakeBackend) { b.signOutErr = popupauth.ErrNoSession }},
		{"remote hangs", func(b *fakeBackend) { b.signOutHang = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f.backend)

			require.NoError(t, f.controller.SignIn(context.Background()))
			f.surface.PostMessage(appOrigin, successMessage(t))
			require.Equal(t, popupauth.StateAuthenticated, f.controller.State())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			f.controller.SignOut(ctx)

			require.Equal(t, popupauth.StateUnauthenticated, f.controller.State())
			require.Nil(t, f.controller.User())
			_, ok := f.tokens.Get()
			require.False(t, ok, "persisted token must be cleared")
		})
	}
}

func TestStartRehydratesValidSession(t *testing.T) {
	f := newFixture(t)
	f.backend.verifyUser = &testUser
	f.backend.verifyWall = &testWallet
	require.NoError(t, f.tokens.Set("persisted-token"))

	require.NoError(t, f.controller.Start(context.Background()))
	require.Equal(t, popupauth.StateAuthenticated, f.controller.State())
	require.Equal(t, &testUser, f.controller.User())
}

func TestStartDiscardsStaleToken(t *testing.T) {
	f := newFixture(t)
	f.backend.verifyErr = popupauth.ErrNoSession
	require.NoError(t, f.tokens.Set("stale-token"))

	require.NoError(t, f.controller.Start(context.Background()))
	require.Equal(t, popupauth.StateUnauthenticated, f.controller.State())

	_, ok := f.tokens.Get()
	require.False(t, ok, "stale token must be discarded")
}

func TestStartWithoutToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.Start(context.Background()))
	require.Equal(t, popupauth.StateUnauthenticated, f.controller.State())
}

func TestRefreshWallet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))
	f.surface.PostMessage(appOrigin, successMessage(t))

	refreshed := testWallet
	refreshed.IsActive = false
	f.backend.walletResp = &refreshed

	f.controller.RefreshWallet(context.Background())
	require.Equal(t, &refreshed, f.controller.Wallet())
}

func TestRefreshWalletSwallowsFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.controller.SignIn(context.Background()))
	f.surface.PostMessage(appOrigin, successMessage(t))

	f.backend.walletErr = wallet.ErrNotFound
	f.controller.RefreshWallet(context.Background())

	require.Equal(t, popupauth.StateAuthenticated, f.controller.State())
	require.Equal(t, &testWallet, f.controller.Wallet(), "stale handle beats dropping authentication")
}

func TestRefreshWalletNoOpWhenUnauthenticated(t *testing.T) {
	f := newFixture(t)
	f.backend.walletResp = &testWallet

	f.controller.RefreshWallet(context.Background())
	require.Nil(t, f.controller.Wallet())
}

func TestClearError(t *testing.T) {
	f := newFixture(t)
	f.surface.BlockPopups()
	_ = f.controller.SignIn(context.Background())
	require.Equal(t, popupauth.StateErrored, f.controller.State())

	f.controller.ClearError()
	require.Equal(t, popupauth.StateUnauthenticated, f.controller.State())
	require.Empty(t, f.controller.Err())
}
