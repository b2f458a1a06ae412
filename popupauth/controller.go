// Package popupauth drives a detached-window authorization flow from the
// perspective of a single tab: it opens the popup, waits on the result
// message, watches for manual closure, enforces an absolute timeout, and
// exposes the outcome as observable state.
package popupauth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kelo-finance/kelo-auth/authmsg"
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/kelo-finance/kelo-auth/wallet"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State of one controller instance.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

const (
	defaultPollInterval = time.Second
	defaultTimeout      = 5 * time.Minute

	windowName   = "google-auth"
	windowWidth  = 500
	windowHeight = 600

	signOutGrace = 10 * time.Second
)

// attempt tracks one in-flight authentication. The resolved flag is the
// exactly-once guard for the terminal transition: whichever of message,
// closure-poll or timeout fires first wins, the rest become no-ops.
type attempt struct {
	resolved       bool
	window         Window
	removeListener func()
	done           chan struct{}
}

// Controller owns at most one live detached window and exposes the
// authentication state to the rest of the application.
type Controller struct {
	backend Backend
	surface Surface
	tokens  TokenStore
	log     zerolog.Logger

	pollInterval time.Duration
	timeout      time.Duration

	mu      sync.Mutex
	state   State
	user    *identity.ExternalIdentity
	wallet  *wallet.Wallet
	cause   string
	current *attempt
}

// Option modifies a Controller.
type Option func(*Controller)

// WithPollInterval sets how often the popup's closed status is checked.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithTimeout sets the absolute limit on one authentication attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// NewController initializes a Controller with required dependencies.
func NewController(backend Backend, surface Surface, tokens TokenStore, options ...Option) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("[NewController] backend is required")
	}
	if surface == nil {
		return nil, errors.New("[NewController] surface is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewController] token store is required")
	}

	c := &Controller{
		backend:      backend,
		surface:      surface,
		tokens:       tokens,
		log:          zerolog.Nop(),
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
		state:        StateUnauthenticated,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Start rehydrates the controller from a persisted credential, if one
// exists and still verifies. A stale token is discarded, never trusted.
func (c *Controller) Start(ctx context.Context) error {
	token, ok := c.tokens.Get()
	if !ok {
		return nil
	}

	user, w, err := c.backend.VerifySession(ctx, token)
	if err != nil {
		c.log.Debug().Err(err).Msg("persisted session rejected, clearing")
		c.tokens.Clear()
		return nil
	}

	c.mu.Lock()
	c.state = StateAuthenticated
	c.user = user
	c.wallet = w
	c.cause = ""
	c.mu.Unlock()
	return nil
}

// SignIn runs one authentication attempt end-to-end. While an attempt is
// already in flight the call is a no-op: a second detached window must
// never be created. Callers observe failure through state, not the
// returned error.
func (c *Controller) SignIn(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateAuthenticating {
		c.mu.Unlock()
		c.log.Debug().Msg("sign-in already in progress")
		return nil
	}
	c.state = StateAuthenticating
	c.cause = ""
	c.mu.Unlock()

	authURL, err := c.backend.AuthorizationEndpoint(ctx)
	if err != nil {
		c.toErrored(err.Error())
		return err
	}

	screenW, screenH := c.surface.ScreenSize()
	win, err := c.surface.OpenWindow(authURL, WindowOptions{
		Name:   windowName,
		Width:  windowWidth,
		Height: windowHeight,
		Left:   screenW/2 - windowWidth/2,
		Top:    screenH/2 - windowHeight/2,
	})
	if err != nil || win == nil {
		c.toErrored(ErrPopupBlocked.Error())
		return ErrPopupBlocked
	}

	att := &attempt{window: win, done: make(chan struct{})}
	c.mu.Lock()
	c.current = att
	c.mu.Unlock()

	remove := c.surface.AddMessageListener(func(msg Message) {
		c.handleMessage(att, msg)
	})

	c.mu.Lock()
	att.removeListener = remove
	alreadyResolved := att.resolved
	c.mu.Unlock()
	if alreadyResolved {
		// The message won the race before the remover was recorded.
		remove()
		return nil
	}

	go c.watch(att)
	return nil
}

// watch polls the popup's closed status and arms the absolute timeout.
func (c *Controller) watch(att *attempt) {
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-att.done:
			return
		case <-poll.C:
			if att.window.Closed() {
				c.resolve(att, func() {
					c.state = StateErrored
					c.cause = ErrCancelled.Error()
				})
				return
			}
		case <-deadline.C:
			c.resolve(att, func() {
				c.state = StateErrored
				c.cause = ErrTimeout.Error()
			})
			return
		}
	}
}

// handleMessage processes one cross-window message for att. Messages from
// a foreign origin are discarded outright; this is a security boundary.
func (c *Controller) handleMessage(att *attempt, msg Message) {
	if msg.Origin != c.surface.Origin() {
		c.log.Debug().Str("origin", msg.Origin).Msg("ignoring message from foreign origin")
		return
	}

	var payload authmsg.Payload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.resolve(att, func() {
			c.state = StateErrored
			c.cause = "authentication failed: malformed result message"
		})
		return
	}

	switch payload.Type {
	case authmsg.TypeSuccess:
		if payload.Token == "" || payload.User == nil || payload.User.ID == "" {
			c.resolve(att, func() {
				c.state = StateErrored
				c.cause = "authentication failed: incomplete result message"
			})
			return
		}
		c.resolve(att, func() {
			if err := c.tokens.Set(payload.Token); err != nil {
				c.log.Warn().Err(err).Msg("failed to persist session token")
			}
			c.state = StateAuthenticated
			c.user = payload.User
			c.wallet = payload.Wallet
			c.cause = ""
		})
	case authmsg.TypeError:
		cause := payload.Error
		if cause == "" {
			cause = "authentication failed"
		}
		c.resolve(att, func() {
			c.state = StateErrored
			c.cause = cause
		})
	default:
		// Unrelated same-origin message; not ours to act on.
	}
}

// resolve performs the terminal transition for att exactly once. Teardown
// is idempotent: the listener remover and window close tolerate repeats.
func (c *Controller) resolve(att *attempt, transition func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if att.resolved {
		return false
	}
	att.resolved = true

	if att.removeListener != nil {
		att.removeListener()
	}
	if att.window != nil && !att.window.Closed() {
		att.window.Close()
	}
	close(att.done)
	if c.current == att {
		c.current = nil
	}

	transition()
	c.log.Debug().Stringer("state", c.state).Str("cause", c.cause).Msg("authentication attempt resolved")
	return true
}

// SignOut invalidates the session remotely on a best-effort basis and
// always clears local state; backend availability never blocks it.
func (c *Controller) SignOut(ctx context.Context) {
	if token, ok := c.tokens.Get(); ok {
		remoteCtx, cancel := context.WithTimeout(ctx, signOutGrace)
		if err := c.backend.SignOut(remoteCtx, token); err != nil {
			c.log.Warn().Err(err).Msg("remote sign-out failed; clearing locally anyway")
		}
		cancel()
	}

	c.tokens.Clear()
	c.mu.Lock()
	c.state = StateUnauthenticated
	c.user = nil
	c.wallet = nil
	c.cause = ""
	c.mu.Unlock()
}

// RefreshWallet re-fetches the linked wallet handle. A stale handle is
// preferable to dropping authentication, so failures only log.
func (c *Controller) RefreshWallet(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateAuthenticated || c.user == nil {
		c.mu.Unlock()
		return
	}
	userID := c.user.ID
	c.mu.Unlock()

	w, err := c.backend.WalletForUser(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("wallet refresh failed")
		return
	}

	c.mu.Lock()
	if c.state == StateAuthenticated {
		c.wallet = w
	}
	c.mu.Unlock()
}

// ClearError returns an errored controller to the unauthenticated state.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateErrored {
		c.state = StateUnauthenticated
		c.cause = ""
	}
}

func (c *Controller) toErrored(cause string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateErrored
	c.cause = cause
}

// State returns the current authentication state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the authenticated identity, if any.
func (c *Controller) User() *identity.ExternalIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Wallet returns the linked wallet handle, if any.
func (c *Controller) Wallet() *wallet.Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet
}

// Err returns the human-readable cause while errored, otherwise "".
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}
