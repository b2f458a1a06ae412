// Package server exposes the identity exchange service over HTTP: the
// authorization redirect, the provider callback, session verification,
// sign-out, and wallet lookup.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kelo-finance/kelo-auth/auth"
	"github.com/kelo-finance/kelo-auth/internal/config"
	"github.com/kelo-finance/kelo-auth/server/staterepo"
	"github.com/kelo-finance/kelo-auth/wallet"
	"github.com/rs/zerolog"
)

// stateTimeout bounds how long an issued state token stays redeemable.
const stateTimeout = 15 * time.Minute

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	exchange *auth.Service
	wallets  *wallet.Manager
	states   staterepo.Repo
	nowTime  func() time.Time
	log      zerolog.Logger
}

// ServerOption modifies a Server during construction.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) { s.nowTime = nowFunc }
}

// WithLogger sets the server's logger.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// New wires the HTTP surface around an already-constructed exchange
// service. Construction-time configuration failures belong to
// auth.NewService, not here.
func New(cfg config.Config, exchange *auth.Service, wallets *wallet.Manager, states staterepo.Repo, options ...ServerOption) (*Server, error) {
	if exchange == nil {
		return nil, fmt.Errorf("[server.New] exchange service is required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("[server.New] wallet manager is required")
	}
	if states == nil {
		return nil, fmt.Errorf("[server.New] state repo is required")
	}

	s := &Server{
		env:      cfg.Env,
		mux:      http.NewServeMux(),
		config:   cfg,
		exchange: exchange,
		wallets:  wallets,
		states:   states,
		nowTime:  time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteAuthGoogle, ChainMiddleware(s.GoogleRedirectHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthVerify, ChainMiddleware(s.VerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthConfigCheck, ChainMiddleware(s.ConfigCheckHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteWallet, ChainMiddleware(s.WalletHandler(), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		s.log.Debug().Str("route", route).Msg("registered")
	}
}
