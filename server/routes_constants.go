package server

// API routes served by the auth server.
const (
	RouteAuthGoogle      = "/api/auth/google"
	RouteAuthCallback    = "/api/auth/callback"
	RouteAuthVerify      = "/api/auth/verify"
	RouteAuthLogout      = "/api/auth/logout"
	RouteAuthConfigCheck = "/api/auth/config-check"
	RouteWallet          = "/api/wallet/{userID}"
)
