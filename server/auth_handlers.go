package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/kelo-finance/kelo-auth/auth"
	"github.com/kelo-finance/kelo-auth/server/staterepo"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// configErrorDoc carries the marker string clients detect from raw
// response text ("Configuration Error").
var configErrorDoc = template.Must(template.New("configError").Parse(`<!DOCTYPE html>
<html>
<head><title>Configuration Error</title></head>
<body>
<h1>Configuration Error</h1>
<p>{{.}}</p>
</body>
</html>
`))

// GoogleRedirectHandler builds the provider authorization URL, records the
// embedded state token for single-use consumption, and redirects.
func (s *Server) GoogleRedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, state, err := s.exchange.BuildAuthorizationURL()
		if err != nil {
			if auth.IsConfigurationError(err) {
				s.log.Error().Err(err).Msg("authorization URL misconfigured")
				w.Header().Set("Content-Type", contentTypeHTML)
				w.WriteHeader(http.StatusInternalServerError)
				_ = configErrorDoc.Execute(w, err.Error())
				return
			}
			s.log.Error().Err(err).Msg("authorization URL build failed")
			http.Error(w, "failed to build authorization URL", http.StatusInternalServerError)
			return
		}

		if err := s.states.Put(state, &staterepo.IssuedState{CreatedAt: s.nowTime()}); err != nil {
			s.log.Error().Err(err).Msg("failed to store state token")
			http.Error(w, "failed to start authentication", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// VerifyHandler checks a bearer session credential. Any invalid token is a
// normal 401, never a 5xx.
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		cred := s.exchange.VerifySessionCredential(token)
		if cred == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid or expired session"})
			return
		}

		resp := map[string]any{"user": cred.User}
		if wal, err := s.wallets.GetByUserID(r.Context(), cred.UserID); err == nil {
			resp["wallet"] = wal
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// LogoutHandler acknowledges sign-out. The response is advisory only; the
// client clears its credential regardless.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cred := s.exchange.VerifySessionCredential(bearerToken(r)); cred != nil {
			s.log.Info().Str("user_id", cred.UserID).Msg("user signed out")
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// ConfigCheckHandler reports configuration problems for operators.
func (s *Server) ConfigCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problems := s.exchange.ValidateConfiguration()
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":    len(problems) == 0,
			"problems": problems,
		})
	}
}

// WalletHandler returns the wallet handle linked to a user.
func (s *Server) WalletHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userID")
		wal, err := s.wallets.GetByUserID(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "wallet not found"})
			return
		}
		writeJSON(w, http.StatusOK, wal)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
