package server

import (
	"html/template"
	"net/http"

	"github.com/kelo-finance/kelo-auth/authmsg"
)

// callbackDoc is the terminal page of the popup flow. It posts the result
// to the opener at exactly the configured application origin and closes
// itself; without an opener it just shows the outcome.
var callbackDoc = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>Signing in…</title></head>
<body>
<p>{{if .Failed}}Authentication failed. You can close this window.{{else}}Signing you in…{{end}}</p>
<script>
(function () {
  var payload = {{.Payload}};
  if (window.opener) {
    window.opener.postMessage(payload, {{.Origin}});
  }
  window.close();
})();
</script>
</body>
</html>
`))

type callbackView struct {
	Payload authmsg.Payload
	Origin  string
	Failed  bool
}

// CallbackHandler terminates the provider redirect: it validates the
// anti-replay state, exchanges the code, provisions the custodial wallet,
// issues the session credential, and renders the opener message document.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if providerErr := query.Get("error"); providerErr != "" {
			s.renderCallback(w, authmsg.Failure("authentication was denied: "+providerErr))
			return
		}

		state := query.Get("state")
		issued, err := s.states.Consume(state)
		if err != nil {
			s.log.Warn().Err(err).Msg("callback with unknown or replayed state")
			s.renderCallback(w, authmsg.Failure("invalid or expired authentication request"))
			return
		}
		if s.nowTime().Sub(issued.CreatedAt) > stateTimeout {
			s.renderCallback(w, authmsg.Failure("authentication request expired, please try again"))
			return
		}

		user, err := s.exchange.ExchangeCodeForIdentity(r.Context(), query.Get("code"))
		if err != nil {
			s.log.Error().Err(err).Msg("code exchange failed")
			s.renderCallback(w, authmsg.Failure(err.Error()))
			return
		}

		wal, err := s.wallets.GetOrCreate(r.Context(), user.ID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("wallet provisioning failed")
			s.renderCallback(w, authmsg.Failure("failed to provision wallet"))
			return
		}

		token, err := s.exchange.IssueSessionCredential(*user, wal.Address, wal.ID)
		if err != nil {
			s.log.Error().Err(err).Msg("credential issuance failed")
			s.renderCallback(w, authmsg.Failure("failed to create session"))
			return
		}

		s.log.Info().Str("user_id", user.ID).Msg("user authenticated")
		s.renderCallback(w, authmsg.Success(token, user, wal))
	}
}

func (s *Server) renderCallback(w http.ResponseWriter, payload authmsg.Payload) {
	w.Header().Set("Content-Type", contentTypeHTML)
	view := callbackView{
		Payload: payload,
		Origin:  s.config.AppOrigin,
		Failed:  payload.Type == authmsg.TypeError,
	}
	if err := callbackDoc.Execute(w, view); err != nil {
		s.log.Error().Err(err).Msg("failed to render callback document")
	}
}
