// Package authmsg defines the structured message the provider-callback
// window posts back to its opener. Both the HTTP surface (producer) and
// the popup controller (consumer) share these shapes.
package authmsg

import (
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/kelo-finance/kelo-auth/wallet"
)

// Message types posted to the opener window.
const (
	TypeSuccess = "GOOGLE_AUTH_SUCCESS"
	TypeError   = "GOOGLE_AUTH_ERROR"
)

// Payload is the cross-window result message. Incoming instances are
// untrusted input: consumers must validate Type and the fields it implies
// before acting.
type Payload struct {
	Type   string                     `json:"type"`
	Token  string                     `json:"token,omitempty"`
	User   *identity.ExternalIdentity `json:"user,omitempty"`
	Wallet *wallet.Wallet             `json:"wallet,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// Success builds a success payload.
func Success(token string, user *identity.ExternalIdentity, w *wallet.Wallet) Payload {
	return Payload{Type: TypeSuccess, Token: token, User: user, Wallet: w}
}

// Failure builds an error payload with a human-readable cause.
func Failure(cause string) Payload {
	return Payload{Type: TypeError, Error: cause}
}
