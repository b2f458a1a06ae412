// Package wallet manages custodial wallet handles for authenticated users.
// The wallet itself lives with an external wallet-management collaborator;
// this package owns the handle records and their provisioning.
package wallet

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/mr-tron/base58"
)

// ErrNotFound is returned when no wallet exists for the requested user.
var ErrNotFound = errors.New("wallet not found")

const addressLength = 32

// Wallet is the opaque handle linking a user to their custodial wallet.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAddress produces a fresh base58-encoded wallet address.
func NewAddress() (string, error) {
	buf := make([]byte, addressLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}
