package wallet

import "context"

// Repo stores wallet handles keyed by the owning user's subject id.
type Repo interface {
	GetByUserID(ctx context.Context, userID string) (*Wallet, error)
	Upsert(ctx context.Context, w *Wallet) error
}
