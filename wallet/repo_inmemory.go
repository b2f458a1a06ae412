package wallet

import (
	"context"
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewInMemoryRepo creates a new in-memory wallet repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{wallets: make(map[string]*Wallet)}
}

// GetByUserID returns the wallet owned by userID.
func (r *InMemoryRepo) GetByUserID(_ context.Context, userID string) (*Wallet, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.wallets[userID]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modifications
	out := *w
	return &out, nil
}

// Upsert stores or updates a wallet handle.
func (r *InMemoryRepo) Upsert(_ context.Context, w *Wallet) error {
	if w == nil {
		return errors.New("wallet cannot be nil")
	}
	if w.UserID == "" {
		return errors.New("wallet userID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *w
	r.wallets[w.UserID] = &stored
	return nil
}
