package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager provisions and looks up wallet handles.
type Manager struct {
	repo    Repo
	nowTime func() time.Time
	log     zerolog.Logger
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager initializes a Manager with the given repository.
func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	m := &Manager{
		repo:    repo,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// GetOrCreate returns the wallet for userID, provisioning one on first
// sign-in. Idempotent per user.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	existing, err := m.repo.GetByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Manager.GetOrCreate] repo.GetByUserID")
	}

	address, err := NewAddress()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GetOrCreate] generate address")
	}

	w := &Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Address:   address,
		IsActive:  true,
		CreatedAt: m.nowTime(),
	}
	if err := m.repo.Upsert(ctx, w); err != nil {
		return nil, errors.Wrap(err, "[Manager.GetOrCreate] repo.Upsert")
	}
	m.log.Info().Str("user_id", userID).Str("wallet_id", w.ID).Msg("provisioned custodial wallet")
	return w, nil
}

// GetByUserID returns the wallet for userID or ErrNotFound.
func (m *Manager) GetByUserID(ctx context.Context, userID string) (*Wallet, error) {
	return m.repo.GetByUserID(ctx, userID)
}
