// Package sqliterepo is a SQLite-backed wallet repository for deployments
// that need wallet handles to survive restarts.
package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kelo-finance/kelo-auth/wallet"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL UNIQUE,
    address    TEXT NOT NULL,
    is_active  INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`

// Repo implements wallet.Repo on a SQLite database.
type Repo struct {
	db *sql.DB
}

// New opens (creating if necessary) the wallet database at path.
func New(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqliterepo: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqliterepo: ensure schema: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repo) Close() error {
	return r.db.Close()
}

// GetByUserID returns the wallet owned by userID.
func (r *Repo) GetByUserID(ctx context.Context, userID string) (*wallet.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("sqliterepo: userID cannot be empty")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, address, is_active, created_at FROM wallets WHERE user_id = ?`, userID)

	var w wallet.Wallet
	var active int64
	var createdAt int64
	if err := row.Scan(&w.ID, &w.UserID, &w.Address, &active, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, wallet.ErrNotFound
		}
		return nil, fmt.Errorf("sqliterepo: get wallet: %w", err)
	}
	w.IsActive = active != 0
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &w, nil
}

// Upsert stores or updates a wallet handle.
func (r *Repo) Upsert(ctx context.Context, w *wallet.Wallet) error {
	if w == nil {
		return fmt.Errorf("sqliterepo: wallet cannot be nil")
	}
	if w.UserID == "" {
		return fmt.Errorf("sqliterepo: wallet userID cannot be empty")
	}

	active := 0
	if w.IsActive {
		active = 1
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO wallets (id, user_id, address, is_active, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    address = excluded.address,
    is_active = excluded.is_active`,
		w.ID, w.UserID, w.Address, active, w.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqliterepo: upsert wallet: %w", err)
	}
	return nil
}

var _ wallet.Repo = (*Repo)(nil)
