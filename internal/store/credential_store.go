package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/card-relay/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialStore reads operator accounts from the users table.
type CredentialStore struct {
	db *pgxpool.Pool
}

var _ auth.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(db *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) LookupUser(ctx context.Context, username string) (auth.User, string, error) {
	query := `
		SELECT user_id, username, name, password_hash
		FROM users
		WHERE username = $1
		LIMIT 1
	`

	var (
		u    auth.User
		hash string
	)
	err := s.db.QueryRow(ctx, query, username).Scan(
		&u.UserId,
		&u.Username,
		&u.Name,
		&hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.User{}, "", auth.ErrUserNotFound
		}
		return auth.User{}, "", fmt.Errorf("failed to get user %s: %w", username, err)
	}

	return u, hash, nil
}
