package pg

import (
	"context"
	"database/sql"
	"errors"

	"fixwell.io/internal/auth"
)

// RefreshTokenStore persists refresh token records.
type RefreshTokenStore struct {
	s *Store
}

var _ auth.RefreshTokenStore = (*RefreshTokenStore)(nil)

// RefreshTokens returns the refresh token sub-store.
func (s *Store) RefreshTokens() *RefreshTokenStore {
	return &RefreshTokenStore{s: s}
}

func (r *RefreshTokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = r.s.now().UTC()
	}
	_, err := r.s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt, tok.Revoked)
	return err
}

func (r *RefreshTokenStore) Find(ctx context.Context, id string) (auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := r.s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RefreshToken{}, err
	}
	return tok, nil
}

func (r *RefreshTokenStore) Revoke(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where user_id = $1 and not revoked`, userID)
	return err
}
