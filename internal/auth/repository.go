// Package auth resolves API bearer tokens to StitchLab users.
//
// Tokens have the form "<prefix>.<secret>". The prefix is the lookup key;
// the secret is bcrypt-hashed at rest so a leaked table does not leak
// credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/stitchlab/stitchlab/internal/shared"
)

// TokenVerifier resolves a presented bearer token to a user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*shared.User, error)
}

// Repository provides PostgreSQL backed token resolution.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Verify splits the token, loads the matching row by prefix and compares the
// secret against the stored bcrypt hash.
func (r *Repository) Verify(ctx context.Context, token string) (*shared.User, error) {
	prefix, secret, ok := strings.Cut(token, ".")
	if !ok || prefix == "" || secret == "" {
		return nil, shared.ErrInvalidToken
	}

	const query = `
		SELECT t.token_hash, u.id, u.name, u.role
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_prefix = $1 AND t.revoked_at IS NULL`

	var hash string
	var user shared.User
	err := r.pool.QueryRow(ctx, query, prefix).Scan(&hash, &user.ID, &user.Name, &user.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup token: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidToken
	}
	return &user, nil
}
