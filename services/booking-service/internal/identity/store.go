package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/libs/db"
)

type StoredUser struct {
	User
	PasswordHash string
}

type RefreshToken struct {
	ID        string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Store persists identities and refresh tokens.
type Store interface {
	CreateUser(ctx context.Context, u StoredUser) error
	UserByEmail(ctx context.Context, email string) (StoredUser, error)
	UserByID(ctx context.Context, id string) (StoredUser, error)
	DeleteUser(ctx context.Context, id string) error
	CreateRefreshToken(ctx context.Context, t RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash string) (RefreshToken, error)
	// RevokeRefreshToken reports false when the token was already revoked.
	RevokeRefreshToken(ctx context.Context, id string) (bool, error)
}

type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateUser(ctx context.Context, u StoredUser) error {
	metadata := u.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.PasswordHash, metadata, u.CreatedAt)
	if db.PgCode(err) == db.CodeUniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (StoredUser, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash, metadata, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
}

func (s *PGStore) UserByID(ctx context.Context, id string) (StoredUser, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash, metadata, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *PGStore) scanUser(row pgx.Row) (StoredUser, error) {
	var u StoredUser
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Metadata, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredUser{}, ErrUserNotFound
		}
		return StoredUser{}, err
	}
	return u, nil
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PGStore) CreateRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.UserID, t.Hash, t.ExpiresAt)
	return err
}

func (s *PGStore) RefreshTokenByHash(ctx context.Context, hash string) (RefreshToken, error) {
	var t RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, token_hash, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash).Scan(&t.ID, &t.UserID, &t.Hash, &t.ExpiresAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrInvalidRefreshToken
	}
	return t, err
}

func (s *PGStore) RevokeRefreshToken(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HashToken is how refresh tokens are stored; the raw value never touches the database.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
