package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/photobook/libs/auth"
)

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Issuer is stamped into access tokens and required on verify.
	Issuer string
}

const DefaultIssuer = "photobook"

// Local is the Postgres-backed Provider.
type Local struct {
	store  Store
	signer TokenSigner
	events *Broadcaster
	cfg    Config
	now    func() time.Time
}

var _ Provider = (*Local)(nil)

func NewLocal(store Store, signer TokenSigner, cfg Config) *Local {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	return &Local{
		store:  store,
		signer: signer,
		events: NewBroadcaster(),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (p *Local) Signer() TokenSigner {
	return p.signer
}

func (p *Local) SignUp(ctx context.Context, email, password string, metadata map[string]string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, errors.New("email and password required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := StoredUser{
		User: User{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  metadata,
			CreatedAt: p.now().UTC(),
		},
		PasswordHash: hash,
	}
	if err := p.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	p.emit(EventSignedUp, u.User)
	return u.User, nil
}

func (p *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := p.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := verifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	s, err := p.issue(ctx, u.User)
	if err != nil {
		return Session{}, err
	}
	p.emit(EventSignedIn, u.User)
	return s, nil
}

// Refresh rotates the refresh token; each token can be exchanged once.
func (p *Local) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	t, err := p.store.RefreshTokenByHash(ctx, HashToken(strings.TrimSpace(refreshToken)))
	if err != nil {
		return Session{}, err
	}
	if t.RevokedAt != nil || !t.ExpiresAt.After(p.now()) {
		return Session{}, ErrInvalidRefreshToken
	}
	revoked, err := p.store.RevokeRefreshToken(ctx, t.ID)
	if err != nil {
		return Session{}, err
	}
	if !revoked {
		return Session{}, ErrInvalidRefreshToken
	}
	u, err := p.store.UserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, err
	}
	s, err := p.issue(ctx, u.User)
	if err != nil {
		return Session{}, err
	}
	p.emit(EventTokenRefreshed, u.User)
	return s, nil
}

// SignOut revokes the refresh token. Unknown or already revoked tokens are not an error.
func (p *Local) SignOut(ctx context.Context, refreshToken string) error {
	t, err := p.store.RefreshTokenByHash(ctx, HashToken(strings.TrimSpace(refreshToken)))
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return nil
		}
		return err
	}
	revoked, err := p.store.RevokeRefreshToken(ctx, t.ID)
	if err != nil {
		return err
	}
	if revoked {
		p.emit(EventSignedOut, User{ID: t.UserID})
	}
	return nil
}

// Verify rejects tokens from another issuer even when they share the signing key.
func (p *Local) Verify(_ context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := p.signer.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Iss != p.cfg.Issuer {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

func (p *Local) DeleteUser(ctx context.Context, userID string) error {
	if err := p.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	p.emit(EventUserDeleted, User{ID: userID})
	return nil
}

func (p *Local) Subscribe() (<-chan SessionEvent, func()) {
	return p.events.Subscribe()
}

// Close ends all subscriptions.
func (p *Local) Close() {
	p.events.Close()
}

func (p *Local) issue(ctx context.Context, u User) (Session, error) {
	now := p.now()
	expiresAt := now.Add(p.cfg.AccessTTL)
	access, err := p.signer.Sign(auth.Claims{
		Sub:   u.ID,
		Iss:   p.cfg.Issuer,
		Email: u.Email,
		Iat:   now.Unix(),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	raw, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := p.store.CreateRefreshToken(ctx, RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Hash:      HashToken(raw),
		ExpiresAt: now.Add(p.cfg.RefreshTTL),
	}); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt.UTC(),
		User:         u,
	}, nil
}

func (p *Local) emit(t EventType, u User) {
	p.events.Publish(SessionEvent{Type: t, UserID: u.ID, Email: u.Email, At: p.now().UTC()})
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
