// Package identity is the identity provider the booking service delegates sign-up,
// sign-in and sessions to.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/photobook/libs/auth"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
)

type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

type EventType string

const (
	EventSignedUp       EventType = "SIGNED_UP"
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventUserDeleted    EventType = "USER_DELETED"
)

type SessionEvent struct {
	Type   EventType
	UserID string
	Email  string
	At     time.Time
}

// Provider is the identity surface the rest of the service consumes.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (User, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	Verify(ctx context.Context, accessToken string) (*auth.Claims, error)
	DeleteUser(ctx context.Context, userID string) error
	// Subscribe streams session changes until cancel is called.
	Subscribe() (<-chan SessionEvent, func())
}
