package client

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

// SessionAPI is the part of Client a Session drives.
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (identity.Session, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context) (Me, error)
	SetAccessToken(token string)
}

// Session holds the signed-in user and their display role. The role only gates
// navigation; the server re-checks it on every admin request.
type Session struct {
	api    SessionAPI
	events *identity.Broadcaster
	now    func() time.Time

	mu     sync.RWMutex
	tokens identity.Session
	role   model.Role
}

func NewSession(api SessionAPI) *Session {
	return &Session{api: api, events: identity.NewBroadcaster(), now: time.Now}
}

// Subscribe streams session changes until cancel is called.
func (s *Session) Subscribe() (<-chan identity.SessionEvent, func()) {
	return s.events.Subscribe()
}

func (s *Session) SignIn(ctx context.Context, email, password string) error {
	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	s.establish(ctx, tokens, identity.EventSignedIn)
	return nil
}

// Refresh rotates the refresh token. An unauthorized response ends the session.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresh := s.tokens.RefreshToken
	s.mu.RUnlock()

	tokens, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		if IsUnauthorized(err) {
			s.clear()
		}
		return err
	}
	s.establish(ctx, tokens, identity.EventTokenRefreshed)
	return nil
}

// Restore resumes a previously saved session without emitting an event.
func (s *Session) Restore(ctx context.Context, tokens identity.Session) {
	s.apply(tokens)
	s.reloadRole(ctx)
}

// SignOut always clears local state, even when the server call fails.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.RLock()
	refresh := s.tokens.RefreshToken
	s.mu.RUnlock()

	var err error
	if refresh != "" {
		err = s.api.Logout(ctx, refresh)
	}
	s.clear()
	return err
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken != ""
}

// Role is empty when signed out.
func (s *Session) Role() model.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) User() identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.User
}

// Tokens returns the current tokens, for persisting between runs.
func (s *Session) Tokens() identity.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *Session) Close() {
	s.events.Close()
}

func (s *Session) establish(ctx context.Context, tokens identity.Session, evt identity.EventType) {
	s.apply(tokens)
	s.reloadRole(ctx)
	s.emit(evt)
}

func (s *Session) apply(tokens identity.Session) {
	s.mu.Lock()
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = s.tokens.RefreshToken
	}
	if tokens.User.ID == "" {
		tokens.User = s.tokens.User
	}
	s.tokens = tokens
	s.mu.Unlock()
	s.api.SetAccessToken(tokens.AccessToken)
}

// reloadRole defaults to RoleUser when /me fails.
func (s *Session) reloadRole(ctx context.Context) {
	role := model.RoleUser
	if me, err := s.api.Me(ctx); err == nil {
		role = model.NormalizeRole(string(me.Role))
	}
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

func (s *Session) clear() {
	s.mu.Lock()
	user := s.tokens.User
	wasSignedIn := s.tokens.AccessToken != ""
	s.tokens = identity.Session{}
	s.role = ""
	s.mu.Unlock()
	s.api.SetAccessToken("")
	if wasSignedIn {
		s.events.Publish(identity.SessionEvent{Type: identity.EventSignedOut, UserID: user.ID, Email: user.Email, At: s.now().UTC()})
	}
}

func (s *Session) emit(t identity.EventType) {
	user := s.User()
	s.events.Publish(identity.SessionEvent{Type: t, UserID: user.ID, Email: user.Email, At: s.now().UTC()})
}
