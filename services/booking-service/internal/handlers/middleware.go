package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/photobook/libs/auth"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

type ctxKey int

const callerKey ctxKey = iota

// Caller is the authenticated user of a request. Role is only set behind RequireAdmin.
type Caller struct {
	UserID string
	Email  string
	Role   model.Role
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}

type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*auth.Claims, error)
}

type RoleResolver interface {
	Resolve(ctx context.Context, userID string) model.Role
}

// Guard authenticates bearer tokens and authorizes admin routes.
type Guard struct {
	verifier TokenVerifier
	jwks     *auth.JWKSClient
	roles    RoleResolver
	logger   *slog.Logger
}

// NewGuard verifies tokens with verifier first and, when jwks is non-nil, falls back to
// RS256 keys published at the JWKS endpoint.
func NewGuard(verifier TokenVerifier, jwks *auth.JWKSClient, roles RoleResolver, logger *slog.Logger) *Guard {
	return &Guard{verifier: verifier, jwks: jwks, roles: roles, logger: logger}
}

func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		claims, err := g.verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := WithCaller(r.Context(), Caller{UserID: claims.Sub, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin reads the caller's role from the profile store on every request. A role
// claim carried by the token is ignored.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFrom(r.Context())
		caller.Role = g.roles.Resolve(r.Context(), caller.UserID)
		if caller.Role != model.RoleAdmin {
			g.logger.Warn("admin access denied", "user_id", caller.UserID, "path", r.URL.Path)
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	}))
}

func (g *Guard) verify(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := g.verifier.Verify(ctx, token)
	if err == nil || g.jwks == nil {
		return claims, err
	}
	return g.jwks.Verify(ctx, token)
}
