package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/photobook/libs/auth"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/accounts"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

type Registrar interface {
	Register(ctx context.Context, in accounts.Registration) (identity.User, error)
}

type AuthHandler struct {
	registrar  Registrar
	identities identity.Provider
	roles      RoleResolver
	keys       func() []auth.JWK
	logger     *slog.Logger
}

// NewAuthHandler wires the auth routes. keys may be nil when no public keys are published.
func NewAuthHandler(registrar Registrar, identities identity.Provider, roles RoleResolver, keys func() []auth.JWK, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{registrar: registrar, identities: identities, roles: roles, keys: keys, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type meResponse struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req accounts.Registration
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.registrar.Register(r.Context(), req)
	if err != nil {
		var invalid accounts.ValidationError
		switch {
		case errors.As(err, &invalid):
			httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{Error: "invalid registration", Fields: invalid})
		case errors.Is(err, identity.ErrEmailTaken):
			httpx.WriteError(w, http.StatusConflict, identity.ErrEmailTaken.Error())
		case errors.Is(err, accounts.ErrProfileCreate):
			httpx.WriteError(w, http.StatusInternalServerError, accounts.ErrProfileCreate.Error())
		default:
			h.logger.Error("register failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email and password required")
		return
	}

	session, err := h.identities.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("sign in failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "sign in failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "refresh_token required")
		return
	}

	session, err := h.identities.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidRefreshToken) {
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "refresh_token required")
		return
	}
	if err := h.identities.SignOut(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("sign out failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "sign out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me must be mounted behind Guard.RequireAuth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	caller, ok := CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		UserID: caller.UserID,
		Email:  caller.Email,
		Role:   h.roles.Resolve(r.Context(), caller.UserID),
	})
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	set := auth.JWKSet{Keys: []auth.JWK{}}
	if h.keys != nil {
		if keys := h.keys(); keys != nil {
			set.Keys = keys
		}
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, set)
}
