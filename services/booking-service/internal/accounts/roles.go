package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
)

type RoleReader interface {
	GetRole(ctx context.Context, userID string) (model.Role, error)
}

// Roles resolves a user's role from the profile store on every call.
type Roles struct {
	store  RoleReader
	logger *slog.Logger
}

func NewRoles(store RoleReader, logger *slog.Logger) *Roles {
	return &Roles{store: store, logger: logger}
}

// Resolve falls back to RoleUser when the profile is missing or unreadable, so a
// failed lookup can never grant admin.
func (r *Roles) Resolve(ctx context.Context, userID string) model.Role {
	role, err := r.store.GetRole(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("role lookup failed", "user_id", userID, "err", err)
		}
		return model.RoleUser
	}
	return role
}
