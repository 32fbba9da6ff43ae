package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

// ErrProfileCreate means the identity was created but its profile was not, and the
// identity has been rolled back.
var ErrProfileCreate = errors.New("registration failed: could not create profile")

const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Instagram string `json:"instagram"`
	Password  string `json:"password"`
}

// ValidationError maps field names to messages.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

func (r Registration) normalized() Registration {
	return Registration{
		Username:  strings.TrimSpace(r.Username),
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:     strings.TrimSpace(r.Phone),
		Instagram: strings.TrimPrefix(strings.TrimSpace(r.Instagram), "@"),
		Password:  r.Password,
	}
}

func (r Registration) Validate() error {
	v := ValidationError{}
	if r.Username == "" {
		v["username"] = "username is required"
	}
	switch {
	case r.Email == "":
		v["email"] = "email is required"
	case !emailPattern.MatchString(r.Email):
		v["email"] = "invalid email address"
	}
	if r.Phone == "" {
		v["phone"] = "phone is required"
	}
	if r.Instagram == "" {
		v["instagram"] = "instagram account is required"
	}
	switch {
	case r.Password == "":
		v["password"] = "password is required"
	case len(r.Password) < MinPasswordLength:
		v["password"] = fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	}
	if len(v) > 0 {
		return v
	}
	return nil
}

type ProfileWriter interface {
	InsertProfile(ctx context.Context, p model.Profile) error
}

type Registrar struct {
	identities identity.Provider
	profiles   ProfileWriter
	logger     *slog.Logger
}

func NewRegistrar(identities identity.Provider, profiles ProfileWriter, logger *slog.Logger) *Registrar {
	return &Registrar{identities: identities, profiles: profiles, logger: logger}
}

// Register creates the identity and then its profile. If the profile insert fails the
// identity is deleted again, so a user never exists without a profile.
func (r *Registrar) Register(ctx context.Context, in Registration) (identity.User, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return identity.User{}, err
	}

	user, err := r.identities.SignUp(ctx, in.Email, in.Password, map[string]string{
		"username":  in.Username,
		"full_name": in.Username,
		"phone":     in.Phone,
		"instagram": in.Instagram,
	})
	if err != nil {
		return identity.User{}, err
	}

	profileErr := r.profiles.InsertProfile(ctx, model.Profile{
		ID:        user.ID,
		Username:  in.Username,
		FullName:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		Instagram: in.Instagram,
		Role:      model.RoleUser,
	})
	if profileErr == nil {
		return user, nil
	}

	r.logger.Error("profile insert failed; deleting identity", "user_id", user.ID, "err", profileErr)
	if delErr := r.identities.DeleteUser(ctx, user.ID); delErr != nil {
		r.logger.Error("identity compensation failed", "user_id", user.ID, "err", delErr)
		return identity.User{}, fmt.Errorf("%w: %w", ErrProfileCreate, errors.Join(profileErr, delErr))
	}
	return identity.User{}, fmt.Errorf("%w: %w", ErrProfileCreate, profileErr)
}
