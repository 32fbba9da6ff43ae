package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
)

// InsertProfile stores p with role user; roles are only ever granted out of band.
func (s *Store) InsertProfile(ctx context.Context, p model.Profile) error {
	evt, err := outbox.NewEvent("profile", p.ID, outbox.EventProfileCreated, map[string]any{
		"user_id":  p.ID,
		"username": p.Username,
		"email":    p.Email,
	})
	if err != nil {
		return err
	}
	err = s.withEvent(ctx, evt, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, username, full_name, email, phone, instagram)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		`, p.ID, p.Username, p.FullName, p.Email, p.Phone, p.Instagram)
		return err
	})
	return translate(err)
}

func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(username, ''), COALESCE(full_name, ''), COALESCE(email, ''),
			COALESCE(phone, ''), COALESCE(instagram, ''), COALESCE(role, 'user')
		FROM profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Username, &p.FullName, &p.Email, &p.Phone, &p.Instagram, &role)
	if err != nil {
		return model.Profile{}, translate(err)
	}
	p.Role = model.NormalizeRole(role)
	return p, nil
}

// GetRole reads the stored role. A missing profile is ErrNotFound; callers decide
// whether that means "user".
func (s *Store) GetRole(ctx context.Context, id string) (model.Role, error) {
	var role string
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(role, 'user') FROM profiles WHERE id = $1`, id).Scan(&role)
	if err != nil {
		return "", translate(err)
	}
	return model.NormalizeRole(role), nil
}
