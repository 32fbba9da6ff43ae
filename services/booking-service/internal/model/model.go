package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// NormalizeRole maps anything unknown or empty to RoleUser.
func NormalizeRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Package is studio reference data; it is never written by this service.
type Package struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
}

func (p Package) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

type Booking struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PackageID string    `json:"package_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ShortID is the prefix shown on the dashboard.
func (b Booking) ShortID() string {
	if len(b.ID) <= 8 {
		return b.ID
	}
	return b.ID[:8]
}

type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Instagram string `json:"instagram,omitempty"`
	Role      Role   `json:"role"`
}

// BookingView is a booking joined with its package and, for admins, the owner's profile.
type BookingView struct {
	Booking
	ShortID      string          `json:"short_id"`
	PackageName  string          `json:"package_name"`
	PackagePrice decimal.Decimal `json:"package_price"`
	Customer     *Profile        `json:"customer,omitempty"`
}
