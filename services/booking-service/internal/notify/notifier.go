// Package notify tells customers and the studio about booking changes.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Topics are the outbox event types the notifier consumes.
var Topics = []string{outbox.EventBookingCreated, outbox.EventBookingStatusChanged}

type Directory interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	GetPackage(ctx context.Context, id string) (model.Package, error)
}

type Config struct {
	StudioName string
	AdminEmail string
	Location   *time.Location
}

type Notifier struct {
	dir    Directory
	email  EmailSender
	sms    SMSSender
	cfg    Config
	logger *slog.Logger
}

// New builds a notifier. sms may be nil.
func New(dir Directory, email EmailSender, sms SMSSender, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StudioName == "" {
		cfg.StudioName = "Photobook"
	}
	return &Notifier{dir: dir, email: email, sms: sms, cfg: cfg, logger: logger}
}

type bookingPayload struct {
	BookingID      string `json:"booking_id"`
	UserID         string `json:"user_id"`
	PackageID      string `json:"package_id"`
	StartTime      string `json:"start_time"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

// Handle is a consumer.Handler. Malformed payloads are logged and dropped.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	var p bookingPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil || p.BookingID == "" || p.UserID == "" {
		n.logger.Error("invalid booking payload", "topic", msg.Topic, "err", err)
		return nil
	}

	switch msg.Topic {
	case outbox.EventBookingCreated:
		return n.bookingCreated(ctx, p)
	case outbox.EventBookingStatusChanged:
		return n.statusChanged(ctx, p)
	default:
		n.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}
}

func (n *Notifier) bookingCreated(ctx context.Context, p bookingPayload) error {
	profile, ok, err := n.profile(ctx, p.UserID)
	if err != nil || !ok {
		return err
	}
	when := n.when(p.StartTime)
	pkgName := n.packageName(ctx, p.PackageID)
	short := shortID(p.BookingID)

	body := fmt.Sprintf("Hi %s,\nwe received your booking #%s for %s on %s.\nIt stays pending until the studio confirms it.\n\n%s",
		greeting(profile), short, pkgName, when, n.cfg.StudioName)
	if err := n.email.Send(profile.Email, "Booking request received", body); err != nil {
		return fmt.Errorf("send booking receipt: %w", err)
	}

	if n.cfg.AdminEmail != "" {
		adminBody := fmt.Sprintf("New booking #%s\nCustomer: %s <%s> %s\nPackage: %s\nWhen: %s",
			short, greeting(profile), profile.Email, profile.Phone, pkgName, when)
		if err := n.email.Send(n.cfg.AdminEmail, "New booking to review", adminBody); err != nil {
			return fmt.Errorf("send admin notice: %w", err)
		}
	}
	n.logger.Info("booking receipt sent", "booking_id", p.BookingID, "user_id", p.UserID)
	return nil
}

func (n *Notifier) statusChanged(ctx context.Context, p bookingPayload) error {
	status := model.Status(p.Status)
	if status == model.StatusPending || p.Status == p.PreviousStatus {
		return nil
	}
	profile, ok, err := n.profile(ctx, p.UserID)
	if err != nil || !ok {
		return err
	}
	when := n.when(p.StartTime)
	short := shortID(p.BookingID)

	var subject, line string
	switch status {
	case model.StatusConfirmed:
		subject = "Booking confirmed"
		line = fmt.Sprintf("your booking #%s is confirmed.", short)
		if when != "" {
			line = fmt.Sprintf("your booking #%s is confirmed. See you on %s.", short, when)
		}
	case model.StatusCancelled:
		subject = "Booking cancelled"
		line = fmt.Sprintf("your booking #%s has been cancelled.", short)
	default:
		n.logger.Warn("unknown booking status in event", "booking_id", p.BookingID, "status", p.Status)
		return nil
	}

	body := fmt.Sprintf("Hi %s,\n%s\n\n%s", greeting(profile), line, n.cfg.StudioName)
	var errs []error
	if err := n.email.Send(profile.Email, subject, body); err != nil {
		errs = append(errs, fmt.Errorf("send status email: %w", err))
	}
	if n.sms != nil && profile.Phone != "" {
		if err := n.sms.Send(ctx, profile.Phone, n.cfg.StudioName+": "+line); err != nil {
			errs = append(errs, fmt.Errorf("send status sms via %s: %w", n.sms.ProviderID(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	n.logger.Info("status notification sent", "booking_id", p.BookingID, "status", p.Status)
	return nil
}

// profile reports ok=false, without error, for users whose profile no longer exists.
func (n *Notifier) profile(ctx context.Context, userID string) (model.Profile, bool, error) {
	profile, err := n.dir.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		n.logger.Warn("no profile for booking owner", "user_id", userID)
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	if profile.Email == "" {
		n.logger.Warn("profile has no email", "user_id", userID)
		return model.Profile{}, false, nil
	}
	return profile, true, nil
}

func (n *Notifier) packageName(ctx context.Context, id string) string {
	pkg, err := n.dir.GetPackage(ctx, id)
	if err != nil {
		n.logger.Warn("package lookup failed", "package_id", id, "err", err)
		return "your session"
	}
	return pkg.Name
}

func (n *Notifier) when(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.In(n.cfg.Location).Format("Mon 02 Jan 2006 15:04")
}

func greeting(p model.Profile) string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.Username
}

func shortID(id string) string {
	return model.Booking{ID: id}.ShortID()
}
