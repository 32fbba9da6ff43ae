// Package client is the Go client of the booking service: typed API calls plus the
// session, navigation and booking-wizard state a front end keeps.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/accounts"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx response. Message is the server's error text, verbatim.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// IsConflict reports whether err is the "slot no longer available" response.
func IsConflict(err error) bool {
	return statusOf(err) == http.StatusConflict
}

func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL. A nil httpClient gets an instrumented default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetAccessToken sets the bearer token sent with every request; empty clears it.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type Me struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

type SlotsResult struct {
	Date            string              `json:"date"`
	PackageID       string              `json:"package_id"`
	DurationMinutes int                 `json:"duration_minutes"`
	Timezone        string              `json:"timezone"`
	Slots           []availability.Slot `json:"slots"`
}

func (c *Client) Register(ctx context.Context, in accounts.Registration) (identity.User, error) {
	var user identity.User
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", in, &user)
	return user, err
}

func (c *Client) Login(ctx context.Context, email, password string) (identity.Session, error) {
	var s identity.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, &s)
	return s, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (identity.Session, error) {
	var s identity.Session
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, &s)
	return s, err
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": refreshToken}, nil)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &me)
	return me, err
}

func (c *Client) Packages(ctx context.Context) ([]model.Package, error) {
	var out []model.Package
	err := c.do(ctx, http.MethodGet, "/api/v1/packages", nil, &out)
	return out, err
}

func (c *Client) Cards(ctx context.Context) ([]catalog.Card, error) {
	var out []catalog.Card
	err := c.do(ctx, http.MethodGet, "/api/v1/packages?view=cards", nil, &out)
	return out, err
}

func (c *Client) Slots(ctx context.Context, packageID, date string) (SlotsResult, error) {
	q := url.Values{"package_id": {packageID}, "date": {date}}
	var out SlotsResult
	err := c.do(ctx, http.MethodGet, "/api/v1/slots?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) CreateBooking(ctx context.Context, packageID, date, label string) (model.Booking, error) {
	var b model.Booking
	err := c.do(ctx, http.MethodPost, "/api/v1/bookings", map[string]string{"package_id": packageID, "date": date, "time": label}, &b)
	return b, err
}

func (c *Client) MyBookings(ctx context.Context) ([]model.BookingView, error) {
	var out []model.BookingView
	err := c.do(ctx, http.MethodGet, "/api/v1/bookings", nil, &out)
	return out, err
}

func (c *Client) AdminBookings(ctx context.Context) (booking.Overview, error) {
	var out booking.Overview
	err := c.do(ctx, http.MethodGet, "/api/v1/admin/bookings", nil, &out)
	return out, err
}

func (c *Client) AdminAudit(ctx context.Context, f storage.AuditFilter) ([]storage.AuditEvent, error) {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.ActorID != "" {
		q.Set("actor", f.ActorID)
	}
	var out []storage.AuditEvent
	err := c.do(ctx, http.MethodGet, "/api/v1/admin/audit?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) SetBookingStatus(ctx context.Context, bookingID string, status model.Status) error {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/bookings/status", map[string]string{"booking_id": bookingID, "status": string(status)}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil {
			apiErr.Message = envelope.Error
			apiErr.Fields = envelope.Fields
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
