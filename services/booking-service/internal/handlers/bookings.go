package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
)

type BookingCreator interface {
	Create(ctx context.Context, userID string, pkg model.Package, day time.Time, label string) (model.Booking, error)
}

type BookingStore interface {
	GetPackage(ctx context.Context, id string) (model.Package, error)
	ListUserBookings(ctx context.Context, userID string) ([]model.BookingView, error)
}

type BookingHandler struct {
	writer BookingCreator
	store  BookingStore
	loc    *time.Location
	logger *slog.Logger
}

// NewBookingHandler interprets request dates in loc.
func NewBookingHandler(writer BookingCreator, store BookingStore, loc *time.Location, logger *slog.Logger) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{writer: writer, store: store, loc: loc, logger: logger}
}

type createBookingRequest struct {
	PackageID string `json:"package_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type createBookingResponse struct {
	model.Booking
	ShortID string `json:"short_id"`
}

// Bookings serves POST (create) and GET (own bookings) on one path.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.listOwn(w, r)
	default:
		httpx.RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.PackageID = strings.TrimSpace(req.PackageID)
	if req.PackageID == "" || req.Date == "" || req.Time == "" {
		httpx.WriteError(w, http.StatusBadRequest, "package_id, date and time required")
		return
	}
	day, err := booking.ParseDay(req.Date, h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if uuid.Validate(req.PackageID) != nil {
		httpx.WriteError(w, http.StatusNotFound, "package not found")
		return
	}

	ctx := r.Context()
	pkg, err := h.store.GetPackage(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("get package failed", "package_id", req.PackageID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load package")
		return
	}

	b, err := h.writer.Create(ctx, caller.UserID, pkg, day, req.Time)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidSlotLabel), errors.Is(err, booking.ErrInvalidPackage):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrSlotTaken):
			httpx.WriteError(w, http.StatusConflict, storage.ErrSlotTaken.Error())
		case errors.Is(err, storage.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "package or profile not found")
		default:
			h.logger.Error("create booking failed", "user_id", caller.UserID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}
	h.logger.Info("booking created", "booking_id", b.ID, "user_id", b.UserID, "start_time", b.StartTime)
	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{Booking: b, ShortID: b.ShortID()})
}

func (h *BookingHandler) listOwn(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	views, err := h.store.ListUserBookings(r.Context(), caller.UserID)
	if err != nil {
		h.logger.Error("list own bookings failed", "user_id", caller.UserID, "err", err)
		views = nil
	}
	if views == nil {
		views = []model.BookingView{}
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}
