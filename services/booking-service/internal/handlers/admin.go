package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

type Reviewer interface {
	Overview(ctx context.Context) (booking.Overview, error)
	SetStatus(ctx context.Context, bookingID string, status string, actorID string) error
}

type AuditLog interface {
	ListAudit(ctx context.Context, f storage.AuditFilter) ([]storage.AuditEvent, error)
}

// AdminHandler must be mounted behind Guard.RequireAdmin.
type AdminHandler struct {
	review Reviewer
	audit  AuditLog
	logger *slog.Logger
}

// NewAdminHandler accepts a nil audit log; the audit route then answers 404.
func NewAdminHandler(review Reviewer, audit AuditLog, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{review: review, audit: audit, logger: logger}
}

type setStatusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type setStatusResponse struct {
	BookingID string       `json:"booking_id"`
	Status    model.Status `json:"status"`
}

func (h *AdminHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	overview, err := h.review.Overview(r.Context())
	if err != nil {
		h.logger.Error("admin overview failed", "err", err)
		overview = booking.Overview{
			Bookings: []model.BookingView{},
			Stats:    booking.Stats{TotalEarnings: decimal.Zero},
		}
	}
	httpx.WriteJSON(w, http.StatusOK, overview)
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required")
		return
	}
	if uuid.Validate(req.BookingID) != nil {
		httpx.WriteError(w, http.StatusNotFound, "booking not found")
		return
	}

	caller, _ := CallerFrom(r.Context())
	if err := h.review.SetStatus(r.Context(), req.BookingID, req.Status, caller.UserID); err != nil {
		switch {
		case errors.Is(err, booking.ErrInvalidStatus):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, storage.ErrSlotTaken):
			httpx.WriteError(w, http.StatusConflict, storage.ErrSlotTaken.Error())
		default:
			h.logger.Error("update booking status failed", "booking_id", req.BookingID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to update booking")
		}
		return
	}
	h.logger.Info("booking status updated", "booking_id", req.BookingID, "status", req.Status, "actor_id", caller.UserID)
	httpx.WriteJSON(w, http.StatusOK, setStatusResponse{BookingID: req.BookingID, Status: model.Status(req.Status)})
}

func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.audit == nil {
		httpx.WriteError(w, http.StatusNotFound, "audit not available")
		return
	}

	q := r.URL.Query()
	filter := storage.AuditFilter{Type: q.Get("type"), ActorID: q.Get("actor")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		filter.Limit = n
	}
	if filter.ActorID != "" && uuid.Validate(filter.ActorID) != nil {
		httpx.WriteError(w, http.StatusBadRequest, "actor must be a user id")
		return
	}

	events, err := h.audit.ListAudit(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit read failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load audit events")
		return
	}
	if events == nil {
		events = []storage.AuditEvent{}
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}
