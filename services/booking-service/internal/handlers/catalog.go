package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/studio"
)

type CatalogStore interface {
	ListPackages(ctx context.Context) ([]model.Package, error)
	GetPackage(ctx context.Context, id string) (model.Package, error)
	BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error)
}

// CatalogHandler serves packages and the slot grid. Read failures are logged and
// answered with empty collections.
type CatalogHandler struct {
	store  CatalogStore
	studio studio.Config
	logger *slog.Logger
	now    func() time.Time
}

func NewCatalogHandler(store CatalogStore, cfg studio.Config, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, studio: cfg, logger: logger, now: time.Now}
}

type slotsResponse struct {
	Date            string              `json:"date"`
	PackageID       string              `json:"package_id"`
	DurationMinutes int                 `json:"duration_minutes"`
	Timezone        string              `json:"timezone"`
	Slots           []availability.Slot `json:"slots"`
}

func (h *CatalogHandler) Packages(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	packages, err := h.store.ListPackages(r.Context())
	if err != nil {
		h.logger.Error("list packages failed", "err", err)
		packages = nil
	}
	if packages == nil {
		packages = []model.Package{}
	}

	switch r.URL.Query().Get("view") {
	case "", "list":
		httpx.WriteJSON(w, http.StatusOK, packages)
	case "cards":
		cards := catalog.Group(packages, h.studio.Catalog.Cards)
		if cards == nil {
			cards = []catalog.Card{}
		}
		httpx.WriteJSON(w, http.StatusOK, cards)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "view must be list or cards")
	}
}

func (h *CatalogHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	packageID := q.Get("package_id")
	if packageID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "package_id required")
		return
	}
	if uuid.Validate(packageID) != nil {
		httpx.WriteError(w, http.StatusNotFound, "package not found")
		return
	}
	day, err := booking.ParseDay(q.Get("date"), h.studio.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	resp := slotsResponse{
		Date:      day.Format(booking.DayLayout),
		PackageID: packageID,
		Timezone:  h.studio.Location().String(),
		Slots:     []availability.Slot{},
	}

	ctx := r.Context()
	pkg, err := h.store.GetPackage(ctx, packageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("get package failed", "package_id", packageID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp.DurationMinutes = pkg.DurationMinutes

	win := h.studio.Window()
	start, end := win.Bounds(day)
	busy, err := h.store.BusyIntervals(ctx, start, end)
	if err != nil {
		h.logger.Error("load bookings for day failed", "date", resp.Date, "err", err)
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}

	if slots := availability.Generate(day, pkg.DurationMinutes, busy, win, h.now()); slots != nil {
		resp.Slots = slots
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
