package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/photobook/libs/auth"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/accounts"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/studio"
	"github.com/shopspring/decimal"
)

const testSecret = "handlers-test-secret-0123456789"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type hsVerifier struct{}

func (hsVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, testSecret)
}

// tokenFor signs a token carrying role, which the guard must ignore.
func tokenFor(t *testing.T, sub string, role string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{Sub: sub, Email: sub + "@studio.test", Role: role, Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	return token
}

type fakeRoles map[string]model.Role

func (f fakeRoles) Resolve(_ context.Context, userID string) model.Role {
	if r, ok := f[userID]; ok {
		return r
	}
	return model.RoleUser
}

func newGuard(roles fakeRoles) *Guard {
	return NewGuard(hsVerifier{}, nil, roles, discardLogger())
}

func do(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func decodeError(t *testing.T, rw *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rw.Body.String(), err)
	}
	return body.Error
}

func TestRequireAuth(t *testing.T) {
	g := newGuard(nil)
	h := g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFrom(r.Context())
		if !ok || c.UserID != "user-1" || c.Email != "user-1@studio.test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if rw := do(t, h, http.MethodGet, "/x", tokenFor(t, "user-1", ""), nil); rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw := do(t, h, http.MethodGet, "/x", "", nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}
	if rw := do(t, h, http.MethodGet, "/x", "badtoken", nil); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rw.Code)
	}
}

func TestRequireAdminIgnoresTokenRole(t *testing.T) {
	g := newGuard(fakeRoles{"admin-1": model.RoleAdmin})
	h := g.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := CallerFrom(r.Context())
		if c.Role != model.RoleAdmin {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if rw := do(t, h, http.MethodGet, "/admin", tokenFor(t, "user-1", "admin"), nil); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user claiming admin, got %d", rw.Code)
	}
	if rw := do(t, h, http.MethodGet, "/admin", tokenFor(t, "admin-1", ""), nil); rw.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored admin, got %d", rw.Code)
	}
}

func TestRequireAuthFallsBackToJWKS(t *testing.T) {
	key := mustRSAKey(t)
	kid := auth.KeyID(&key.PublicKey)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.JWKSet{Keys: []auth.JWK{auth.PublicJWK(&key.PublicKey, kid)}})
	}))
	defer srv.Close()

	now := time.Now()
	token, err := auth.SignRS256(auth.Claims{Sub: "remote-1", Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()}, key, kid)
	if err != nil {
		t.Fatalf("SignRS256: %v", err)
	}

	g := NewGuard(hsVerifier{}, auth.NewJWKSClient(srv.URL, time.Minute, srv.Client()), nil, discardLogger())
	h := g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	if rw := do(t, h, http.MethodGet, "/x", token, nil); rw.Code != http.StatusOK {
		t.Fatalf("expected 200 via JWKS, got %d", rw.Code)
	}
}

type fakeRegistrar struct {
	err  error
	last accounts.Registration
}

func (f *fakeRegistrar) Register(_ context.Context, in accounts.Registration) (identity.User, error) {
	f.last = in
	if f.err != nil {
		return identity.User{}, f.err
	}
	return identity.User{ID: "user-1", Email: in.Email}, nil
}

type fakeIdentities struct {
	identity.Provider
	signInErr  error
	refreshErr error
	signedOut  []string
}

func (f *fakeIdentities) SignIn(_ context.Context, email, _ string) (identity.Session, error) {
	if f.signInErr != nil {
		return identity.Session{}, f.signInErr
	}
	return identity.Session{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", User: identity.User{ID: "user-1", Email: email}}, nil
}

func (f *fakeIdentities) Refresh(_ context.Context, token string) (identity.Session, error) {
	if f.refreshErr != nil {
		return identity.Session{}, f.refreshErr
	}
	return identity.Session{AccessToken: "access-2", RefreshToken: token + "-2", TokenType: "Bearer"}, nil
}

func (f *fakeIdentities) SignOut(_ context.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return nil
}

func newAuthMux(reg *fakeRegistrar, idp *fakeIdentities, roles fakeRoles) *http.ServeMux {
	h := NewAuthHandler(reg, idp, roles, func() []auth.JWK { return nil }, discardLogger())
	g := newGuard(roles)
	mux := http.NewServeMux()
	API{Guard: g, Auth: h}.mountAuth(mux)
	return mux
}

func TestRegisterHandler(t *testing.T) {
	body := map[string]string{"username": "anna", "email": "anna@studio.test", "phone": "333", "instagram": "anna", "password": "secret1"}

	reg := &fakeRegistrar{}
	rw := do(t, newAuthMux(reg, &fakeIdentities{}, nil), http.MethodPost, "/api/v1/auth/register", "", body)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if reg.last.Username != "anna" || reg.last.Instagram != "anna" {
		t.Fatalf("registration not decoded: %+v", reg.last)
	}

	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"duplicate email", identity.ErrEmailTaken, http.StatusConflict, "email already registered"},
		{"profile failure", errors.Join(accounts.ErrProfileCreate, errors.New("boom")), http.StatusInternalServerError, accounts.ErrProfileCreate.Error()},
		{"validation", accounts.ValidationError{"password": "too short"}, http.StatusBadRequest, "invalid registration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := do(t, newAuthMux(&fakeRegistrar{err: tc.err}, &fakeIdentities{}, nil), http.MethodPost, "/api/v1/auth/register", "", body)
			if rw.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rw.Code)
			}
			if got := decodeError(t, rw); got != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, got)
			}
		})
	}

	rw = do(t, newAuthMux(reg, &fakeIdentities{}, nil), http.MethodGet, "/api/v1/auth/register", "", nil)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	idp := &fakeIdentities{}
	mux := newAuthMux(&fakeRegistrar{}, idp, nil)

	rw := do(t, mux, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "a@b.co", Password: "secret1"})
	if rw.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rw.Code)
	}
	var session identity.Session
	if err := json.Unmarshal(rw.Body.Bytes(), &session); err != nil || session.AccessToken != "access" {
		t.Fatalf("unexpected session %s", rw.Body.String())
	}

	rw = do(t, mux, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: "refresh"})
	if rw.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rw.Code)
	}

	rw = do(t, mux, http.MethodPost, "/api/v1/auth/logout", "", refreshRequest{RefreshToken: "refresh-2"})
	if rw.Code != http.StatusNoContent || len(idp.signedOut) != 1 {
		t.Fatalf("logout: expected 204 and one sign-out, got %d %v", rw.Code, idp.signedOut)
	}

	bad := newAuthMux(&fakeRegistrar{}, &fakeIdentities{signInErr: identity.ErrInvalidCredentials, refreshErr: identity.ErrInvalidRefreshToken}, nil)
	rw = do(t, bad, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "a@b.co", Password: "nope"})
	if rw.Code != http.StatusUnauthorized || decodeError(t, rw) != "invalid login credentials" {
		t.Fatalf("expected verbatim credential error, got %d %s", rw.Code, rw.Body.String())
	}
	rw = do(t, bad, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: "old"})
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad refresh, got %d", rw.Code)
	}
}

func TestMeResolvesRoleFromStore(t *testing.T) {
	mux := newAuthMux(&fakeRegistrar{}, &fakeIdentities{}, fakeRoles{"admin-1": model.RoleAdmin})

	rw := do(t, mux, http.MethodGet, "/api/v1/auth/me", tokenFor(t, "admin-1", ""), nil)
	var me meResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if rw.Code != http.StatusOK || me.Role != model.RoleAdmin || me.UserID != "admin-1" {
		t.Fatalf("unexpected me %d %+v", rw.Code, me)
	}

	rw = do(t, mux, http.MethodGet, "/api/v1/auth/me", tokenFor(t, "user-2", "admin"), nil)
	if err := json.Unmarshal(rw.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Role != model.RoleUser {
		t.Fatalf("expected user role, got %q", me.Role)
	}
}

func TestJWKSHandler(t *testing.T) {
	key := mustRSAKey(t)
	h := NewAuthHandler(nil, nil, nil, func() []auth.JWK { return []auth.JWK{auth.PublicJWK(&key.PublicKey, "k1")} }, discardLogger())
	rw := do(t, http.HandlerFunc(h.JWKS), http.MethodGet, "/.well-known/jwks.json", "", nil)
	var set auth.JWKSet
	if err := json.Unmarshal(rw.Body.Bytes(), &set); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(set.Keys) != 1 || set.Keys[0].Kid != "k1" {
		t.Fatalf("unexpected jwks %+v", set)
	}

	rw = do(t, http.HandlerFunc(NewAuthHandler(nil, nil, nil, nil, discardLogger()).JWKS), http.MethodGet, "/", "", nil)
	if !strings.Contains(rw.Body.String(), `"keys":[]`) {
		t.Fatalf("expected empty key set, got %s", rw.Body.String())
	}
}

const (
	singlePackageID  = "6f1c2a4e-8b7d-4c3a-9e21-5d0b7a9c3f10"
	missingPackageID = "0d9e8f7a-1b2c-4d3e-8f4a-5b6c7d8e9f00"
	pendingBookingID = "3a8f5c2e-47d1-4b6a-a0c9-e2f1d3b4c5a6"
	missingBookingID = "9b7e6d5c-4a3b-4c2d-8e1f-0a9b8c7d6e5f"
)

type fakeCatalog struct {
	gets       int
	packages   []model.Package
	listErr    error
	busy       []availability.Interval
	busyErr    error
	busyRange  [2]time.Time
	views      []model.BookingView
	viewsErr   error
	viewsOwner string
}

func (f *fakeCatalog) ListPackages(context.Context) ([]model.Package, error) {
	return f.packages, f.listErr
}

func (f *fakeCatalog) GetPackage(_ context.Context, id string) (model.Package, error) {
	f.gets++
	for _, p := range f.packages {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Package{}, storage.ErrNotFound
}

func (f *fakeCatalog) BusyIntervals(_ context.Context, start, end time.Time) ([]availability.Interval, error) {
	f.busyRange = [2]time.Time{start, end}
	return f.busy, f.busyErr
}

func (f *fakeCatalog) ListUserBookings(_ context.Context, userID string) ([]model.BookingView, error) {
	f.viewsOwner = userID
	return f.views, f.viewsErr
}

func testPackages() []model.Package {
	return []model.Package{
		{ID: "p-promo", Name: "Promo", Price: decimal.RequireFromString("30"), DurationMinutes: 30},
		{ID: "p-single", Name: "Base Singolo", Price: decimal.RequireFromString("50"), DurationMinutes: 60},
		{ID: "p-couple", Name: "Base Coppia", Price: decimal.RequireFromString("70"), DurationMinutes: 60},
		{ID: "p-premium", Name: "Premium", Price: decimal.RequireFromString("120"), DurationMinutes: 90},
	}
}

func TestPackagesHandler(t *testing.T) {
	store := &fakeCatalog{packages: testPackages()}
	h := NewCatalogHandler(store, studio.Default(), discardLogger())

	rw := do(t, http.HandlerFunc(h.Packages), http.MethodGet, "/api/v1/packages", "", nil)
	var list []model.Package
	if err := json.Unmarshal(rw.Body.Bytes(), &list); err != nil || len(list) != 4 {
		t.Fatalf("expected 4 packages, got %s", rw.Body.String())
	}

	rw = do(t, http.HandlerFunc(h.Packages), http.MethodGet, "/api/v1/packages?view=cards", "", nil)
	var cards []struct {
		ID      string          `json:"id"`
		Options []model.Package `json:"options"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &cards); err != nil {
		t.Fatalf("decode cards: %v", err)
	}
	if len(cards) != 3 || cards[1].ID != "base-group" || len(cards[1].Options) != 2 {
		t.Fatalf("unexpected cards %s", rw.Body.String())
	}

	failing := NewCatalogHandler(&fakeCatalog{listErr: errors.New("db down")}, studio.Default(), discardLogger())
	rw = do(t, http.HandlerFunc(failing.Packages), http.MethodGet, "/api/v1/packages", "", nil)
	if rw.Code != http.StatusOK || strings.TrimSpace(rw.Body.String()) != "[]" {
		t.Fatalf("expected empty list on read failure, got %d %s", rw.Code, rw.Body.String())
	}
}

func TestSlotsHandler(t *testing.T) {
	store := &fakeCatalog{packages: []model.Package{{ID: singlePackageID, Name: "Base Singolo", DurationMinutes: 60}}}
	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	store.busy = []availability.Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}
	h := NewCatalogHandler(store, studio.Default(), discardLogger())
	h.now = func() time.Time { return time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC) }

	rw := do(t, http.HandlerFunc(h.Slots), http.MethodGet, "/api/v1/slots?package_id="+singlePackageID+"&date=2030-03-04", "", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(resp.Slots) != 17 || resp.DurationMinutes != 60 {
		t.Fatalf("expected 17 slots, got %d", len(resp.Slots))
	}
	if !resp.Slots[0].Available || resp.Slots[1].Available || resp.Slots[4].Label != "11:00" || !resp.Slots[4].Available {
		t.Fatalf("unexpected grid %+v", resp.Slots[:5])
	}
	if !store.busyRange[0].Equal(day.Add(9*time.Hour)) || !store.busyRange[1].Equal(day.Add(18*time.Hour)) {
		t.Fatalf("expected busy lookup over the work window, got %v", store.busyRange)
	}

	for target, status := range map[string]int{
		"/api/v1/slots?date=2030-03-04":                                     http.StatusBadRequest,
		"/api/v1/slots?package_id=" + singlePackageID + "&date=04/03/2030":  http.StatusBadRequest,
		"/api/v1/slots?package_id=" + missingPackageID + "&date=2030-03-04": http.StatusNotFound,
		"/api/v1/slots?package_id=abc&date=2030-03-04":                      http.StatusNotFound,
	} {
		if rw := do(t, http.HandlerFunc(h.Slots), http.MethodGet, target, "", nil); rw.Code != status {
			t.Fatalf("%s: expected %d, got %d", target, status, rw.Code)
		}
	}

	gets := store.gets
	rw = do(t, http.HandlerFunc(h.Slots), http.MethodGet, "/api/v1/slots?package_id=abc&date=2030-03-04", "", nil)
	if got := decodeError(t, rw); got != "package not found" || store.gets != gets {
		t.Fatalf("malformed package id should be rejected before the store, got %q after %d reads", got, store.gets-gets)
	}

	store.busyErr = errors.New("db down")
	rw = do(t, http.HandlerFunc(h.Slots), http.MethodGet, "/api/v1/slots?package_id="+singlePackageID+"&date=2030-03-04", "", nil)
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if rw.Code != http.StatusOK || len(resp.Slots) != 0 {
		t.Fatalf("expected empty slots on read failure, got %d %d", rw.Code, len(resp.Slots))
	}
}

type fakeCreator struct {
	err  error
	last struct {
		userID string
		day    time.Time
		label  string
	}
}

func (f *fakeCreator) Create(_ context.Context, userID string, pkg model.Package, day time.Time, label string) (model.Booking, error) {
	f.last.userID, f.last.day, f.last.label = userID, day, label
	if f.err != nil {
		return model.Booking{}, f.err
	}
	return booking.NewBooking(userID, pkg, day, label)
}

func TestCreateBooking(t *testing.T) {
	store := &fakeCatalog{packages: []model.Package{{ID: singlePackageID, DurationMinutes: 45}}}
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	creator := &fakeCreator{}
	h := newGuard(nil).RequireAuth(http.HandlerFunc(NewBookingHandler(creator, store, rome, discardLogger()).Bookings))
	token := tokenFor(t, "user-1", "")

	rw := do(t, h, http.MethodPost, "/api/v1/bookings", token, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "14:30"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var created model.Booking
	if err := json.Unmarshal(rw.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	wantStart := time.Date(2030, 3, 5, 14, 30, 0, 0, rome)
	if !created.StartTime.Equal(wantStart) || !created.EndTime.Equal(wantStart.Add(45*time.Minute)) || created.Status != model.StatusPending {
		t.Fatalf("unexpected booking %+v", created)
	}
	if creator.last.userID != "user-1" || creator.last.day.Location() != rome {
		t.Fatalf("unexpected create call %+v", creator.last)
	}

	cases := []struct {
		name   string
		err    error
		req    createBookingRequest
		status int
	}{
		{"slot taken", storage.ErrSlotTaken, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "14:30"}, http.StatusConflict},
		{"bad label", booking.ErrInvalidSlotLabel, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "25:00"}, http.StatusBadRequest},
		{"unknown package", nil, createBookingRequest{PackageID: missingPackageID, Date: "2030-03-05", Time: "14:30"}, http.StatusNotFound},
		{"bad date", nil, createBookingRequest{PackageID: singlePackageID, Date: "tomorrow", Time: "14:30"}, http.StatusBadRequest},
		{"missing time", nil, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05"}, http.StatusBadRequest},
		{"malformed package id", nil, createBookingRequest{PackageID: "abc", Date: "2030-03-05", Time: "14:30"}, http.StatusNotFound},
		{"store failure", errors.New("insert failed"), createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "14:30"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newGuard(nil).RequireAuth(http.HandlerFunc(NewBookingHandler(&fakeCreator{err: tc.err}, store, rome, discardLogger()).Bookings))
			rw := do(t, h, http.MethodPost, "/api/v1/bookings", token, tc.req)
			if rw.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rw.Code, rw.Body.String())
			}
		})
	}

	rw = do(t, h, http.MethodPost, "/api/v1/bookings", token, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "14:30"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rw.Code)
	}
	taken := newGuard(nil).RequireAuth(http.HandlerFunc(NewBookingHandler(&fakeCreator{err: storage.ErrSlotTaken}, store, rome, discardLogger()).Bookings))
	rw = do(t, taken, http.MethodPost, "/api/v1/bookings", token, createBookingRequest{PackageID: singlePackageID, Date: "2030-03-05", Time: "14:30"})
	if got := decodeError(t, rw); got != "slot no longer available" {
		t.Fatalf("unexpected conflict message %q", got)
	}
}

func TestListOwnBookings(t *testing.T) {
	store := &fakeCatalog{views: []model.BookingView{{Booking: model.Booking{ID: "b1", UserID: "user-1"}, ShortID: "b1", PackageName: "Promo"}}}
	h := newGuard(nil).RequireAuth(http.HandlerFunc(NewBookingHandler(&fakeCreator{}, store, nil, discardLogger()).Bookings))

	rw := do(t, h, http.MethodGet, "/api/v1/bookings", tokenFor(t, "user-1", ""), nil)
	var views []model.BookingView
	if err := json.Unmarshal(rw.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || store.viewsOwner != "user-1" {
		t.Fatalf("unexpected list %+v owner %q", views, store.viewsOwner)
	}

	store.viewsErr = errors.New("db down")
	rw = do(t, h, http.MethodGet, "/api/v1/bookings", tokenFor(t, "user-1", ""), nil)
	if rw.Code != http.StatusOK || strings.TrimSpace(rw.Body.String()) != "[]" {
		t.Fatalf("expected empty list on read failure, got %d %s", rw.Code, rw.Body.String())
	}

	rw = do(t, h, http.MethodDelete, "/api/v1/bookings", tokenFor(t, "user-1", ""), nil)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

type fakeReviewer struct {
	overview booking.Overview
	err      error
	setErr   error
	set      []string
	actor    string
}

func (f *fakeReviewer) Overview(context.Context) (booking.Overview, error) {
	return f.overview, f.err
}

func (f *fakeReviewer) SetStatus(_ context.Context, id, status, actor string) error {
	if f.setErr != nil {
		return f.setErr
	}
	if !model.Status(status).Valid() {
		return booking.ErrInvalidStatus
	}
	f.set = append(f.set, id+"="+status)
	f.actor = actor
	return nil
}

type fakeAudit struct {
	filter storage.AuditFilter
	events []storage.AuditEvent
	err    error
}

func (f *fakeAudit) ListAudit(_ context.Context, filter storage.AuditFilter) ([]storage.AuditEvent, error) {
	f.filter = filter
	return f.events, f.err
}

func newAdminMux(rev *fakeReviewer) *http.ServeMux {
	return newAdminMuxWithAudit(rev, nil)
}

func newAdminMuxWithAudit(rev *fakeReviewer, audit AuditLog) *http.ServeMux {
	mux := http.NewServeMux()
	a := API{Guard: newGuard(fakeRoles{"admin-1": model.RoleAdmin}), Admin: NewAdminHandler(rev, audit, discardLogger())}
	a.mountAdmin(mux)
	return mux
}

func TestAdminBookings(t *testing.T) {
	views := []model.BookingView{
		{Booking: model.Booking{ID: "b1", Status: model.StatusConfirmed}, PackagePrice: decimal.RequireFromString("100")},
		{Booking: model.Booking{ID: "b2", Status: model.StatusPending}, PackagePrice: decimal.RequireFromString("50")},
		{Booking: model.Booking{ID: "b3", Status: model.StatusCancelled}, PackagePrice: decimal.RequireFromString("80")},
	}
	rev := &fakeReviewer{overview: booking.Overview{Bookings: views, Stats: booking.Summarize(views)}}
	mux := newAdminMux(rev)

	if rw := do(t, mux, http.MethodGet, "/api/v1/admin/bookings", tokenFor(t, "user-1", "admin"), nil); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rw.Code)
	}

	rw := do(t, mux, http.MethodGet, "/api/v1/admin/bookings", tokenFor(t, "admin-1", ""), nil)
	var got booking.Overview
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if !got.Stats.TotalEarnings.Equal(decimal.NewFromInt(100)) || got.Stats.PendingCount != 1 || got.Stats.TotalBookings != 3 {
		t.Fatalf("unexpected stats %+v", got.Stats)
	}

	failing := newAdminMux(&fakeReviewer{err: errors.New("db down")})
	rw = do(t, failing, http.MethodGet, "/api/v1/admin/bookings", tokenFor(t, "admin-1", ""), nil)
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if rw.Code != http.StatusOK || len(got.Bookings) != 0 || got.Stats.TotalBookings != 0 {
		t.Fatalf("expected empty overview on read failure, got %d %+v", rw.Code, got)
	}
}

func TestAdminSetStatus(t *testing.T) {
	rev := &fakeReviewer{}
	mux := newAdminMux(rev)
	admin := tokenFor(t, "admin-1", "")

	rw := do(t, mux, http.MethodPost, "/api/v1/admin/bookings/status", admin, setStatusRequest{BookingID: pendingBookingID, Status: "confirmed"})
	if rw.Code != http.StatusOK || len(rev.set) != 1 || rev.set[0] != pendingBookingID+"=confirmed" || rev.actor != "admin-1" {
		t.Fatalf("unexpected result %d %v %q", rw.Code, rev.set, rev.actor)
	}

	if rw := do(t, mux, http.MethodPost, "/api/v1/admin/bookings/status", admin, setStatusRequest{BookingID: pendingBookingID, Status: "archived"}); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rw.Code)
	}
	if rw := do(t, mux, http.MethodPost, "/api/v1/admin/bookings/status", tokenFor(t, "user-1", "admin"), setStatusRequest{BookingID: pendingBookingID, Status: "cancelled"}); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rw.Code)
	}

	missing := newAdminMux(&fakeReviewer{setErr: storage.ErrNotFound})
	if rw := do(t, missing, http.MethodPost, "/api/v1/admin/bookings/status", admin, setStatusRequest{BookingID: missingBookingID, Status: "cancelled"}); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}

	rw = do(t, mux, http.MethodPost, "/api/v1/admin/bookings/status", admin, setStatusRequest{BookingID: "abc", Status: "cancelled"})
	if rw.Code != http.StatusNotFound || len(rev.set) != 1 {
		t.Fatalf("malformed booking id: expected 404 without an update, got %d %v", rw.Code, rev.set)
	}
}

func TestAdminAudit(t *testing.T) {
	admin := tokenFor(t, "admin-1", "")
	if rw := do(t, newAdminMux(&fakeReviewer{}), http.MethodGet, "/api/v1/admin/audit", admin, nil); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without audit log, got %d", rw.Code)
	}

	audit := &fakeAudit{events: []storage.AuditEvent{{ID: 7, EventType: "identity.SIGNED_IN", ActorID: "user-1"}}}
	mux := newAdminMuxWithAudit(&fakeReviewer{}, audit)
	if rw := do(t, mux, http.MethodGet, "/api/v1/admin/audit", tokenFor(t, "user-1", "admin"), nil); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rw.Code)
	}
	rw := do(t, mux, http.MethodGet, "/api/v1/admin/audit?limit=5&type=identity.", admin, nil)
	var got []storage.AuditEvent
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if rw.Code != http.StatusOK || len(got) != 1 || got[0].EventType != "identity.SIGNED_IN" {
		t.Fatalf("unexpected audit response %d %+v", rw.Code, got)
	}
	if audit.filter != (storage.AuditFilter{Type: "identity.", Limit: 5}) {
		t.Fatalf("unexpected filter %+v", audit.filter)
	}

	for _, path := range []string{"/api/v1/admin/audit?limit=ten", "/api/v1/admin/audit?actor=bob"} {
		if rw := do(t, mux, http.MethodGet, path, admin, nil); rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rw.Code)
		}
	}

	failing := newAdminMuxWithAudit(&fakeReviewer{}, &fakeAudit{err: errors.New("db down")})
	if rw := do(t, failing, http.MethodGet, "/api/v1/admin/audit", admin, nil); rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}
