package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "h") }), mk("a"), mk("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,h" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRecoverWritesServerError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil package")
	}), WithRequestID, WithRecover(logger))

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	req.Header.Set("X-Request-Id", "req-9")
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusInternalServerError || !strings.Contains(rw.Body.String(), "internal error") {
		t.Fatalf("expected 500 json, got %d %s", rw.Code, rw.Body.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["panic"] != "nil package" || entry["request_id"] != "req-9" || entry["level"] != "ERROR" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestRecoverKeepsStartedResponse(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusAccepted || rw.Body.Len() != 0 {
		t.Fatalf("started response was rewritten: %d %q", rw.Code, rw.Body.String())
	}

	abort := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", v)
		}
	}()
	abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestWriteError(t *testing.T) {
	rw := httptest.NewRecorder()
	WriteError(rw, http.StatusConflict, "slot no longer available")
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rw.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "slot no longer available" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Name != "x" {
		t.Fatalf("decode: %v %+v", err, dst)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field error")
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}{}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-1" || rw.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("unexpected request id %q / %q", seen, rw.Header().Get(RequestIDHeader))
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-1" {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestRateLimit(t *testing.T) {
	ml := NewMemoryLimiter(time.Minute)
	h := WithRateLimit(ml, RatePolicy{Limit: 2, Strict: map[string]int{"/api/v1/auth/login": 1}}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	hit := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw
	}

	first := hit("/api/v1/packages")
	if first.Code != http.StatusOK || first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}
	if rw := hit("/api/v1/packages"); rw.Code != http.StatusOK {
		t.Fatalf("expected second request allowed, got %d", rw.Code)
	}
	rw := hit("/api/v1/packages")
	if rw.Code != http.StatusTooManyRequests || rw.Header().Get("Retry-After") == "" || rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected 429 with retry hint, got %d %v", rw.Code, rw.Header())
	}

	// login has its own bucket
	if rw := hit("/api/v1/auth/login"); rw.Code != http.StatusOK || rw.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("expected login allowed, got %d %v", rw.Code, rw.Header())
	}
	if rw := hit("/api/v1/auth/login"); rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected login throttled, got %d", rw.Code)
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ml := NewMemoryLimiter(time.Minute)
	ml.now = func() time.Time { return now }

	ctx := context.Background()
	if d, _ := ml.Hit(ctx, "k", 1); !d.Allowed || d.ResetIn != time.Minute {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d, _ := ml.Hit(ctx, "k", 1); d.Allowed {
		t.Fatal("expected second hit rejected")
	}
	now = now.Add(time.Minute)
	if d, _ := ml.Hit(ctx, "k", 1); !d.Allowed {
		t.Fatal("expected new window to allow")
	}
}

type failingLimiter struct{}

func (failingLimiter) Hit(context.Context, string, int) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimitFailOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, tc := range []struct {
		failOpen bool
		want     int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	} {
		h := WithRateLimit(failingLimiter{}, RatePolicy{Limit: 5, FailOpen: tc.failOpen}, nil)(ok)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rw.Code != tc.want {
			t.Fatalf("failOpen=%v: expected %d, got %d", tc.failOpen, tc.want, rw.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"http://studio.test"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "http://studio.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent || rw.Header().Get("Access-Control-Allow-Origin") != "http://studio.test" {
		t.Fatalf("unexpected preflight %d %v", rw.Code, rw.Header())
	}

	if rw.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Fatalf("unexpected allowed methods %q", rw.Header().Get("Access-Control-Allow-Methods"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://STUDIO.test")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTeapot || rw.Header().Get("Access-Control-Allow-Origin") != "http://STUDIO.test" {
		t.Fatalf("expected simple request passed through with CORS headers, got %d %v", rw.Code, rw.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.test")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for unknown origin")
	}
}

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithAccessLog(logger, 0)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusBadRequest, "bad")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	req.RemoteAddr = "192.0.2.7:5100"
	h.ServeHTTP(httptest.NewRecorder(), req)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["status"].(float64) != 400 || entry["path"] != "/api/v1/slots" || entry["client"] != "192.0.2.7" || entry["level"] != "INFO" {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if _, ok := entry["slow"]; ok {
		t.Fatal("slow flag set with the check disabled")
	}
}

func TestAccessLogLevels(t *testing.T) {
	cases := []struct {
		status int
		delay  time.Duration
		want   string
	}{
		{http.StatusInternalServerError, 0, "ERROR"},
		{http.StatusTooManyRequests, 0, "WARN"},
		{http.StatusOK, 5 * time.Millisecond, "WARN"},
		{http.StatusNoContent, 0, "INFO"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		h := WithAccessLog(logger, time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(tc.delay)
			w.WriteHeader(tc.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		if entry["level"] != tc.want {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.want, entry["level"])
		}
	}
}

func TestCORSWildcardWithCredentials(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"*"}, AllowCredentials: true})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://app.test")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "http://app.test" || rw.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected echoed origin, got %v", rw.Header())
	}
}
