package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder remembers the status and size of a response.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *responseRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// WithAccessLog writes one record per request: error for 5xx, warn for throttled or
// slower than slowAfter (0 disables the slow check), info otherwise.
func WithAccessLog(logger *slog.Logger, slowAfter time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			status := rec.code()
			slow := slowAfter > 0 && elapsed > slowAfter
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status == http.StatusTooManyRequests, slow:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("bytes", rec.written),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("client", clientKey(r)),
			}
			if slow {
				attrs = append(attrs, slog.Bool("slow", true))
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
