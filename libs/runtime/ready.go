package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz. A nil Check is skipped, which lets
// callers register optional dependencies (kafka, redis) unconditionally.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type readyResponse struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, readyResponse{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := runChecks(r.Context(), checks)
		if len(failures) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, readyResponse{Status: "unavailable", Failures: failures})
			return
		}
		writeStatus(w, http.StatusOK, readyResponse{Status: "ok"})
	})
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) map[string]string {
	failures := map[string]string{}
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(checkCtx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures[name] = err.Error()
		}
	}
	return failures
}

func writeStatus(w http.ResponseWriter, status int, body readyResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
