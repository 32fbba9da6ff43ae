package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// corsRules is a CORSPolicy compiled once at startup.
type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

func compileCORS(p CORSPolicy) corsRules {
	c := corsRules{
		origins:     map[string]struct{}{},
		methods:     joinTrimmed(p.AllowedMethods),
		headers:     joinTrimmed(p.AllowedHeaders),
		credentials: p.AllowCredentials,
	}
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[o] = struct{}{}
		}
	}
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		c.maxAge = strconv.Itoa(secs)
	}
	return c
}

func (c corsRules) empty() bool {
	return !c.anyOrigin && len(c.origins) == 0
}

// allowOrigin returns the value for Access-Control-Allow-Origin. A wildcard echoes the
// origin when credentials are allowed, since browsers reject "*" with credentials.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !c.anyOrigin {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

// WithCORS answers preflights for allowed origins and decorates their other responses.
// With no origins configured it does nothing.
func WithCORS(p CORSPolicy) Middleware {
	rules := compileCORS(p)
	if rules.empty() {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Add("Vary", "Origin")
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if rules.methods != "" {
				h.Set("Access-Control-Allow-Methods", rules.methods)
			}
			if rules.headers != "" {
				h.Set("Access-Control-Allow-Headers", rules.headers)
			}
			if rules.maxAge != "" {
				h.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinTrimmed(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
