package httpx

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	corsMaxAge       = "600"
)

// cors answers preflight requests and decorates responses for the configured
// browser origins. Credentials are allowed, so origins are echoed rather than
// wildcarded.
type cors struct {
	origins map[string]struct{}
	any     bool
}

func newCORS(allowed []string) cors {
	c := cors{origins: make(map[string]struct{}, len(allowed))}
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			c.any = true
		default:
			c.origins[origin] = struct{}{}
		}
	}
	return c
}

func (c cors) allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if c.any {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

func (c cors) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		headers := w.Header()
		headers.Add("Vary", "Origin")
		if c.allowed(origin) {
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Access-Control-Allow-Credentials", "true")
		}
		if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
			if c.allowed(origin) {
				headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
				headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				headers.Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}
