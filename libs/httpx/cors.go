package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what browsers on other origins may do. "*" in
// AllowedOrigins admits any origin; with AllowCredentials the caller's origin
// is echoed instead of the wildcard.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     []string
	methodsHdr  string
	headersHdr  string
	exposedHdr  string
	maxAge      string
	credentials bool
}

func compileCORS(p CORSPolicy) corsRules {
	c := corsRules{origins: map[string]struct{}{}, credentials: p.AllowCredentials}
	for _, o := range trimmed(p.AllowedOrigins) {
		if o == "*" {
			c.anyOrigin = true
			continue
		}
		c.origins[strings.ToLower(o)] = struct{}{}
	}
	for _, m := range trimmed(p.AllowedMethods) {
		c.methods = append(c.methods, strings.ToUpper(m))
	}
	c.methodsHdr = strings.Join(c.methods, ", ")
	c.headersHdr = strings.Join(trimmed(p.AllowedHeaders), ", ")
	c.exposedHdr = strings.Join(trimmed(p.ExposedHeaders), ", ")
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		c.maxAge = strconv.Itoa(secs)
	}
	return c
}

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

func (c corsRules) allowMethod(method string) bool {
	return len(c.methods) == 0 || slices.Contains(c.methods, strings.ToUpper(method))
}

// WithCORS answers preflight requests for allowed origins and methods and
// decorates regular responses. Without origins it passes requests through.
func WithCORS(p CORSPolicy) Middleware {
	c := compileCORS(p)
	if !c.anyOrigin && len(c.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			allowed, ok := c.allowOrigin(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method == http.MethodOptions && requested != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				if !c.allowMethod(requested) {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				h.Set("Access-Control-Allow-Origin", allowed)
				if c.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if c.methodsHdr != "" {
					h.Set("Access-Control-Allow-Methods", c.methodsHdr)
				}
				switch {
				case c.headersHdr != "":
					h.Set("Access-Control-Allow-Headers", c.headersHdr)
				case r.Header.Get("Access-Control-Request-Headers") != "":
					h.Add("Vary", "Access-Control-Request-Headers")
					h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
				}
				if c.maxAge != "" {
					h.Set("Access-Control-Max-Age", c.maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowed)
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if c.exposedHdr != "" {
				h.Set("Access-Control-Expose-Headers", c.exposedHdr)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
