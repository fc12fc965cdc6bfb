package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/jmcleod/ironwallet/protocol"
)

type contextKey int

const originKey contextKey = iota

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com https://fonts.googleapis.com; " +
		"font-src https://fonts.gstatic.com; img-src 'self' data: https://cdn.redoc.ly; worker-src blob:"
)

// SecurityHeaders is middleware that sets standard security response headers
// on every response. Responses are never cached since they may carry
// addresses or key material.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if strings.Contains(r.URL.Path, "/docs") || strings.Contains(r.URL.Path, "/redoc") {
			h.Set("Content-Security-Policy", docsCSP)
		} else {
			h.Set("Content-Security-Policy", apiCSP)
		}
		if requestIsSecure(r) {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken rejects requests that do not carry token as a bearer
// credential. Repeated failures from one address are locked out with
// exponential backoff. An empty token disables the check.
func (a *API) requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			attempt, retryAfter, ok := a.tokenLimiter.Reserve(ip)
			if !ok {
				a.audit.log(AuditTokenRateLimited, r)
				writeRateLimited(w, retryAfter, "too many failed authentication attempts; try again later")
				return
			}

			presented, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				attempt.Fail()
				a.audit.log(AuditTokenRejected, r)
				w.Header().Set("WWW-Authenticate", `Bearer realm="ironwallet"`)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			attempt.Succeed()
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireOrigin reads the page origin from OriginHeader, normalizes it and
// applies the per-origin rate limit. The normalized origin is stored on the
// request context.
func (a *API) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OriginHeader)
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing "+OriginHeader+" header")
			return
		}
		origin, err := protocol.OriginFromURL(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+OriginHeader+" header")
			return
		}
		if !a.originLimiter.allow(origin) {
			a.audit.log(AuditOriginRateLimited, r, slog.String("origin", origin))
			writeRateLimited(w, 0, "rate limit exceeded")
			return
		}
		ctx := context.WithValue(r.Context(), originKey, origin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func originFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey).(string)
	return origin
}

// recoverer turns a handler panic into a 500 without leaking the panic
// value to the caller.
func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.logger.Error("handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	return r.TLS != nil
}
