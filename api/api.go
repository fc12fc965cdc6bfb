// Package api serves the wallet core over HTTP. The relay host posts
// external requests to /external with the page origin in a header it
// controls, and the wallet UI posts internal actions to /internal.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/rs/cors"

	"github.com/jmcleod/ironwallet/internal/ratelimit"
	"github.com/jmcleod/ironwallet/wallet"
)

// OriginHeader carries the page origin on /external. Only the relay host
// sets it; the request body never can.
const OriginHeader = "X-Wallet-Origin"

// maxBodyBytes bounds request bodies on both surfaces.
const maxBodyBytes = 1 << 20

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	core           *wallet.Core
	relayToken     string
	uiToken        string
	allowedOrigins []string
	originLimiter  *originRateLimiter
	tokenLimiter   *ratelimit.Backoff
	logger         *slog.Logger
	audit          *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithRelayToken requires callers of /external to present token as a
// bearer credential. An empty token leaves the surface open.
func WithRelayToken(token string) Option {
	return func(a *API) {
		a.relayToken = token
	}
}

// WithUIToken requires callers of /internal to present token as a bearer
// credential. An empty token leaves the surface open.
func WithUIToken(token string) Option {
	return func(a *API) {
		a.uiToken = token
	}
}

// WithAllowedOrigins enables CORS for the given browser origins, typically
// the wallet UI's extension origin. Without it no CORS headers are sent.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		a.allowedOrigins = append(a.allowedOrigins, origins...)
	}
}

// WithOriginRateLimit sets the sustained rate and burst allowed per page
// origin on /external.
func WithOriginRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		a.originLimiter = newOriginRateLimiter(rps, burst)
	}
}

// New creates a new API instance serving core.
func New(core *wallet.Core, opts ...Option) *API {
	a := &API{
		core:         core,
		tokenLimiter: newTokenLimiter(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "api")
	if a.originLimiter == nil {
		a.originLimiter = newOriginRateLimiter(defaultOriginRPS, defaultOriginBurst)
	}
	a.audit = newAuditLogger(a.logger)
	if a.relayToken == "" {
		a.logger.Warn("external surface has no relay token; any local process can act as a page")
	}
	if a.uiToken == "" {
		a.logger.Warn("internal surface has no UI token; any local process can drive the wallet")
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/health", a.Health)

	r.With(a.requireToken(a.relayToken), a.requireOrigin).
		Post("/external", a.External)
	r.With(a.requireToken(a.uiToken)).
		Post("/internal", a.Internal)

	return r
}

// Handler mounts the router at /api/v1 and wraps it with the outer
// middleware chain: panic recovery, security headers, then CORS.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.recoverer)
	r.Use(SecurityHeaders)
	r.Mount("/api/v1", a.Router())

	if len(a.allowedOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})
	return c.Handler(r)
}
