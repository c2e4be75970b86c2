// Package gate wraps business handlers with the fixed security pipeline:
// HTTPS check, origin check, rate limit, body-size cap, credential
// verification, then the handler. Every path out of the gate produces
// exactly one {success, data?, error?} envelope.
package gate

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hearthside/storefront/internal/config"
	"hearthside/storefront/internal/httputil"
	"hearthside/storefront/internal/metrics"
	"hearthside/storefront/internal/rate"
	"hearthside/storefront/internal/token"
)

// Envelope is the uniform response shape for every gated endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Options configures the pre-flight pipeline for one endpoint.
type Options struct {
	RequireAuth    bool
	RequireHTTPS   bool
	ValidateOrigin bool
	RateLimit      *rate.Policy
	MaxBodyBytes   int64
	// Scope names the endpoint group for rate-limit keys and metrics.
	Scope string
}

// HandlerFunc is a gated business handler. It returns the success payload
// or an error; it must not write the response body itself (setting cookies
// and headers on w is fine, the gate writes the envelope).
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (any, error)

// Result lets a handler pick a non-200 success status (e.g. 201 on create).
type Result struct {
	Status int
	Data   any
}

type Gate struct {
	cfg     *config.Config
	keyring *token.Keyring
	limiter rate.Limiter
	origins map[string]struct{}
}

func New(cfg *config.Config, kr *token.Keyring, limiter rate.Limiter) *Gate {
	origins := make(map[string]struct{}, len(cfg.Server.PublicOrigins))
	for _, o := range cfg.Server.PublicOrigins {
		origins[normalizeOrigin(o)] = struct{}{}
	}
	return &Gate{cfg: cfg, keyring: kr, limiter: limiter, origins: origins}
}

// Wrap applies the pipeline around fn. Stages run in fixed order and
// short-circuit on first failure.
func (g *Gate) Wrap(opts Options, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.GateDuration.Observe(time.Since(start).Seconds())
		}()
		logger := httputil.GetLogger(r.Context())

		// 1. Transport: plaintext is tolerated in development only.
		if opts.RequireHTTPS && g.cfg.Production() && !isHTTPS(r) {
			g.reject(w, "plaintext_rejected", KindOrigin.Status(), "https required")
			return
		}

		// 2. Origin allow-list.
		if opts.ValidateOrigin && !g.allowedOrigin(r) {
			logger.Warn().
				Str("origin", r.Header.Get("Origin")).
				Str("referer", r.Header.Get("Referer")).
				Msg("origin rejected")
			g.reject(w, "origin_rejected", KindOrigin.Status(), "origin not allowed")
			return
		}

		// 3. Rate limit.
		if opts.RateLimit != nil {
			key := opts.Scope + ":" + httputil.ClientIPFromHeaders(r)
			ok, err := g.limiter.Allow(r.Context(), key, *opts.RateLimit)
			if err != nil {
				logger.Warn().Err(err).Msg("rate limiter error")
			}
			if !ok {
				metrics.RateLimitHits.WithLabelValues(opts.Scope).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(opts.RateLimit.Window/time.Second)+1))
				g.reject(w, "rate_limited", KindRateLimit.Status(), "rate limit exceeded")
				return
			}
		}

		// 4. Body size, checked against the declared length before parsing
		// and enforced during reads.
		if opts.MaxBodyBytes > 0 {
			if r.ContentLength > opts.MaxBodyBytes {
				g.reject(w, "body_too_large", KindValidation.Status(), "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)
		}

		// 5. Credential verification for role-gated endpoints.
		if opts.RequireAuth {
			var raw string
			if c, err := r.Cookie(g.cfg.Cookie.Name); err == nil {
				raw = c.Value
			}
			claims, err := g.keyring.VerifyRole(raw, token.RoleAdmin)
			if err != nil {
				reason := authReason(err)
				metrics.AuthFailures.WithLabelValues(reason).Inc()
				logger.Warn().Err(err).Str("reason", reason).Msg("credential rejected")
				g.reject(w, "auth_failed", KindAuth.Status(), token.Category(err))
				return
			}
			r = r.WithContext(httputil.WithClaims(r.Context(), claims))
		}

		// 6. Handler, with panic containment.
		data, err := g.invoke(fn, w, r)
		if err != nil {
			f := classify(err)
			if f.Kind == KindUpstream || f.Kind == KindUnavailable {
				logger.Error().Err(f.Err).Str("scope", opts.Scope).Msg("handler failure")
			}
			msg := f.Message
			if f.Kind == KindUpstream && !g.cfg.Production() && f.Err != nil {
				// Development convenience only; production stays generic.
				msg = f.Err.Error()
			}
			g.reject(w, "handler_error", f.status(), msg)
			return
		}

		status := http.StatusOK
		if res, ok := data.(Result); ok {
			status = res.Status
			data = res.Data
		}
		metrics.GateDecision.WithLabelValues("allow").Inc()
		httputil.WriteJSON(w, status, Envelope{Success: true, Data: data})
	}
}

// invoke runs fn and converts panics into upstream failures so no request
// is left unresponded.
func (g *Gate) invoke(fn HandlerFunc, w http.ResponseWriter, r *http.Request) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger := httputil.GetLogger(r.Context())
			logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
			data, err = nil, &Failure{Kind: KindUpstream, Message: "internal error"}
		}
	}()
	return fn(w, r)
}

func (g *Gate) reject(w http.ResponseWriter, outcome string, status int, msg string) {
	metrics.GateDecision.WithLabelValues(outcome).Inc()
	httputil.WriteJSON(w, status, Envelope{Success: false, Error: msg})
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// allowedOrigin compares the Origin header (Referer as fallback) against
// the deployment's own origins. Requests carrying neither header pass:
// same-origin navigation and non-browser clients send none.
func (g *Gate) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		ref := r.Header.Get("Referer")
		if ref == "" {
			return true
		}
		u, err := url.Parse(ref)
		if err != nil {
			return false
		}
		origin = u.Scheme + "://" + u.Host
	}
	if len(g.origins) == 0 {
		// Development without a configured origin list.
		return !g.cfg.Production()
	}
	_, ok := g.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

func authReason(err error) string {
	switch token.Category(err) {
	case "no token provided":
		return "no_token"
	case "invalid role":
		return "invalid_role"
	default:
		return "invalid_token"
	}
}
