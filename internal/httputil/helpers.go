package httputil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"hearthside/storefront/internal/config"
	"hearthside/storefront/internal/token"

	"github.com/rs/zerolog"
)

// Context keys for request metadata
type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
	trustedProxiesKey
	claimsKey
)

// Buffer pool for JSON encoding hot path
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// GenerateRequestID creates a new random request ID.
func GenerateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func GetLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok {
		return logger
	}
	nopLogger := zerolog.Nop()
	return &nopLogger
}

func WithTrustedProxies(ctx context.Context, trustedProxies []*net.IPNet) context.Context {
	return context.WithValue(ctx, trustedProxiesKey, trustedProxies)
}

func GetTrustedProxies(ctx context.Context) []*net.IPNet {
	if proxies, ok := ctx.Value(trustedProxiesKey).([]*net.IPNet); ok {
		return proxies
	}
	return nil
}

// WithClaims attaches verified session claims for role-gated handlers.
func WithClaims(ctx context.Context, claims *token.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func GetClaims(ctx context.Context) (*token.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.SessionClaims)
	return claims, ok
}

// Middleware wraps an http.Handler and returns a new handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares in order:
// Chain(mw1, mw2, mw3)(handler) => mw1(mw2(mw3(handler)))
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RequestIDMiddleware extracts or generates a request ID and attaches it,
// a request-scoped logger, and the trusted proxy list to the context.
func RequestIDMiddleware(logger zerolog.Logger, trustedProxies []*net.IPNet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()

			ctx := WithRequestID(r.Context(), requestID)
			ctx = WithLogger(ctx, &reqLogger)
			ctx = WithTrustedProxies(ctx, trustedProxies)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders attaches the baseline headers every response carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/metrics") {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; connect-src 'self'; frame-ancestors 'none'")
		}

		next.ServeHTTP(w, r)
	})
}

// PageGuard is the routing filter in front of protected page paths: browser
// requests under a protected prefix without a valid admin session are
// redirected to the login path. API paths and the login path itself are
// exempt; API auth is the gate's job and answers 401, not 302.
func PageGuard(cfg *config.Config, kr *token.Keyring, protectedPrefixes []string, loginPath string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == loginPath || strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}
			protected := false
			for _, p := range protectedPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					protected = true
					break
				}
			}
			if !protected {
				next.ServeHTTP(w, r)
				return
			}
			var raw string
			if c, err := r.Cookie(cfg.Cookie.Name); err == nil {
				raw = c.Value
			}
			if _, err := kr.VerifyRole(raw, token.RoleAdmin); err != nil {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIPFromHeaders extracts the client IP using the trusted proxy list
// from the request context. X-Forwarded-For is honored only when the
// immediate peer is a trusted proxy; otherwise spoofed XFF would let a
// caller rotate rate-limit keys at will.
func ClientIPFromHeaders(r *http.Request) string {
	return clientIP(r, GetTrustedProxies(r.Context()))
}

func clientIP(r *http.Request, trustedProxies []*net.IPNet) string {
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	remoteIP := net.ParseIP(remoteHost)
	if remoteIP == nil {
		return ""
	}

	isTrusted := false
	for _, ipNet := range trustedProxies {
		if ipNet.Contains(remoteIP) {
			isTrusted = true
			break
		}
	}
	if isTrusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				cand := strings.TrimSpace(parts[0])
				if ip := net.ParseIP(cand); ip != nil {
					return ip.String()
				}
			}
		}
	}
	return remoteIP.String()
}

// WriteJSON writes a JSON response with proper headers. Uses pooled buffers
// to reduce hot path allocations.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return
	}
	w.Write(buf.Bytes())
}

// BuildSessionCookie creates the session cookie with configured settings.
func BuildSessionCookie(cfg *config.Config, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     cfg.Cookie.Name,
		Value:    value,
		Path:     cfg.Cookie.Path,
		MaxAge:   cfg.Token.TTLSec,
		Secure:   cfg.Cookie.Secure,
		HttpOnly: cfg.Cookie.HTTPOnly,
	}
	switch strings.ToLower(cfg.Cookie.SameSite) {
	case "none":
		c.SameSite = http.SameSiteNoneMode
	default:
		c.SameSite = http.SameSiteLaxMode
	}
	if cfg.Cookie.Domain != "" {
		c.Domain = cfg.Cookie.Domain
	}
	return c
}

// ExpiredSessionCookie returns a cookie that clears the session on logout.
func ExpiredSessionCookie(cfg *config.Config) *http.Cookie {
	c := BuildSessionCookie(cfg, "")
	c.MaxAge = -1
	return c
}
