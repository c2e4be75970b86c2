package gate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hearthside/storefront/internal/config"
	"hearthside/storefront/internal/rate"
	"hearthside/storefront/internal/token"
)

func mockKeyring(t *testing.T) *token.Keyring {
	t.Helper()
	keys := map[string]string{
		"testkid": base64.RawURLEncoding.EncodeToString([]byte("supersecretkeythatisatleast16byteslong")),
	}
	kr, err := token.NewKeyring("HS256", keys, "testkid", "hearthside-test", 0)
	if err != nil {
		t.Fatalf("failed to create keyring: %v", err)
	}
	return kr
}

func mockConfig(env string) *config.Config {
	return &config.Config{
		Server: config.ServerCfg{
			Listen:        ":8080",
			Env:           env,
			PublicOrigins: []string{"https://hearthside.example"},
		},
		Cookie: config.CookieCfg{
			Name:     "hs_session",
			SameSite: "Lax",
			HTTPOnly: true,
		},
		Token: config.TokenCfg{TTLSec: 3600},
	}
}

func newGate(t *testing.T, env string) (*Gate, *token.Keyring) {
	t.Helper()
	kr := mockKeyring(t)
	return New(mockConfig(env), kr, rate.NewMemory(100)), kr
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a well-formed envelope: %v (body %q)", err, w.Body.String())
	}
	return env
}

func okHandler(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return map[string]any{"pong": true}, nil
}

func TestWrap_AdminEndpointWithoutCredential(t *testing.T) {
	g, _ := newGate(t, "development")
	h := g.Wrap(Options{RequireAuth: true, Scope: "admin"}, okHandler)

	req := httptest.NewRequest("POST", "/v1/admin/products", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error == "" {
		t.Errorf("expected failure envelope with non-empty error, got %+v", env)
	}
}

func TestWrap_AdminEndpointWithValidCredential(t *testing.T) {
	g, kr := newGate(t, "development")
	h := g.Wrap(Options{RequireAuth: true, Scope: "admin"}, func(_ http.ResponseWriter, r *http.Request) (any, error) {
		return Result{Status: http.StatusCreated, Data: map[string]any{"id": "p1"}}, nil
	})

	raw, _ := kr.Sign("admin-1", "owner@hearthside.example", token.RoleAdmin, time.Hour)
	req := httptest.NewRequest("POST", "/v1/admin/products", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: "hs_session", Value: raw})
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body %s)", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if !env.Success || env.Error != "" {
		t.Errorf("expected success envelope, got %+v", env)
	}
}

func TestWrap_WrongRoleRejected(t *testing.T) {
	g, kr := newGate(t, "development")
	h := g.Wrap(Options{RequireAuth: true, Scope: "admin"}, okHandler)

	raw, _ := kr.Sign("cust-1", "shopper@example.com", "customer", time.Hour)
	req := httptest.NewRequest("GET", "/v1/admin/products", nil)
	req.AddCookie(&http.Cookie{Name: "hs_session", Value: raw})
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if env := decodeEnvelope(t, w); env.Error != "invalid role" {
		t.Errorf("expected generic role error, got %q", env.Error)
	}
}

func TestWrap_RateLimit(t *testing.T) {
	g, _ := newGate(t, "development")
	p := rate.Policy{MaxRequests: 2, Window: time.Minute}
	h := g.Wrap(Options{RateLimit: &p, Scope: "public"}, okHandler)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest("GET", "/v1/products", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/v1/products", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	if env := decodeEnvelope(t, w); env.Success {
		t.Error("rate-limited response must be a failure envelope")
	}
}

func TestWrap_OriginRejected(t *testing.T) {
	g, _ := newGate(t, "development")
	h := g.Wrap(Options{ValidateOrigin: true, Scope: "public"}, okHandler)

	req := httptest.NewRequest("POST", "/v1/products", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	// The deployment's own origin passes.
	req = httptest.NewRequest("POST", "/v1/products", nil)
	req.Header.Set("Origin", "https://hearthside.example")
	w = httptest.NewRecorder()
	h(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("allow-listed origin should pass, got %d", w.Code)
	}

	// Absent Origin and Referer passes (same-origin and non-browser clients).
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/v1/products", nil))
	if w.Code != http.StatusOK {
		t.Errorf("request without origin headers should pass, got %d", w.Code)
	}
}

func TestWrap_HTTPSRequiredInProduction(t *testing.T) {
	g, _ := newGate(t, "production")
	h := g.Wrap(Options{RequireHTTPS: true, Scope: "admin"}, okHandler)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("POST", "/v1/admin/products", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("plaintext in production should be rejected, got %d", w.Code)
	}

	// Terminated TLS upstream is recognized via X-Forwarded-Proto.
	req := httptest.NewRequest("POST", "/v1/admin/products", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	h(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("forwarded https should pass, got %d", w.Code)
	}

	// Development tolerates plaintext.
	gDev, _ := newGate(t, "development")
	hDev := gDev.Wrap(Options{RequireHTTPS: true, Scope: "admin"}, okHandler)
	w = httptest.NewRecorder()
	hDev(w, httptest.NewRequest("POST", "/v1/admin/products", nil))
	if w.Code != http.StatusOK {
		t.Errorf("plaintext in development should pass, got %d", w.Code)
	}
}

func TestWrap_BodyTooLarge(t *testing.T) {
	g, _ := newGate(t, "development")
	h := g.Wrap(Options{MaxBodyBytes: 16, Scope: "admin"}, okHandler)

	req := httptest.NewRequest("POST", "/v1/admin/products", strings.NewReader(strings.Repeat("x", 64)))
	w := httptest.NewRecorder()
	h(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", w.Code)
	}
}

func TestWrap_PanicBecomesGenericError(t *testing.T) {
	g, _ := newGate(t, "production")
	h := g.Wrap(Options{Scope: "public"}, func(_ http.ResponseWriter, _ *http.Request) (any, error) {
		panic("boom: secret internal detail")
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/v1/products", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Success {
		t.Error("panic must produce a failure envelope")
	}
	if strings.Contains(env.Error, "secret") {
		t.Errorf("internal detail leaked to client: %q", env.Error)
	}
}

func TestWrap_UpstreamErrorSanitizedInProduction(t *testing.T) {
	g, _ := newGate(t, "production")
	h := g.Wrap(Options{Scope: "public"}, func(_ http.ResponseWriter, _ *http.Request) (any, error) {
		return nil, errors.New("pq: connection to 10.0.0.5 refused")
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/v1/products", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if env := decodeEnvelope(t, w); strings.Contains(env.Error, "10.0.0.5") {
		t.Errorf("upstream detail leaked: %q", env.Error)
	}
}

func TestWrap_RepeatedValidRequestsIndependent(t *testing.T) {
	g, kr := newGate(t, "development")
	h := g.Wrap(Options{RequireAuth: true, Scope: "admin"}, okHandler)

	raw, _ := kr.Sign("admin-1", "owner@hearthside.example", token.RoleAdmin, time.Hour)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/v1/admin/products", nil)
		req.AddCookie(&http.Cookie{Name: "hs_session", Value: raw})
		w := httptest.NewRecorder()
		h(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("repeat %d: expected 200, got %d", i+1, w.Code)
		}
	}
}
