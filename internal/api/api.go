// Package api registers the storefront's HTTP endpoints. Every endpoint runs
// behind the gate pipeline; admin mutations additionally require a valid
// admin session cookie.
package api

import (
	"net/http"

	"hearthside/storefront/internal/catalog"
	"hearthside/storefront/internal/config"
	"hearthside/storefront/internal/gate"
	"hearthside/storefront/internal/httputil"
	"hearthside/storefront/internal/rate"
	"hearthside/storefront/internal/token"
)

type API struct {
	cfg     *config.Config
	keyring *token.Keyring
	gate    *gate.Gate
	store   *catalog.Store
	area    catalog.DeliveryArea
}

func New(cfg *config.Config, kr *token.Keyring, g *gate.Gate, store *catalog.Store) *API {
	return &API{
		cfg:     cfg,
		keyring: kr,
		gate:    g,
		store:   store,
		area: catalog.DeliveryArea{
			OriginLat: cfg.Delivery.OriginLat,
			OriginLng: cfg.Delivery.OriginLng,
			RadiusKm:  cfg.Delivery.RadiusKm,
		},
	}
}

func (a *API) publicOpts(scope string) gate.Options {
	p := rate.Policy{MaxRequests: a.cfg.Limits.Public.MaxRequests, Window: a.cfg.Limits.Public.Window()}
	return gate.Options{
		RequireHTTPS:   true,
		ValidateOrigin: true,
		RateLimit:      &p,
		MaxBodyBytes:   a.cfg.Limits.MaxBodyBytes,
		Scope:          scope,
	}
}

func (a *API) adminOpts(scope string) gate.Options {
	p := rate.Policy{MaxRequests: a.cfg.Limits.Admin.MaxRequests, Window: a.cfg.Limits.Admin.Window()}
	return gate.Options{
		RequireAuth:    true,
		RequireHTTPS:   true,
		ValidateOrigin: true,
		RateLimit:      &p,
		MaxBodyBytes:   a.cfg.Limits.MaxBodyBytes,
		Scope:          scope,
	}
}

func (a *API) loginOpts() gate.Options {
	p := rate.Policy{MaxRequests: a.cfg.Limits.Login.MaxRequests, Window: a.cfg.Limits.Login.Window()}
	return gate.Options{
		RequireHTTPS:   true,
		ValidateOrigin: true,
		RateLimit:      &p,
		MaxBodyBytes:   a.cfg.Limits.MaxBodyBytes,
		Scope:          "login",
	}
}

func (a *API) Routes(mux *http.ServeMux) {
	// public catalog
	mux.HandleFunc("GET /v1/products", a.gate.Wrap(a.publicOpts("public"), a.listProducts))
	mux.HandleFunc("GET /v1/products/{id}", a.gate.Wrap(a.publicOpts("public"), a.getProduct))
	mux.HandleFunc("GET /v1/products/{id}/related", a.gate.Wrap(a.publicOpts("public"), a.relatedProducts))
	mux.HandleFunc("GET /v1/delivery/check", a.gate.Wrap(a.publicOpts("public"), a.deliveryCheck))

	// sessions
	mux.HandleFunc("POST /v1/auth/login", a.gate.Wrap(a.loginOpts(), a.login))
	mux.HandleFunc("POST /v1/auth/logout", a.gate.Wrap(a.publicOpts("public"), a.logout))
	mux.HandleFunc("GET /v1/auth/session", a.gate.Wrap(a.adminOpts("admin"), a.session))

	// admin catalog management
	mux.HandleFunc("POST /v1/admin/products", a.gate.Wrap(a.adminOpts("admin"), a.createProduct))
	mux.HandleFunc("PUT /v1/admin/products/{id}", a.gate.Wrap(a.adminOpts("admin"), a.updateProduct))
	mux.HandleFunc("DELETE /v1/admin/products/{id}", a.gate.Wrap(a.adminOpts("admin"), a.deleteProduct))
	mux.HandleFunc("GET /v1/admin/stats", a.gate.Wrap(a.adminOpts("admin"), a.stats))

	mux.HandleFunc("GET /healthz", a.healthz)
	mux.HandleFunc("GET /readyz", a.readyz)
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if _, _, err := a.store.List(r.Context(), 1, ""); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
