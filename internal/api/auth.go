package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"hearthside/storefront/internal/gate"
	"hearthside/storefront/internal/httputil"
	"hearthside/storefront/internal/metrics"
	"hearthside/storefront/internal/token"

	"golang.org/x/crypto/bcrypt"
)

// login verifies the admin credentials and sets the session cookie. Email
// comparison is constant time and the bcrypt check runs even for unknown
// emails so both paths take comparable time.
func (a *API) login(w http.ResponseWriter, r *http.Request) (any, error) {
	clean, err := a.decodeBody(r, loginSchema)
	if err != nil {
		return nil, err
	}
	req := bindLogin(clean)

	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(req.Email)),
		[]byte(strings.ToLower(a.cfg.Admin.Email)),
	) == 1
	passOK := bcrypt.CompareHashAndPassword(
		[]byte(a.cfg.Admin.PasswordBcrypt), []byte(req.Password)) == nil
	if !emailOK || !passOK {
		metrics.AuthFailures.WithLabelValues("bad_login").Inc()
		return nil, gate.Auth("invalid credentials")
	}

	raw, err := a.keyring.Sign(a.cfg.Admin.Email, a.cfg.Admin.Email, token.RoleAdmin, a.cfg.TokenTTL())
	if err != nil {
		return nil, err
	}
	metrics.SessionsIssued.Inc()
	http.SetCookie(w, httputil.BuildSessionCookie(a.cfg, raw))
	return map[string]any{"email": a.cfg.Admin.Email, "role": token.RoleAdmin}, nil
}

func (a *API) logout(w http.ResponseWriter, _ *http.Request) (any, error) {
	http.SetCookie(w, httputil.ExpiredSessionCookie(a.cfg))
	return map[string]string{"status": "logged_out"}, nil
}

// session echoes the verified claims so the admin UI can restore state after
// a reload. Auth itself happened in the gate; the claims are on the context.
func (a *API) session(_ http.ResponseWriter, r *http.Request) (any, error) {
	claims, ok := httputil.GetClaims(r.Context())
	if !ok {
		return nil, gate.Auth("no token provided")
	}
	return map[string]any{
		"email":   claims.Email,
		"role":    claims.Role,
		"expires": claims.ExpiresAt.Time,
	}, nil
}
