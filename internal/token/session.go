package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the privileged role marker checked by admin-gated endpoints.
const RoleAdmin = "admin"

// SessionClaims is the signed assertion carried by the session cookie.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Keyring struct {
	Alg        string
	Keys       map[string][]byte // kid -> secret
	CurrentKID string
	Issuer     string
	SkewSec    int
	// MaxTTL caps session lifetime; tokens claiming a longer life are rejected.
	MaxTTL time.Duration
}

// Verification failures collapse to three generic categories so responses
// never reveal which check tripped.
var (
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)

// NewKeyring loads base64url secrets and prepares a signing/verification
// keyring. alg must be an HMAC algorithm ("HS256" recommended).
func NewKeyring(alg string, keys map[string]string, current, iss string, skew int) (*Keyring, error) {
	switch alg {
	case "HS256", "HS384", "HS512":
	default:
		return nil, errors.New("unsupported alg (expected HS256/384/512)")
	}
	kr := &Keyring{
		Alg:     alg,
		Keys:    make(map[string][]byte, len(keys)),
		Issuer:  iss,
		SkewSec: skew,
		MaxTTL:  24 * time.Hour,
	}
	for kid, b64 := range keys {
		dec, err := base64.RawURLEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		if len(dec) < 16 {
			return nil, errors.New("signing key too short; need >=16 bytes")
		}
		kr.Keys[kid] = dec
	}
	if _, ok := kr.Keys[current]; !ok {
		return nil, errors.New("current_kid not found in keys")
	}
	kr.CurrentKID = current
	if kr.Issuer == "" {
		kr.Issuer = "hearthside"
	}
	return kr, nil
}

// Sign mints a session token for subject with the given role. TTL is clamped
// to MaxTTL; a non-positive TTL gets a one hour default.
func (k *Keyring) Sign(subject, email, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > k.MaxTTL {
		ttl = k.MaxTTL
	}
	now := time.Now()
	claims := SessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    k.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.GetSigningMethod(k.Alg), claims)
	t.Header["kid"] = k.CurrentKID
	secret := k.Keys[k.CurrentKID]
	if len(secret) == 0 {
		return "", errors.New("missing signing key for current_kid")
	}
	return t.SignedString(secret)
}

// Verify checks signature, issuer, and time-based claims, returning the
// claim set or one of the generic category errors. A token inside its
// validity window is accepted as-is; there is no refresh or grace period.
func (k *Keyring) Verify(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	skew := time.Duration(k.SkewSec) * time.Second
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{k.Alg}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(skew),
	)

	var claims SessionClaims
	tok, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		kidVal, ok := t.Header["kid"]
		if !ok {
			return nil, errors.New("missing kid")
		}
		kid, _ := kidVal.(string)
		secret, ok := k.Keys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Issuer check (constant-time).
	if subtle.ConstantTimeCompare([]byte(claims.Issuer), []byte(k.Issuer)) != 1 {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}

	// Enforce the maximum life window even for correctly signed tokens.
	if claims.IssuedAt != nil && claims.ExpiresAt != nil {
		if claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time) > k.MaxTTL+skew {
			return nil, fmt.Errorf("%w: lifetime exceeds policy", ErrInvalidToken)
		}
	}

	return &claims, nil
}

// VerifyRole verifies the token and additionally requires the claimed role
// to equal role.
func (k *Keyring) VerifyRole(raw, role string) (*SessionClaims, error) {
	claims, err := k.Verify(raw)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.Role), []byte(role)) != 1 {
		return nil, ErrInvalidRole
	}
	return claims, nil
}

// Category maps a verification error to its client-visible message.
// Anything unrecognized reports as an invalid token.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return ErrNoToken.Error()
	case errors.Is(err, ErrInvalidRole):
		return ErrInvalidRole.Error()
	default:
		return ErrInvalidToken.Error()
	}
}
